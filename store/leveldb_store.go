package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

type LevelDBStoreOptions struct {
	// 数据库目录，InMemory 为 true 时忽略
	DBPath   string `cfg:"dbPath" validate:"required_without=InMemory"`
	InMemory bool   `cfg:"inMemory"`

	KeySerializer string `cfg:"keySerializer" validate:"omitempty,oneof=json msgpack bson"`
	ValSerializer string `cfg:"valSerializer" validate:"omitempty,oneof=json msgpack bson"`

	// lru 或 none，默认 lru
	BlockCacher        string `cfg:"blockCacher" validate:"omitempty,oneof=lru none"`
	BlockCacheCapacity int    `cfg:"blockCacheCapacity"`
	// none 或 snappy，默认 snappy
	Compression            string `cfg:"compression" validate:"omitempty,oneof=none snappy"`
	WriteBuffer            int    `cfg:"writeBuffer"`
	OpenFilesCacheCapacity int    `cfg:"openFilesCacheCapacity"`
	ReadOnly               bool   `cfg:"readOnly"`
	// 每次写入都 fsync
	Sync bool `cfg:"sync"`
}

// LevelDBStore 不支持过期
type LevelDBStore[K, V any] struct {
	codec[K, V]
	db           *leveldb.DB
	writeOptions *opt.WriteOptions
}

func NewLevelDBStoreWithOptions[K, V any](options *LevelDBStoreOptions) (*LevelDBStore[K, V], error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}
	c, err := newCodec[K, V](options.KeySerializer, options.ValSerializer)
	if err != nil {
		return nil, err
	}

	o := &opt.Options{
		BlockCacheCapacity:     options.BlockCacheCapacity,
		WriteBuffer:            options.WriteBuffer,
		OpenFilesCacheCapacity: options.OpenFilesCacheCapacity,
		ReadOnly:               options.ReadOnly,
	}
	switch options.BlockCacher {
	case "none":
		o.BlockCacher = opt.NoCacher
	case "", "lru":
		o.BlockCacher = opt.LRUCacher
	default:
		return nil, errors.Errorf("invalid block cacher: %s", options.BlockCacher)
	}
	switch options.Compression {
	case "none":
		o.Compression = opt.NoCompression
	case "", "snappy":
		o.Compression = opt.SnappyCompression
	default:
		return nil, errors.Errorf("invalid compression: %s", options.Compression)
	}

	var db *leveldb.DB
	if options.InMemory {
		db, err = leveldb.Open(storage.NewMemStorage(), o)
	} else {
		db, err = leveldb.OpenFile(options.DBPath, o)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "leveldb.Open failed. path: %s", options.DBPath)
	}

	return &LevelDBStore[K, V]{
		codec:        c,
		db:           db,
		writeOptions: &opt.WriteOptions{Sync: options.Sync},
	}, nil
}

func (s *LevelDBStore[K, V]) Set(ctx context.Context, key K, value V, opts ...setOption) error {
	options := newSetOptions(opts)

	keyBytes, valBytes, err := s.encode(key, value)
	if err != nil {
		return err
	}

	if options.IfNotExist {
		// leveldb 没有条件写，用事务保证检查与写入的原子性
		tr, err := s.db.OpenTransaction()
		if err != nil {
			return errors.Wrap(err, "leveldb.OpenTransaction failed")
		}
		exists, err := tr.Has(keyBytes, nil)
		if err != nil {
			tr.Discard()
			return errors.Wrap(err, "leveldb.Has failed")
		}
		if exists {
			tr.Discard()
			return ErrConditionFailed
		}
		if err := tr.Put(keyBytes, valBytes, s.writeOptions); err != nil {
			tr.Discard()
			return errors.Wrap(err, "leveldb.Put failed")
		}
		return errors.Wrap(tr.Commit(), "leveldb.Commit failed")
	}

	return errors.Wrap(s.db.Put(keyBytes, valBytes, s.writeOptions), "leveldb.Put failed")
}

func (s *LevelDBStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	keyBytes, err := s.encodeKey(key)
	if err != nil {
		return zero, err
	}
	valBytes, err := s.db.Get(keyBytes, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return zero, ErrKeyNotFound
	}
	if err != nil {
		return zero, errors.Wrap(err, "leveldb.Get failed")
	}
	return s.decodeValue(valBytes)
}

func (s *LevelDBStore[K, V]) Del(ctx context.Context, key K) error {
	keyBytes, err := s.encodeKey(key)
	if err != nil {
		return err
	}
	return errors.Wrap(s.db.Delete(keyBytes, s.writeOptions), "leveldb.Delete failed")
}

func (s *LevelDBStore[K, V]) Close() error {
	return s.db.Close()
}
