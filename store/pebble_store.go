package store

import (
	"context"
	"sync"

	"github.com/cockroachdb/fifo"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
)

type PebbleStoreOptions struct {
	// 数据库目录，InMemory 为 true 时只作为内存文件系统中的名字
	DBPath   string `cfg:"dbPath" validate:"required"`
	InMemory bool   `cfg:"inMemory"`

	KeySerializer string `cfg:"keySerializer" validate:"omitempty,oneof=json msgpack bson"`
	ValSerializer string `cfg:"valSerializer" validate:"omitempty,oneof=json msgpack bson"`

	// 块缓存大小，0 使用 pebble 默认的 8MB
	CacheSize int64 `cfg:"cacheSize"`
	// 限制并行从文件系统加载的块数，0 表示不限制
	LoadBlockSemaCapacity int64 `cfg:"loadBlockSemaCapacity"`

	MemTableSize     uint64 `cfg:"memTableSize"`
	MaxOpenFiles     int    `cfg:"maxOpenFiles"`
	DisableWAL       bool   `cfg:"disableWAL"`
	ReadOnly         bool   `cfg:"readOnly"`
	ErrorIfNotExists bool   `cfg:"errorIfNotExists"`
	// 写入不等待 fsync
	SetWithoutSync bool `cfg:"setWithoutSync"`
}

// PebbleStore 不支持过期
type PebbleStore[K, V any] struct {
	codec[K, V]
	db           *pebble.DB
	writeOptions *pebble.WriteOptions
	// pebble 没有条件写，串行化 IfNotExist 的检查与写入
	mu sync.Mutex
}

func NewPebbleStoreWithOptions[K, V any](options *PebbleStoreOptions) (*PebbleStore[K, V], error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}
	c, err := newCodec[K, V](options.KeySerializer, options.ValSerializer)
	if err != nil {
		return nil, err
	}

	pebbleOptions := &pebble.Options{
		MemTableSize:     options.MemTableSize,
		MaxOpenFiles:     options.MaxOpenFiles,
		DisableWAL:       options.DisableWAL,
		ReadOnly:         options.ReadOnly,
		ErrorIfNotExists: options.ErrorIfNotExists,
	}
	if options.InMemory {
		pebbleOptions.FS = vfs.NewMem()
	}
	if options.CacheSize > 0 {
		cache := pebble.NewCache(options.CacheSize)
		defer cache.Unref()
		pebbleOptions.Cache = cache
	}
	if options.LoadBlockSemaCapacity > 0 {
		pebbleOptions.LoadBlockSema = fifo.NewSemaphore(options.LoadBlockSemaCapacity)
	}

	db, err := pebble.Open(options.DBPath, pebbleOptions)
	if err != nil {
		return nil, errors.Wrapf(err, "pebble.Open failed. dbPath: %s", options.DBPath)
	}

	writeOptions := pebble.Sync
	if options.SetWithoutSync {
		writeOptions = pebble.NoSync
	}

	return &PebbleStore[K, V]{
		codec:        c,
		db:           db,
		writeOptions: writeOptions,
	}, nil
}

func (s *PebbleStore[K, V]) Set(ctx context.Context, key K, value V, opts ...setOption) error {
	options := newSetOptions(opts)

	keyBytes, valBytes, err := s.encode(key, value)
	if err != nil {
		return err
	}

	if options.IfNotExist {
		s.mu.Lock()
		defer s.mu.Unlock()

		_, closer, err := s.db.Get(keyBytes)
		if err == nil {
			_ = closer.Close()
			return ErrConditionFailed
		}
		if !errors.Is(err, pebble.ErrNotFound) {
			return errors.Wrap(err, "pebble.Get failed")
		}
	}

	return errors.Wrap(s.db.Set(keyBytes, valBytes, s.writeOptions), "pebble.Set failed")
}

func (s *PebbleStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	keyBytes, err := s.encodeKey(key)
	if err != nil {
		return zero, err
	}
	data, closer, err := s.db.Get(keyBytes)
	if errors.Is(err, pebble.ErrNotFound) {
		return zero, ErrKeyNotFound
	}
	if err != nil {
		return zero, errors.Wrap(err, "pebble.Get failed")
	}
	// closer 关闭后 data 不再有效
	valBytes := append([]byte(nil), data...)
	if err := closer.Close(); err != nil {
		return zero, errors.Wrap(err, "closer.Close failed")
	}
	return s.decodeValue(valBytes)
}

func (s *PebbleStore[K, V]) Del(ctx context.Context, key K) error {
	keyBytes, err := s.encodeKey(key)
	if err != nil {
		return err
	}
	return errors.Wrap(s.db.Delete(keyBytes, s.writeOptions), "pebble.Delete failed")
}

func (s *PebbleStore[K, V]) Close() error {
	return s.db.Close()
}
