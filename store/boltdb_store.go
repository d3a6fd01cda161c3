package store

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

type BoltDBStoreOptions struct {
	// 数据库文件路径，目录不存在时自动创建
	DBPath string `cfg:"dbPath" validate:"required"`

	KeySerializer string `cfg:"keySerializer" validate:"omitempty,oneof=json msgpack bson"`
	ValSerializer string `cfg:"valSerializer" validate:"omitempty,oneof=json msgpack bson"`

	// 获取文件锁的等待时间，0 表示无限期等待
	Timeout time.Duration `cfg:"timeout" def:"1s"`

	NoGrowSync     bool `cfg:"noGrowSync"`
	NoFreelistSync bool `cfg:"noFreelistSync"`
	// array 或 hashmap，默认 array
	FreelistType string `cfg:"freelistType" validate:"omitempty,oneof=array hashmap"`
	ReadOnly     bool   `cfg:"readOnly"`
	NoSync       bool   `cfg:"noSync"`

	BucketName string `cfg:"bucketName" def:"default"`
}

// BoltDBStore 单文件持久化存储，不支持过期
type BoltDBStore[K, V any] struct {
	codec[K, V]
	db         *bolt.DB
	bucketName []byte
}

func NewBoltDBStoreWithOptions[K, V any](options *BoltDBStoreOptions) (*BoltDBStore[K, V], error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}
	c, err := newCodec[K, V](options.KeySerializer, options.ValSerializer)
	if err != nil {
		return nil, err
	}

	directory := filepath.Dir(options.DBPath)
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, errors.Wrapf(err, "os.MkdirAll failed. directory: %s", directory)
	}

	db, err := bolt.Open(options.DBPath, 0600, &bolt.Options{
		Timeout:        options.Timeout,
		NoGrowSync:     options.NoGrowSync,
		NoFreelistSync: options.NoFreelistSync,
		FreelistType:   bolt.FreelistType(options.FreelistType),
		ReadOnly:       options.ReadOnly,
		NoSync:         options.NoSync,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "bolt.Open failed. dbPath: %s", options.DBPath)
	}

	bucketName := options.BucketName
	if bucketName == "" {
		bucketName = "default"
	}
	store := &BoltDBStore[K, V]{
		codec:      c,
		db:         db,
		bucketName: []byte(bucketName),
	}

	if !options.ReadOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(store.bucketName)
			return err
		})
		if err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "create bucket failed")
		}
	}

	return store, nil
}

func (s *BoltDBStore[K, V]) Set(ctx context.Context, key K, value V, opts ...setOption) error {
	options := newSetOptions(opts)

	keyBytes, valBytes, err := s.encode(key, value)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.bucketName)
		if bucket == nil {
			return errors.New("bucket not found")
		}
		if options.IfNotExist && bucket.Get(keyBytes) != nil {
			return ErrConditionFailed
		}
		return bucket.Put(keyBytes, valBytes)
	})
}

func (s *BoltDBStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	keyBytes, err := s.encodeKey(key)
	if err != nil {
		return zero, err
	}

	var valBytes []byte
	err = s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.bucketName)
		if bucket == nil {
			return errors.New("bucket not found")
		}
		data := bucket.Get(keyBytes)
		if data == nil {
			return ErrKeyNotFound
		}
		// 事务结束后 data 不再有效
		valBytes = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return zero, err
	}
	return s.decodeValue(valBytes)
}

func (s *BoltDBStore[K, V]) Del(ctx context.Context, key K) error {
	keyBytes, err := s.encodeKey(key)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.bucketName)
		if bucket == nil {
			return errors.New("bucket not found")
		}
		return bucket.Delete(keyBytes)
	})
}

func (s *BoltDBStore[K, V]) Close() error {
	return s.db.Close()
}
