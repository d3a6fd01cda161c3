package store

import (
	"github.com/pkg/errors"
)

// Options 按 Type 选择后端，对应类型的子配置生效
type Options struct {
	Type string `cfg:"type" def:"map" validate:"oneof=map freecache redis boltdb leveldb pebble"`

	Map       *MapStoreOptions       `cfg:"map"`
	FreeCache *FreeCacheStoreOptions `cfg:"freeCache"`
	Redis     *RedisStoreOptions     `cfg:"redis"`
	BoltDB    *BoltDBStoreOptions    `cfg:"boltDB"`
	LevelDB   *LevelDBStoreOptions   `cfg:"levelDB"`
	Pebble    *PebbleStoreOptions    `cfg:"pebble"`

	// 不为空时用 ObservableStore 包装
	Observable *ObservableStoreOptions `cfg:"observable"`
}

func NewStoreWithOptions[K comparable, V any](options *Options) (Store[K, V], error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}

	store, err := newBackend[K, V](options)
	if err != nil {
		return nil, errors.WithMessagef(err, "create %s store failed", options.Type)
	}
	if options.Observable == nil {
		return store, nil
	}
	obs, err := NewObservableStore[K, V](store, options.Observable)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return obs, nil
}

func newBackend[K comparable, V any](options *Options) (Store[K, V], error) {
	switch options.Type {
	case "", "map":
		return NewMapStoreWithOptions[K, V](options.Map), nil
	case "freecache":
		if options.FreeCache == nil {
			return nil, errors.New("freeCache options are required")
		}
		return NewFreeCacheStoreWithOptions[K, V](options.FreeCache)
	case "redis":
		return NewRedisStoreWithOptions[K, V](options.Redis)
	case "boltdb":
		return NewBoltDBStoreWithOptions[K, V](options.BoltDB)
	case "leveldb":
		return NewLevelDBStoreWithOptions[K, V](options.LevelDB)
	case "pebble":
		return NewPebbleStoreWithOptions[K, V](options.Pebble)
	}
	return nil, errors.Errorf("unsupported store type %q", options.Type)
}
