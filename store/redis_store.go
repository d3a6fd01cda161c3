package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisStoreOptions struct {
	// host:port 地址
	Endpoint string `cfg:"endpoint"`

	// 集群节点的 host:port 地址列表
	Endpoints []string `cfg:"endpoints"`

	// 键前缀，多个服务共用一个 redis 时用于隔离
	KeyPrefix string `cfg:"keyPrefix"`

	DefaultTTL time.Duration `cfg:"defaultTTL"`

	KeySerializer string `cfg:"keySerializer" validate:"omitempty,oneof=json msgpack bson"`
	ValSerializer string `cfg:"valSerializer" validate:"omitempty,oneof=json msgpack bson"`

	Username string `cfg:"username"`
	Password string `cfg:"password"`
	DB       int    `cfg:"db" def:"0"`

	// -1（不是 0）禁用重试
	MaxRetries int `cfg:"maxRetries" def:"3"`

	DialTimeout  time.Duration `cfg:"dialTimeout" def:"5s"`
	ReadTimeout  time.Duration `cfg:"readTimeout" def:"3s"`
	WriteTimeout time.Duration `cfg:"writeTimeout" def:"3s"`

	PoolSize        int           `cfg:"poolSize" def:"100"`
	PoolTimeout     time.Duration `cfg:"poolTimeout" def:"4s"`
	MinIdleConns    int           `cfg:"minIdleConns" def:"0"`
	MaxIdleConns    int           `cfg:"maxIdleConns" def:"0"`
	ConnMaxIdleTime time.Duration `cfg:"connMaxIdleTime" def:"30m"`

	MaxRedirects int `cfg:"maxRedirects" def:"3"`
}

type RedisStore[K, V any] struct {
	codec[K, V]
	client     redis.UniversalClient
	keyPrefix  string
	defaultTTL time.Duration
}

func NewRedisStoreWithOptions[K, V any](options *RedisStoreOptions) (*RedisStore[K, V], error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}
	c, err := newCodec[K, V](options.KeySerializer, options.ValSerializer)
	if err != nil {
		return nil, err
	}

	var client redis.UniversalClient
	if options.Endpoint != "" {
		client = redis.NewClient(&redis.Options{
			Addr:            options.Endpoint,
			Username:        options.Username,
			Password:        options.Password,
			DB:              options.DB,
			MaxRetries:      options.MaxRetries,
			DialTimeout:     options.DialTimeout,
			ReadTimeout:     options.ReadTimeout,
			WriteTimeout:    options.WriteTimeout,
			PoolSize:        options.PoolSize,
			PoolTimeout:     options.PoolTimeout,
			MinIdleConns:    options.MinIdleConns,
			MaxIdleConns:    options.MaxIdleConns,
			ConnMaxIdleTime: options.ConnMaxIdleTime,
		})
	} else if len(options.Endpoints) > 0 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:           options.Endpoints,
			Username:        options.Username,
			Password:        options.Password,
			MaxRetries:      options.MaxRetries,
			DialTimeout:     options.DialTimeout,
			ReadTimeout:     options.ReadTimeout,
			WriteTimeout:    options.WriteTimeout,
			PoolSize:        options.PoolSize,
			PoolTimeout:     options.PoolTimeout,
			MinIdleConns:    options.MinIdleConns,
			MaxIdleConns:    options.MaxIdleConns,
			ConnMaxIdleTime: options.ConnMaxIdleTime,
			MaxRedirects:    options.MaxRedirects,
		})
	} else {
		return nil, errors.New("Endpoint or Endpoints must be set")
	}

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WithMessage(err, "redis.client.Ping failed")
	}

	return &RedisStore[K, V]{
		codec:      c,
		client:     client,
		keyPrefix:  options.KeyPrefix,
		defaultTTL: options.DefaultTTL,
	}, nil
}

func (s *RedisStore[K, V]) key(key K) (string, error) {
	keyBytes, err := s.encodeKey(key)
	if err != nil {
		return "", err
	}
	return s.keyPrefix + string(keyBytes), nil
}

func (s *RedisStore[K, V]) Set(ctx context.Context, key K, value V, opts ...setOption) error {
	options := newSetOptions(opts)

	k, err := s.key(key)
	if err != nil {
		return err
	}
	valBytes, err := s.valSerializer.Serialize(value)
	if err != nil {
		return errors.Wrap(err, "marshal value failed")
	}

	expiration := options.Expiration
	if expiration == 0 {
		expiration = s.defaultTTL
	}

	if options.IfNotExist {
		ok, err := s.client.SetNX(ctx, k, valBytes, expiration).Result()
		if err != nil {
			return errors.Wrap(err, "redis.SetNX failed")
		}
		if !ok {
			return ErrConditionFailed
		}
		return nil
	}

	if err := s.client.Set(ctx, k, valBytes, expiration).Err(); err != nil {
		return errors.Wrap(err, "redis.Set failed")
	}
	return nil
}

func (s *RedisStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	k, err := s.key(key)
	if err != nil {
		return zero, err
	}
	valBytes, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, ErrKeyNotFound
	}
	if err != nil {
		return zero, errors.Wrap(err, "redis.Get failed")
	}
	return s.decodeValue(valBytes)
}

func (s *RedisStore[K, V]) Del(ctx context.Context, key K) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, k).Err(); err != nil {
		return errors.Wrap(err, "redis.Del failed")
	}
	return nil
}

func (s *RedisStore[K, V]) Close() error {
	return s.client.Close()
}
