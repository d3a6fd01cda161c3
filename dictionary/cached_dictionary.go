package dictionary

import (
	"context"
	"sync"
	"time"

	"github.com/hatlonely/tablekit/log"
	"github.com/hatlonely/tablekit/meta"
	"github.com/hatlonely/tablekit/store"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

type CachedDictionaryOptions struct {
	// 元数据缓存，默认进程内 map
	Store *store.Options `cfg:"store"`
	// 缓存过期时间，0 表示直到 Invalidate 才失效
	TTL           time.Duration `cfg:"ttl"`
	EnableTracing bool          `cfg:"enableTracing"`
}

// CachedDictionary 缓存表元数据，同一张表同时只有一个加载请求
type CachedDictionary struct {
	dictionary Dictionary
	cache      store.Store[string, *meta.TableMetadata]
	group      singleflight.Group
	ttl        time.Duration
	tracer     trace.Tracer
	logger     log.Logger

	mu        sync.RWMutex
	listeners []func(database, table string)
}

type CachedOption func(*CachedDictionary)

func WithTTL(ttl time.Duration) CachedOption {
	return func(d *CachedDictionary) {
		d.ttl = ttl
	}
}

func WithTracing() CachedOption {
	return func(d *CachedDictionary) {
		d.tracer = otel.Tracer("tablekit/dictionary")
	}
}

func WithCachedLogger(logger log.Logger) CachedOption {
	return func(d *CachedDictionary) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewCachedDictionary cache 为 nil 时使用进程内 map
func NewCachedDictionary(dictionary Dictionary, cache store.Store[string, *meta.TableMetadata], opts ...CachedOption) *CachedDictionary {
	if cache == nil {
		cache = store.NewMapStoreWithOptions[string, *meta.TableMetadata](nil)
	}
	d := &CachedDictionary{
		dictionary: dictionary,
		cache:      cache,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithGroup("cachedDictionary")
	return d
}

func NewCachedDictionaryWithOptions(dictionary Dictionary, options *CachedDictionaryOptions) (*CachedDictionary, error) {
	if dictionary == nil {
		return nil, errors.New("dictionary cannot be nil")
	}
	if options == nil {
		options = &CachedDictionaryOptions{}
	}
	var cache store.Store[string, *meta.TableMetadata]
	if options.Store != nil {
		var err error
		cache, err = store.NewStoreWithOptions[string, *meta.TableMetadata](options.Store)
		if err != nil {
			return nil, errors.WithMessage(err, "create metadata cache failed")
		}
	}
	opts := []CachedOption{WithTTL(options.TTL)}
	if options.EnableTracing {
		opts = append(opts, WithTracing())
	}
	return NewCachedDictionary(dictionary, cache, opts...), nil
}

func (d *CachedDictionary) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if d.tracer == nil {
		return ctx, nil
	}
	return d.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (d *CachedDictionary) ListTables(ctx context.Context, database string) (tables []string, err error) {
	ctx, span := d.startSpan(ctx, "dictionary.ListTables", attribute.String("database", database))
	defer func() { endSpan(span, err) }()

	listTablesTotal.Inc()
	return d.dictionary.ListTables(ctx, database)
}

func (d *CachedDictionary) GetTableMetadata(ctx context.Context, database, table string) (tm *meta.TableMetadata, err error) {
	key := qualifiedName(database, table)
	ctx, span := d.startSpan(ctx, "dictionary.GetTableMetadata", attribute.String("table", key))
	defer func() { endSpan(span, err) }()

	tm, err = d.cache.Get(ctx, key)
	if err == nil {
		metadataRequests.WithLabelValues("hit").Inc()
		if span != nil {
			span.SetAttributes(attribute.Bool("cache_hit", true))
		}
		return tm, nil
	}
	if !errors.Is(err, store.ErrKeyNotFound) {
		// 缓存故障时直接读数据库
		d.logger.WarnContext(ctx, "metadata cache get failed", "table", key, "error", err)
	}

	// 调用方取消不应影响共享同一次加载的其他调用方
	loadCtx := context.WithoutCancel(ctx)
	v, err, shared := d.group.Do(key, func() (any, error) {
		start := time.Now()
		tm, err := d.dictionary.GetTableMetadata(loadCtx, database, table)
		metadataLoadDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		if err := d.setCache(loadCtx, key, tm); err != nil {
			d.logger.WarnContext(loadCtx, "metadata cache set failed", "table", key, "error", err)
		}
		d.logger.DebugContext(loadCtx, "table metadata cached", "table", key, "duration_ms", time.Since(start).Milliseconds())
		return tm, nil
	})
	if err != nil {
		metadataRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	if shared {
		metadataRequests.WithLabelValues("shared").Inc()
	} else {
		metadataRequests.WithLabelValues("load").Inc()
	}
	return v.(*meta.TableMetadata), nil
}

func (d *CachedDictionary) setCache(ctx context.Context, key string, tm *meta.TableMetadata) error {
	if d.ttl > 0 {
		return d.cache.Set(ctx, key, tm, store.WithExpiration(d.ttl))
	}
	return d.cache.Set(ctx, key, tm)
}

// OnInvalidate 注册失效回调，Invalidate 时按注册顺序调用
func (d *CachedDictionary) OnInvalidate(fn func(database, table string)) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.listeners = append(d.listeners, fn)
	d.mu.Unlock()
}

// Invalidate 丢弃表元数据缓存，下次访问重新读取数据库
func (d *CachedDictionary) Invalidate(ctx context.Context, database, table string) error {
	key := qualifiedName(database, table)
	invalidationsTotal.Inc()
	d.group.Forget(key)
	if err := d.cache.Del(ctx, key); err != nil {
		return errors.WithMessagef(err, "invalidate %s failed", key)
	}
	d.logger.InfoContext(ctx, "table metadata invalidated", "table", key)

	d.mu.RLock()
	listeners := append([]func(string, string){}, d.listeners...)
	d.mu.RUnlock()
	for _, fn := range listeners {
		fn(database, table)
	}
	return nil
}

func (d *CachedDictionary) Close() error {
	return d.cache.Close()
}
