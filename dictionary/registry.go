package dictionary

import (
	"context"
	"sync"

	"github.com/hatlonely/tablekit/handler"
	"github.com/hatlonely/tablekit/log"
	"github.com/hatlonely/tablekit/mapping"
	"github.com/hatlonely/tablekit/query"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Registry 按表缓存 TableHandler，元数据或映射变化时使旧的 handler 失效
type Registry struct {
	dictionary  Dictionary
	handlerOpts []handler.Option
	logger      log.Logger

	mu       sync.RWMutex
	handlers map[string]*handler.TableHandler
	mappings map[string]*mapping.TableMapping
	// generations 按表名计数的失效次数，构建期间发生失效时不缓存构建结果
	generations map[string]uint64
	watchers    []*mapping.Watcher
	group       singleflight.Group
}

// maxBuildAttempts 构建期间反复失效时的重试上限
const maxBuildAttempts = 3

type RegistryOption func(*Registry)

// WithHandlerOptions 构建 handler 时使用的选项
func WithHandlerOptions(opts ...handler.Option) RegistryOption {
	return func(r *Registry) {
		r.handlerOpts = append(r.handlerOpts, opts...)
	}
}

func WithRegistryLogger(logger log.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry dictionary 为 CachedDictionary 时订阅其失效通知
func NewRegistry(dictionary Dictionary, opts ...RegistryOption) *Registry {
	r := &Registry{
		dictionary: dictionary,
		logger:     log.Default(),
		handlers:   map[string]*handler.TableHandler{},
		mappings:   map[string]*mapping.TableMapping{},

		generations: map[string]uint64{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithGroup("registry")
	if cd, ok := dictionary.(*CachedDictionary); ok {
		cd.OnInvalidate(r.evict)
	}
	return r
}

// RegisterMapping 注册表映射，替换同名表的映射并使已有 handler 失效
func (r *Registry) RegisterMapping(tm *mapping.TableMapping) error {
	if tm == nil {
		return errors.New("mapping cannot be nil")
	}
	if err := tm.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.mappings[tm.QualifiedName()] = tm.Clone()
	r.mu.Unlock()

	r.evict(tm.Database, tm.Table)
	r.logger.Info("table mapping registered", "table", tm.QualifiedName())
	return nil
}

func (r *Registry) mappingFor(database, table string) *mapping.TableMapping {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tm, ok := r.mappings[qualifiedName(database, table)]; ok {
		return tm
	}
	// 不带库名的映射适用于任意库
	return r.mappings[table]
}

// GetTableHandler 返回表的 handler，首次访问时读取元数据并解析映射
func (r *Registry) GetTableHandler(ctx context.Context, database, table string) (*handler.TableHandler, error) {
	key := qualifiedName(database, table)

	r.mu.RLock()
	h, ok := r.handlers[key]
	r.mu.RUnlock()
	if ok && h.IsValid() {
		registryHandlers.WithLabelValues("hit").Inc()
		return h, nil
	}

	// 调用方取消不影响共享同一次构建的其他调用方
	buildCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.build(buildCtx, database, table)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "get table handler %s failed", key)
	}
	return v.(*handler.TableHandler), nil
}

// build 读取元数据并解析映射，构建期间表被失效则丢弃结果重新构建
func (r *Registry) build(ctx context.Context, database, table string) (*handler.TableHandler, error) {
	key := qualifiedName(database, table)
	var h *handler.TableHandler
	for attempt := 1; attempt <= maxBuildAttempts; attempt++ {
		r.mu.RLock()
		gen := r.generations[table]
		r.mu.RUnlock()

		tm, err := r.dictionary.GetTableMetadata(ctx, database, table)
		if err != nil {
			return nil, err
		}
		h = handler.New(tm, r.mappingFor(database, table), r.handlerOpts...)
		if err := h.Err(); err != nil {
			return nil, err
		}

		r.mu.Lock()
		current := r.generations[table] == gen
		if current {
			r.handlers[key] = h
		}
		r.mu.Unlock()
		if current {
			registryHandlers.WithLabelValues("build").Inc()
			r.logger.DebugContext(ctx, "table handler built", "table", key)
			return h, nil
		}
		registryHandlers.WithLabelValues("stale").Inc()
		r.logger.DebugContext(ctx, "table invalidated during build", "table", key, "attempt", attempt)
	}
	// 一直在失效，返回最后一次的结果但不缓存
	return h, nil
}

// DomainType 表的查询域
func (r *Registry) DomainType(ctx context.Context, database, table string, opts ...query.DomainOption) (*query.DomainType, error) {
	h, err := r.GetTableHandler(ctx, database, table)
	if err != nil {
		return nil, err
	}
	return query.NewDomainType(h, opts...)
}

// Invalidate 表结构变化后调用，元数据缓存和 handler 一起失效
func (r *Registry) Invalidate(ctx context.Context, database, table string) error {
	if cd, ok := r.dictionary.(*CachedDictionary); ok {
		return cd.Invalidate(ctx, database, table)
	}
	r.evict(database, table)
	return nil
}

func (r *Registry) evict(database, table string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.generations[table]++

	// 不带库名的映射变化影响所有库中的同名表
	for key, h := range r.handlers {
		t := h.Table()
		if t.Name != table || (database != "" && t.Database != database && key != qualifiedName(database, table)) {
			continue
		}
		h.Invalidate()
		delete(r.handlers, key)
		r.group.Forget(key)
		r.logger.Debug("table handler invalidated", "table", key)
	}
}

// WatchMapping 监听映射文件，变化时重新注册映射
func (r *Registry) WatchMapping(path string, opts ...mapping.WatchOption) error {
	tm, err := mapping.LoadFile(path)
	if err != nil {
		return err
	}
	if err := r.RegisterMapping(tm); err != nil {
		return err
	}

	w, err := mapping.Watch(path, func(tm *mapping.TableMapping, err error) {
		if err != nil {
			r.logger.Warn("mapping reload failed, keeping previous mapping", "path", path, "error", err)
			return
		}
		if err := r.RegisterMapping(tm); err != nil {
			r.logger.Warn("register reloaded mapping failed", "path", path, "error", err)
		}
	}, append([]mapping.WatchOption{mapping.WithWatchLogger(r.logger)}, opts...)...)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.watchers = append(r.watchers, w)
	r.mu.Unlock()
	return nil
}

// Close 停止所有映射文件监听
func (r *Registry) Close() error {
	r.mu.Lock()
	watchers := r.watchers
	r.watchers = nil
	r.mu.Unlock()

	var errs []error
	for _, w := range watchers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("close watchers failed: %v", errs)
	}
	return nil
}
