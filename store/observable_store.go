package store

import (
	"context"
	"time"

	"github.com/hatlonely/tablekit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ObservableStoreOptions struct {
	// Name 组件名称，作为指标名前缀、日志 component 字段和 span 属性
	Name string `cfg:"name" def:"store"`

	EnableMetrics bool `cfg:"enableMetrics" def:"true"`
	EnableLogging bool `cfg:"enableLogging" def:"true"`
	EnableTracing bool `cfg:"enableTracing" def:"false"`

	// Logger 为空时使用 log.Default()
	Logger *log.Options `cfg:"logger"`
}

// ObservableMetrics 封装 prometheus 指标
type ObservableMetrics struct {
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	activeOperations  *prometheus.GaugeVec
}

// NewObservableMetrics 创建并注册指标，同名指标已注册时复用已有的收集器
func NewObservableMetrics(name string) *ObservableMetrics {
	return &ObservableMetrics{
		operationCounter: registerOrReuse(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_operations_total",
				Help: "Total number of store operations",
			},
			[]string{"operation", "status"},
		)),
		operationDuration: registerOrReuse(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_operation_duration_seconds",
				Help:    "Duration of store operations in seconds",
				Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation"},
		)),
		activeOperations: registerOrReuse(prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: name + "_active_operations",
				Help: "Number of active store operations",
			},
			[]string{"operation"},
		)),
	}
}

func registerOrReuse[C prometheus.Collector](c C) C {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObservableStore 装饰器，为任何 Store 添加指标、日志和追踪
type ObservableStore[K, V any] struct {
	store Store[K, V]

	logger  log.Logger
	metrics *ObservableMetrics
	tracer  trace.Tracer
	name    string
}

func NewObservableStore[K, V any](store Store[K, V], options *ObservableStoreOptions) (*ObservableStore[K, V], error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if options == nil {
		options = &ObservableStoreOptions{Name: "store", EnableMetrics: true, EnableLogging: true}
	}
	name := options.Name
	if name == "" {
		name = "store"
	}

	obs := &ObservableStore[K, V]{store: store, name: name}

	if options.EnableLogging {
		obs.logger = log.Default()
		if options.Logger != nil {
			l, err := log.NewLoggerWithOptions(options.Logger)
			if err != nil {
				return nil, errors.WithMessage(err, "failed to create logger")
			}
			obs.logger = l
		}
		obs.logger = obs.logger.WithGroup("observableStore")
	}
	if options.EnableMetrics {
		obs.metrics = NewObservableMetrics(name)
	}
	if options.EnableTracing {
		obs.tracer = otel.Tracer("store." + name)
	}

	return obs, nil
}

// Unwrap 返回被包装的存储
func (obs *ObservableStore[K, V]) Unwrap() Store[K, V] {
	return obs.store
}

func (obs *ObservableStore[K, V]) observe(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()

	var span trace.Span
	if obs.tracer != nil {
		ctx, span = obs.tracer.Start(ctx, "store."+operation,
			trace.WithAttributes(
				attribute.String("component", obs.name),
				attribute.String("operation", operation),
			),
		)
		defer span.End()
	}

	if obs.metrics != nil {
		obs.metrics.activeOperations.WithLabelValues(operation).Inc()
		defer obs.metrics.activeOperations.WithLabelValues(operation).Dec()
	}

	err := fn(ctx)
	duration := time.Since(start)

	// 未命中是正常结果，不算失败
	failed := err != nil && !errors.Is(err, ErrKeyNotFound) && !errors.Is(err, ErrConditionFailed)

	if span != nil {
		if failed {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if obs.metrics != nil {
		status := "success"
		switch {
		case failed:
			status = "error"
		case err != nil:
			status = "miss"
		}
		obs.metrics.operationCounter.WithLabelValues(operation, status).Inc()
		obs.metrics.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	if obs.logger != nil {
		if failed {
			obs.logger.ErrorContext(ctx, "store operation failed",
				"component", obs.name,
				"operation", operation,
				"duration_ms", duration.Milliseconds(),
				"error", err.Error(),
			)
		} else {
			obs.logger.DebugContext(ctx, "store operation completed",
				"component", obs.name,
				"operation", operation,
				"duration_ms", duration.Milliseconds(),
			)
		}
	}

	return err
}

func (obs *ObservableStore[K, V]) Set(ctx context.Context, key K, value V, opts ...setOption) error {
	return obs.observe(ctx, "set", func(ctx context.Context) error {
		return obs.store.Set(ctx, key, value, opts...)
	})
}

func (obs *ObservableStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var result V
	err := obs.observe(ctx, "get", func(ctx context.Context) error {
		var err error
		result, err = obs.store.Get(ctx, key)
		return err
	})
	return result, err
}

func (obs *ObservableStore[K, V]) Del(ctx context.Context, key K) error {
	return obs.observe(ctx, "del", func(ctx context.Context) error {
		return obs.store.Del(ctx, key)
	})
}

func (obs *ObservableStore[K, V]) Close() error {
	return obs.observe(context.Background(), "close", func(ctx context.Context) error {
		return obs.store.Close()
	})
}
