package driver

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ObserveOptions struct {
	// EnableMetrics 是否启用 prometheus 指标
	EnableMetrics bool `cfg:"enableMetrics"`

	// EnableTracing 是否为每条语句创建 span
	EnableTracing bool `cfg:"enableTracing"`

	// Name 指标名前缀和 tracer 名
	Name string `cfg:"name" def:"webdb" validate:"omitempty,identifier"`
}

// ObserveMetrics 语句执行的 prometheus 指标
type ObserveMetrics struct {
	statementCounter   *prometheus.CounterVec
	statementDuration  *prometheus.HistogramVec
	activeTransactions *prometheus.GaugeVec
}

// registerCollector 同名指标已经注册过时复用已有的 collector
func registerCollector[T prometheus.Collector](c T) (T, error) {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func NewObserveMetrics(name string) (*ObserveMetrics, error) {
	var err error
	metrics := &ObserveMetrics{}

	metrics.statementCounter, err = registerCollector(prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name + "_statements_total",
			Help: "Total number of executed statements",
		},
		[]string{"driver", "operation", "status"},
	))
	if err != nil {
		return nil, errors.Wrap(err, "register statement counter failed")
	}

	metrics.statementDuration, err = registerCollector(prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name + "_statement_duration_seconds",
			Help:    "Duration of executed statements in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"driver", "operation"},
	))
	if err != nil {
		return nil, errors.Wrap(err, "register statement duration failed")
	}

	metrics.activeTransactions, err = registerCollector(prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name + "_active_transactions",
			Help: "Number of open outermost transactions",
		},
		[]string{"driver"},
	))
	if err != nil {
		return nil, errors.Wrap(err, "register active transactions failed")
	}

	return metrics, nil
}

// Observer 为语句执行添加指标和链路追踪，未启用的维度不做任何事
type Observer struct {
	driver  string
	name    string
	metrics *ObserveMetrics
	tracer  trace.Tracer
}

func NewObserverWithOptions(driver string, options *ObserveOptions) (*Observer, error) {
	if options == nil {
		options = &ObserveOptions{}
	}
	name := options.Name
	if name == "" {
		name = "webdb"
	}

	obs := &Observer{driver: driver, name: name}
	if options.EnableMetrics {
		metrics, err := NewObserveMetrics(name)
		if err != nil {
			return nil, err
		}
		obs.metrics = metrics
	}
	if options.EnableTracing {
		obs.tracer = otel.Tracer(name + "." + driver)
	}
	return obs, nil
}

// Observe 执行 fn 并记录耗时和结果
func (obs *Observer) Observe(ctx context.Context, operation string, sql string, fn func(context.Context) error) error {
	start := time.Now()

	var span trace.Span
	if obs.tracer != nil {
		ctx, span = obs.tracer.Start(ctx, obs.name+"."+operation,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("db.system", obs.driver),
				attribute.String("db.operation", operation),
				attribute.String("db.statement", sql),
			),
		)
		defer span.End()
	}

	err := fn(ctx)
	duration := time.Since(start)

	if span != nil {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if obs.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		obs.metrics.statementCounter.WithLabelValues(obs.driver, operation, status).Inc()
		obs.metrics.statementDuration.WithLabelValues(obs.driver, operation).Observe(duration.Seconds())
	}

	return err
}

func (obs *Observer) TransactionStarted() {
	if obs.metrics != nil {
		obs.metrics.activeTransactions.WithLabelValues(obs.driver).Inc()
	}
}

func (obs *Observer) TransactionFinished() {
	if obs.metrics != nil {
		obs.metrics.activeTransactions.WithLabelValues(obs.driver).Dec()
	}
}
