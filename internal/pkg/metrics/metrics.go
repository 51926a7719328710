// internal/pkg/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// CheckoutMetrics 汇总了下单流程需要暴露的监控指标。
type CheckoutMetrics struct {
	Checkouts *prometheus.CounterVec
	Fatal     prometheus.Counter
	Refunds   *prometheus.CounterVec
	BasketOps *prometheus.CounterVec
	Duration  prometheus.Histogram
	Conflicts prometheus.Counter
}

// NewCheckoutMetrics 创建并注册指标。reg 为 nil 时使用默认注册表。
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &CheckoutMetrics{
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Checkout attempts by final state.",
		}, []string{"state"}),
		Fatal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_fatal_total",
			Help:      "Checkouts where the charge succeeded but the order could not be persisted.",
		}),
		Refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refund_total",
			Help:      "Refund attempts by result.",
		}, []string{"result"}),
		BasketOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "basket_ops_total",
			Help:      "Basket operations by operation and result.",
		}, []string{"op", "result"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_duration_seconds",
			Help:      "End to end checkout latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimistic_conflicts_total",
			Help:      "Optimistic concurrency conflicts observed on stock or basket rows.",
		}),
	}
	reg.MustRegister(m.Checkouts, m.Fatal, m.Refunds, m.BasketOps, m.Duration, m.Conflicts)
	return m
}

// Handler 返回 /metrics 的 HTTP 处理器。
func Handler() http.Handler {
	return promhttp.Handler()
}
