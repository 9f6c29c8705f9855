// Package metrics 提供请求分发的 Prometheus 指标
//
// Collector 由 Agent 创建并注入路由器；所有方法都允许 nil 接收者，
// 未启用指标时路由器无需做任何判断。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-debugagent/pkg/types"
)

// Collector 分发指标收集器
type Collector struct {
	dispatchTotal   *prometheus.CounterVec
	dispatchSeconds prometheus.Histogram
	inflight        prometheus.Gauge
	queueDepth      prometheus.Gauge
}

// NewCollector 创建收集器并注册到指定的 Registerer
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "debugagent",
			Name:      "dispatch_total",
			Help:      "Total number of dispatched requests by response status.",
		}, []string{"status"}),
		dispatchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "debugagent",
			Name:      "dispatch_seconds",
			Help:      "Handler execution time in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "debugagent",
			Name:      "dispatch_inflight",
			Help:      "Number of dispatches currently executing.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "debugagent",
			Name:      "affinity_queue_depth",
			Help:      "Number of tasks waiting in the affinity queue.",
		}),
	}

	collectors := []prometheus.Collector{
		c.dispatchTotal, c.dispatchSeconds, c.inflight, c.queueDepth,
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveDispatch 记录一次完成的分发
func (c *Collector) ObserveDispatch(status types.Status, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.dispatchTotal.WithLabelValues(status.String()).Inc()
	c.dispatchSeconds.Observe(elapsed.Seconds())
}

// IncInflight 增加执行中计数
func (c *Collector) IncInflight() {
	if c == nil {
		return
	}
	c.inflight.Inc()
}

// DecInflight 减少执行中计数
func (c *Collector) DecInflight() {
	if c == nil {
		return
	}
	c.inflight.Dec()
}

// SetQueueDepth 更新亲和队列深度
func (c *Collector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(n))
}
