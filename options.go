package debugagent

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-debugagent/pkg/interfaces"
	"github.com/dep2p/go-debugagent/transport/debugp2p"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// 路由配置
	router            *Router
	affinityQueueSize int

	// HTTP 传输配置
	http struct {
		enable bool
		addr   string
		pprof  bool
	}

	// P2P 传输配置
	p2p struct {
		enable bool
		opts   []debugp2p.Option
	}

	// 附加传输
	extraTransports []interfaces.Transport

	// 系统端点挂载前缀，空串表示不挂载
	systemPrefix string

	// 指标配置
	metrics struct {
		enable   bool
		registry *prometheus.Registry
	}

	// 最近请求记录
	trace struct {
		enable   bool
		capacity int
	}

	// 日志配置
	logFile     string
	logLevel    slog.Level
	logLevelSet bool
}

// newOptions 创建默认选项
func newOptions() *options {
	return &options{}
}

// ============================================================================
//                              路由选项
// ============================================================================

// WithRouter 使用预先构建的路由器
//
// 未指定时代理自动创建一个空路由器，可通过 Agent.Router() 获取后注册端点。
func WithRouter(r *Router) Option {
	return func(o *options) error {
		if r == nil {
			return ErrNilRouter
		}
		o.router = r
		return nil
	}
}

// WithAffinityQueueSize 设置内建路由器的亲和队列长度
//
// 仅对代理自建的路由器生效，与 WithRouter 同时使用时被忽略。
func WithAffinityQueueSize(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("亲和队列长度必须为正数: %d", n)
		}
		o.affinityQueueSize = n
		return nil
	}
}

// WithSystemRoutes 挂载标准系统端点
//
// prefix 为空时使用 "/sys"。端点包括 /runtime、/health、/loglevel，
// 开启请求记录后还包括 /requests。
func WithSystemRoutes(prefix string) Option {
	return func(o *options) error {
		if prefix == "" {
			prefix = "/sys"
		}
		if !strings.HasPrefix(prefix, "/") || prefix == "/" {
			return fmt.Errorf("%w: %q", ErrInvalidPath, prefix)
		}
		o.systemPrefix = prefix
		return nil
	}
}

// ============================================================================
//                              传输选项
// ============================================================================

// WithHTTP 启用 HTTP 调试传输
//
// addr 为空时监听默认的回环地址。
func WithHTTP(addr string) Option {
	return func(o *options) error {
		o.http.enable = true
		o.http.addr = addr
		return nil
	}
}

// WithPprof 在 HTTP 传输上暴露 pprof 端点
//
// 仅与 WithHTTP 搭配时生效。
func WithPprof() Option {
	return func(o *options) error {
		o.http.pprof = true
		return nil
	}
}

// WithP2P 启用 P2P 调试传输
//
// 传输细节通过 debugp2p 包的选项配置：
//
//	debugagent.New(
//	    debugagent.WithP2P(
//	        debugp2p.WithKeyPath("~/.myapp/debug.key"),
//	        debugp2p.WithListenPort(4002),
//	    ),
//	)
func WithP2P(opts ...debugp2p.Option) Option {
	return func(o *options) error {
		o.p2p.enable = true
		o.p2p.opts = append(o.p2p.opts, opts...)
		return nil
	}
}

// WithTransport 挂载自定义传输
//
// 传输需自行绑定路由器，代理只负责随启停调用其 Start/Stop。
func WithTransport(t interfaces.Transport) Option {
	return func(o *options) error {
		if t == nil {
			return ErrNilTransport
		}
		o.extraTransports = append(o.extraTransports, t)
		return nil
	}
}

// ============================================================================
//                              观测选项
// ============================================================================

// WithMetrics 启用分发指标
//
// 指标注册到独立的注册表，启用 HTTP 传输时通过 /metrics 暴露。
func WithMetrics() Option {
	return func(o *options) error {
		o.metrics.enable = true
		if o.metrics.registry == nil {
			o.metrics.registry = prometheus.NewRegistry()
		}
		return nil
	}
}

// WithMetricsRegistry 使用外部指标注册表
//
// 适合把分发指标并入应用已有的注册表。
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(o *options) error {
		if reg == nil {
			return fmt.Errorf("指标注册表不能为空")
		}
		o.metrics.enable = true
		o.metrics.registry = reg
		return nil
	}
}

// WithRequestTrace 记录最近处理过的请求
//
// capacity 小于等于 0 时使用默认容量。配合 WithSystemRoutes 后
// 可通过 /requests 端点查看。
func WithRequestTrace(capacity int) Option {
	return func(o *options) error {
		o.trace.enable = true
		o.trace.capacity = capacity
		return nil
	}
}

// ============================================================================
//                              日志选项
// ============================================================================

// WithLogFile 将日志输出重定向到文件
//
// 文件在创建代理时以追加模式打开，Close 时关闭。
func WithLogFile(path string) Option {
	return func(o *options) error {
		if path == "" {
			return fmt.Errorf("日志文件路径不能为空")
		}
		o.logFile = path
		return nil
	}
}

// WithLogLevel 设置日志级别
//
//	debugagent.New(debugagent.WithLogLevel(log.LevelDebug))
func WithLogLevel(level slog.Level) Option {
	return func(o *options) error {
		o.logLevel = level
		o.logLevelSet = true
		return nil
	}
}
