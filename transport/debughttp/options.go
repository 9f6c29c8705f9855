package debughttp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultAddr 默认监听地址
//
// 只绑定回环接口：调试端点不做鉴权，不应暴露到外部网络。
const DefaultAddr = "127.0.0.1:6161"

// Config 服务配置
type Config struct {
	// Addr 监听地址，默认 "127.0.0.1:6161"
	Addr string

	// ReadTimeout 请求读取超时
	ReadTimeout time.Duration

	// WriteTimeout 响应写入超时
	WriteTimeout time.Duration

	// ShutdownTimeout Stop 未携带截止时间时的优雅关闭上限
	ShutdownTimeout time.Duration

	// EnablePprof 是否注册 /debug/pprof 端点
	EnablePprof bool

	// Gatherer 非 nil 时在 /metrics 暴露该指标集
	Gatherer prometheus.Gatherer
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Addr:            DefaultAddr,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Option 配置选项
type Option func(*Config)

// WithAddr 设置监听地址，如 "127.0.0.1:0" 表示随机端口
func WithAddr(addr string) Option {
	return func(c *Config) {
		if addr != "" {
			c.Addr = addr
		}
	}
}

// WithTimeouts 设置读写超时，非正值保持默认
func WithTimeouts(read, write time.Duration) Option {
	return func(c *Config) {
		if read > 0 {
			c.ReadTimeout = read
		}
		if write > 0 {
			c.WriteTimeout = write
		}
	}
}

// WithShutdownTimeout 设置优雅关闭上限
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ShutdownTimeout = d
		}
	}
}

// WithPprof 注册标准 pprof 端点
//
// pprof 路径以 /debug/pprof 开头，会遮蔽路由器中的同名端点。
func WithPprof() Option {
	return func(c *Config) {
		c.EnablePprof = true
	}
}

// WithMetricsGatherer 在 /metrics 暴露 Prometheus 指标
func WithMetricsGatherer(g prometheus.Gatherer) Option {
	return func(c *Config) {
		c.Gatherer = g
	}
}
