// Package sysinfo 提供调试代理的标准系统端点
//
// 端点以描述符形式暴露而不直接依赖路由器，由上层在挂载时注册。
// 所有处理器都是并发安全的，不需要亲和线程。
package sysinfo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dep2p/go-dep2p/pkg/lib/log"

	"github.com/dep2p/go-debugagent/internal/reqtrace"
	"github.com/dep2p/go-debugagent/pkg/types"
)

// Endpoint 一个可注册的系统端点
type Endpoint struct {
	Path        string
	Description string
	Parameters  []types.ParameterInfo
	Affinity    bool
	Handler     func(ctx context.Context, req *types.Request) *types.Response
}

// ============================================================================
//                              配置
// ============================================================================

// Config 系统端点配置
type Config struct {
	// Recorder 最近请求记录器，nil 时不提供 /requests 端点
	Recorder *reqtrace.Recorder

	// Clock 时钟源，nil 时使用真实时钟
	Clock clock.Clock
}

// Option 配置选项
type Option func(*Config)

// WithRecorder 接入最近请求记录器
func WithRecorder(rec *reqtrace.Recorder) Option {
	return func(c *Config) {
		c.Recorder = rec
	}
}

// WithClock 注入时钟源
func WithClock(clk clock.Clock) Option {
	return func(c *Config) {
		c.Clock = clk
	}
}

// ============================================================================
//                              Provider
// ============================================================================

// Provider 系统端点提供者
type Provider struct {
	recorder  *reqtrace.Recorder
	clock     clock.Clock
	startTime time.Time

	mu    sync.Mutex
	level string
}

// New 创建系统端点提供者，启动时刻取当前时间
func New(opts ...Option) *Provider {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	return &Provider{
		recorder:  cfg.Recorder,
		clock:     cfg.Clock,
		startTime: cfg.Clock.Now(),
		level:     "info",
	}
}

// Endpoints 返回全部系统端点
//
// 未配置记录器时不包含 /requests。
func (p *Provider) Endpoints() []Endpoint {
	eps := []Endpoint{
		{
			Path:        "/runtime",
			Description: "Go 运行时快照：协程数、内存、GC 与进程信息",
			Handler:     p.handleRuntime,
		},
		{
			Path:        "/health",
			Description: "存活检查",
			Handler:     p.handleHealth,
		},
		{
			Path:        "/loglevel",
			Description: "查看或调整日志级别",
			Parameters: []types.ParameterInfo{
				{
					Name:        "level",
					Description: "要切换到的级别，省略时返回当前级别",
					Examples:    []string{"debug", "info", "warn", "error"},
				},
			},
			Handler: p.handleLogLevel,
		},
	}

	if p.recorder != nil {
		eps = append(eps, Endpoint{
			Path:        "/requests",
			Description: "最近处理过的请求记录，从旧到新排列",
			Handler:     p.handleRequests,
		})
	}
	return eps
}

// ============================================================================
//                              响应结构
// ============================================================================

// RuntimeInfo 运行时信息
type RuntimeInfo struct {
	GoVersion     string `json:"go_version"`
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	PID           int    `json:"pid"`
	NumCPU        int    `json:"num_cpu"`
	GoMaxProcs    int    `json:"gomaxprocs"`
	NumGoroutine  int    `json:"num_goroutine"`
	MemAlloc      uint64 `json:"mem_alloc"`
	MemTotalAlloc uint64 `json:"mem_total_alloc"`
	MemSys        uint64 `json:"mem_sys"`
	HeapObjects   uint64 `json:"heap_objects"`
	NumGC         uint32 `json:"num_gc"`
	Uptime        string `json:"uptime"`
}

// HealthInfo 健康检查响应
type HealthInfo struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}

// LevelInfo 日志级别响应
type LevelInfo struct {
	Level string   `json:"level"`
	Valid []string `json:"valid,omitempty"`
}

// RequestLog 最近请求响应
type RequestLog struct {
	Count    int              `json:"count"`
	Requests []reqtrace.Entry `json:"requests"`
}

// ============================================================================
//                              处理器
// ============================================================================

// handleRuntime 返回运行时快照
func (p *Provider) handleRuntime(_ context.Context, _ *types.Request) *types.Response {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return types.JSON(RuntimeInfo{
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		PID:           os.Getpid(),
		NumCPU:        runtime.NumCPU(),
		GoMaxProcs:    runtime.GOMAXPROCS(0),
		NumGoroutine:  runtime.NumGoroutine(),
		MemAlloc:      memStats.Alloc,
		MemTotalAlloc: memStats.TotalAlloc,
		MemSys:        memStats.Sys,
		HeapObjects:   memStats.HeapObjects,
		NumGC:         memStats.NumGC,
		Uptime:        p.uptime(),
	})
}

// handleHealth 返回存活状态
func (p *Provider) handleHealth(_ context.Context, _ *types.Request) *types.Response {
	return types.JSON(HealthInfo{
		Status:    "ok",
		Timestamp: p.clock.Now(),
		Uptime:    p.uptime(),
	})
}

// handleLogLevel 查看或调整全局日志级别
//
// 级别作用于进程全局的默认 logger，对所有组件立即生效。
func (p *Provider) handleLogLevel(_ context.Context, req *types.Request) *types.Response {
	name := req.QueryValue("level")
	if name == "" {
		p.mu.Lock()
		current := p.level
		p.mu.Unlock()
		return types.JSON(LevelInfo{Level: current, Valid: validLevels()})
	}

	level, ok := parseLevel(name)
	if !ok {
		return types.BadRequest(fmt.Sprintf("unknown log level %q, valid levels: debug, info, warn, error", name))
	}

	log.SetLevel(level)
	p.mu.Lock()
	p.level = name
	p.mu.Unlock()

	logger.Info("日志级别已调整", "level", name)
	return types.JSON(LevelInfo{Level: name})
}

// handleRequests 返回最近请求记录
func (p *Provider) handleRequests(_ context.Context, _ *types.Request) *types.Response {
	entries := p.recorder.Snapshot()
	if entries == nil {
		entries = []reqtrace.Entry{}
	}
	return types.JSON(RequestLog{
		Count:    len(entries),
		Requests: entries,
	})
}

// ============================================================================
//                              辅助函数
// ============================================================================

var logger = log.Logger("sysinfo")

// uptime 返回自创建以来经过的时间
func (p *Provider) uptime() string {
	return p.clock.Now().Sub(p.startTime).String()
}

// parseLevel 把级别名解析为 slog 级别
func parseLevel(name string) (slog.Level, bool) {
	switch name {
	case "debug":
		return log.LevelDebug, true
	case "info":
		return log.LevelInfo, true
	case "warn":
		return log.LevelWarn, true
	case "error":
		return log.LevelError, true
	default:
		return 0, false
	}
}

// validLevels 返回可用级别名
func validLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}
