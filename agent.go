package debugagent

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dep2p/go-dep2p/pkg/lib/log"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-debugagent/internal/metrics"
	"github.com/dep2p/go-debugagent/internal/reqtrace"
	"github.com/dep2p/go-debugagent/pkg/interfaces"
	"github.com/dep2p/go-debugagent/pkg/types"
	"github.com/dep2p/go-debugagent/transport/debughttp"
	"github.com/dep2p/go-debugagent/transport/debugp2p"
)

// 生命周期超时配置
const (
	// initializeTimeout 初始化超时（Fx App Start）
	initializeTimeout = 30 * time.Second

	// shutdownTimeout 关闭兜底超时
	shutdownTimeout = 10 * time.Second
)

// Agent 进程内调试代理
//
// Agent 是使用方与调试端点交互的主入口。它是一个门面（Facade），
// 聚合路由器、各传输层与观测组件，由 Fx 完成内部装配。
//
// 架构层次：
//   - API Layer: Agent（本层，使用方直接交互）
//   - Routing Layer: Router（精确匹配 + 亲和调度）
//   - Transport Layer: debughttp.Server、debugp2p.Transport
//   - Observability: metrics.Collector、reqtrace.Recorder
//
// 使用示例：
//
//	// 创建代理（注册端点后再启动）
//	agent, err := debugagent.New(
//	    debugagent.WithHTTP("127.0.0.1:8123"),
//	    debugagent.WithSystemRoutes("/sys"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer agent.Close()
//
//	agent.HandleFunc("/echo", func(ctx context.Context, req *types.Request) *types.Response {
//	    return types.Text("hello " + req.QueryValue("name"))
//	})
//
//	// 启动所有传输
//	if err := agent.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
type Agent struct {
	// ────────────────────────────────────────────────────────────────────────
	// 配置和状态
	// ────────────────────────────────────────────────────────────────────────

	// config 代理配置
	config *options

	// app Fx 应用
	app *fx.App

	// ────────────────────────────────────────────────────────────────────────
	// 核心组件（由 Fx 注入）
	// ────────────────────────────────────────────────────────────────────────

	// router 端点路由器
	router *Router

	// collector 分发指标采集器
	collector *metrics.Collector

	// recorder 最近请求记录器
	recorder *reqtrace.Recorder

	// http HTTP 调试传输
	http *debughttp.Server

	// p2p P2P 调试传输
	p2p *debugp2p.Transport

	// transports 全部已注册传输，按启动顺序排列
	transports []interfaces.Transport

	// ────────────────────────────────────────────────────────────────────────
	// 生命周期状态
	// ────────────────────────────────────────────────────────────────────────

	// logFile 日志输出文件，仅在配置 WithLogFile 时非空
	logFile *os.File

	mu      sync.RWMutex
	started bool
	closed  bool
}

var _ interfaces.Dispatcher = (*Agent)(nil)

// ════════════════════════════════════════════════════════════════════════════
//  构造函数
// ════════════════════════════════════════════════════════════════════════════

// New 创建调试代理
//
// 创建代理但不启动传输，需要调用 Start() 启动。
// 通过 Option 函数配置代理。
//
// 示例：
//
//	agent, err := debugagent.New(
//	    debugagent.WithHTTP("127.0.0.1:8123"),
//	    debugagent.WithP2P(debugp2p.WithKeyPath("agent.key")),
//	    debugagent.WithMetrics(),
//	)
func New(opts ...Option) (*Agent, error) {
	// 应用选项
	cfg := newOptions()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	agent := &Agent{config: cfg}

	// 日志重定向要先于组件装配，让装配期日志也进入目标文件
	if err := agent.setupLogging(); err != nil {
		return nil, err
	}

	// 构建 Fx 应用，组件注入在构建期完成
	var err error
	agent.app, err = buildFxApp(cfg, agent)
	if err != nil {
		agent.teardownLogging()
		return nil, fmt.Errorf("build fx app: %w", err)
	}

	return agent, nil
}

// Start 快捷启动函数
//
// 创建代理并立即启动。
// 等价于 New() + Start()。
//
// 示例：
//
//	agent, err := debugagent.Start(ctx,
//	    debugagent.WithHTTP("127.0.0.1:8123"),
//	)
func Start(ctx context.Context, opts ...Option) (*Agent, error) {
	agent, err := New(opts...)
	if err != nil {
		return nil, err
	}

	if err := agent.Start(ctx); err != nil {
		return nil, fmt.Errorf("start agent: %w", err)
	}

	return agent, nil
}

// setupLogging 配置日志输出
//
// 如果指定了日志文件，将所有日志重定向到该文件（追加模式）。
func (a *Agent) setupLogging() error {
	if a.config.logFile != "" {
		file, err := os.OpenFile(a.config.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		a.logFile = file

		if a.config.logLevelSet {
			log.SetOutputWithLevel(file, a.config.logLevel)
		} else {
			log.SetOutput(file)
		}
		logger.Info("日志文件初始化成功", "path", a.config.logFile)
		return nil
	}

	if a.config.logLevelSet {
		log.SetLevel(a.config.logLevel)
	}
	return nil
}

// teardownLogging 关闭日志文件句柄
func (a *Agent) teardownLogging() {
	if a.logFile != nil {
		_ = a.logFile.Close()
		a.logFile = nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//  生命周期管理
// ════════════════════════════════════════════════════════════════════════════

// Start 启动代理
//
// 启动流程：
//  1. Initialize: 启动 Fx App
//  2. Transports: 并行启动所有已配置的传输，任一失败则整体回滚
//
// 重复调用 Start 无害；代理关闭后调用返回 ErrAgentClosed。
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrAgentClosed
	}

	if a.started {
		return nil
	}

	logger.Info("正在启动调试代理")

	// 使用超时上下文
	initCtx, initCancel := context.WithTimeout(ctx, initializeTimeout)
	defer initCancel()

	if err := a.app.Start(initCtx); err != nil {
		logger.Error("代理初始化失败", "error", err)
		return fmt.Errorf("initialize failed: %w", err)
	}

	// 并行启动全部传输
	g, gctx := errgroup.WithContext(ctx)
	for _, tr := range a.transports {
		g.Go(func() error {
			return tr.Start(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("传输启动失败，回滚已启动的组件", "error", err)
		a.rollback()
		return fmt.Errorf("start transports: %w", err)
	}

	a.started = true
	logger.Info("调试代理已启动",
		"transports", len(a.transports),
		"endpoints", a.router.EndpointCount())
	return nil
}

// rollback 停止已启动的传输并停止 Fx 应用，调用方须持有 a.mu
//
// 传输的停止是幂等的，未成功启动的传输停止为空操作。
func (a *Agent) rollback() {
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()

	if err := a.stopTransports(stopCtx); err != nil {
		logger.Warn("回滚传输失败", "error", err)
	}
	_ = a.app.Stop(stopCtx)
}

// Stop 停止代理
//
// 逆序停止所有传输并停止 Fx 应用，但保留状态。
// 调用 Stop 后可以再次调用 Start 重启代理；未启动时调用无害。
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrAgentClosed
	}

	if !a.started {
		return nil
	}

	logger.Info("正在停止调试代理")

	err := a.stopTransports(ctx)
	if stopErr := a.app.Stop(ctx); stopErr != nil {
		err = multierr.Append(err, fmt.Errorf("stop fx app: %w", stopErr))
	}

	// 即使停止出错，也标记为已停止
	a.started = false
	if err != nil {
		logger.Error("停止调试代理失败", "error", err)
		return err
	}

	logger.Info("调试代理已停止")
	return nil
}

// stopTransports 按启动顺序的逆序停止全部传输，调用方须持有 a.mu
func (a *Agent) stopTransports(ctx context.Context) error {
	var errs error
	for i := len(a.transports) - 1; i >= 0; i-- {
		if err := a.transports[i].Stop(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Close 关闭代理并释放所有资源
//
// 与 Stop 的区别：
//   - Stop: 可以重新 Start
//   - Close: 完全关闭，不可重新启动
//
// 关闭级联到路由器：路由器及其挂载的子路由器全部停止接受注册，
// 亲和工作协程退出。重复调用 Close 无害。
func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil // 已经关闭
	}

	logger.Info("正在关闭调试代理")

	if a.started {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.stopTransports(ctx); err != nil {
			logger.Warn("停止传输失败", "error", err)
		}
		if err := a.app.Stop(ctx); err != nil {
			logger.Warn("停止 Fx 应用失败", "error", err)
		}
		cancel()
		a.started = false
	}

	if a.router != nil {
		a.router.Close()
	}
	a.teardownLogging()

	a.closed = true
	logger.Info("调试代理已关闭")
	return nil
}

// IsRunning 返回代理是否处于运行状态
func (a *Agent) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.started && !a.closed
}

// ════════════════════════════════════════════════════════════════════════════
//  组件访问
// ════════════════════════════════════════════════════════════════════════════

// Router 返回代理的端点路由器
func (a *Agent) Router() *Router {
	return a.router
}

// HTTP 返回 HTTP 调试传输，未启用时返回 nil
func (a *Agent) HTTP() *debughttp.Server {
	return a.http
}

// P2P 返回 P2P 调试传输，未启用时返回 nil
func (a *Agent) P2P() *debugp2p.Transport {
	return a.p2p
}

// Recorder 返回最近请求记录器，未启用时返回 nil
func (a *Agent) Recorder() *reqtrace.Recorder {
	return a.recorder
}

// Transports 返回代理管理的全部传输副本
func (a *Agent) Transports() []interfaces.Transport {
	out := make([]interfaces.Transport, len(a.transports))
	copy(out, a.transports)
	return out
}

// ════════════════════════════════════════════════════════════════════════════
//  路由快捷方法
// ════════════════════════════════════════════════════════════════════════════

// HandleFunc 以默认亲和模式注册处理函数
//
// 等价于 Router().HandleFunc(path, h)。
func (a *Agent) HandleFunc(path string, h HandlerFunc) error {
	return a.router.HandleFunc(path, h)
}

// Register 注册一个端点
//
// 等价于 Router().Register(route)。
func (a *Agent) Register(route Route) error {
	return a.router.Register(route)
}

// Dispatch 直接在进程内分发请求，无须经过任何传输
func (a *Agent) Dispatch(ctx context.Context, req *types.Request) *types.Response {
	return a.router.Dispatch(ctx, req)
}
