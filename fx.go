package debugagent

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-debugagent/internal/metrics"
	"github.com/dep2p/go-debugagent/internal/reqtrace"
	"github.com/dep2p/go-debugagent/internal/sysinfo"
	"github.com/dep2p/go-debugagent/transport/debughttp"
	"github.com/dep2p/go-debugagent/transport/debugp2p"
)

// buildFxApp 构建 Fx 应用
//
// 组装代理的内部组件，采用条件加载策略：
//   - 核心组件：路由器必须加载
//   - 条件组件：根据选项加载（指标、请求记录、HTTP、P2P、系统端点）
//
// 组件之间的依赖由 Fx 解析，可选依赖通过 optional 标签注入。
// 构建期错误（Invoke 失败、依赖缺失）在此处直接返回，不延迟到 Start。
func buildFxApp(opts *options, agent *Agent) (*fx.App, error) {
	modules := []fx.Option{
		// 选项注入
		fx.Supply(opts),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 观测组件（条件加载）
	// ════════════════════════════════════════════════════════════════════════
	if opts.metrics.enable {
		modules = append(modules, fx.Provide(provideCollector))
	}
	if opts.trace.enable {
		modules = append(modules, fx.Provide(provideRecorder))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 路由器（必须加载）
	// ════════════════════════════════════════════════════════════════════════
	if opts.router != nil {
		modules = append(modules, fx.Supply(opts.router))
	} else {
		modules = append(modules, fx.Provide(provideRouter))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 系统端点（条件加载）
	// ════════════════════════════════════════════════════════════════════════
	if opts.systemPrefix != "" {
		modules = append(modules, fx.Invoke(mountSystemRoutes))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 传输层（条件加载）
	// ════════════════════════════════════════════════════════════════════════
	if opts.http.enable {
		modules = append(modules, fx.Provide(provideHTTPServer))
	}
	if opts.p2p.enable {
		modules = append(modules, fx.Provide(provideP2PTransport))
	}

	// ════════════════════════════════════════════════════════════════════════
	// Agent 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, fx.Invoke(injectAgentComponents(agent)))

	// ════════════════════════════════════════════════════════════════════════
	// Fx 配置
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.NopLogger,
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	return app, nil
}

// ════════════════════════════════════════════════════════════════════════════
// 组件提供者
// ════════════════════════════════════════════════════════════════════════════

// provideCollector 提供分发指标采集器
func provideCollector(opts *options) (*metrics.Collector, error) {
	return metrics.NewCollector(opts.metrics.registry)
}

// provideRecorder 提供最近请求记录器
func provideRecorder(opts *options) (*reqtrace.Recorder, error) {
	return reqtrace.New(opts.trace.capacity, nil)
}

// routerParams 路由器构建参数
type routerParams struct {
	fx.In

	Options   *options
	Collector *metrics.Collector `optional:"true"`
	Recorder  *reqtrace.Recorder `optional:"true"`
}

// provideRouter 提供代理自建的路由器
func provideRouter(p routerParams) *Router {
	var ropts []RouterOption
	if p.Options.affinityQueueSize > 0 {
		ropts = append(ropts, WithRouterAffinityQueueSize(p.Options.affinityQueueSize))
	}
	if p.Collector != nil {
		ropts = append(ropts, WithRouterCollector(p.Collector))
	}
	if p.Recorder != nil {
		ropts = append(ropts, WithRouterRecorder(p.Recorder))
	}
	return NewRouter(ropts...)
}

// provideHTTPServer 提供 HTTP 调试传输
func provideHTTPServer(opts *options, router *Router) (*debughttp.Server, error) {
	var hopts []debughttp.Option
	if opts.http.addr != "" {
		hopts = append(hopts, debughttp.WithAddr(opts.http.addr))
	}
	if opts.http.pprof {
		hopts = append(hopts, debughttp.WithPprof())
	}
	if opts.metrics.enable && opts.metrics.registry != nil {
		hopts = append(hopts, debughttp.WithMetricsGatherer(opts.metrics.registry))
	}
	return debughttp.New(router, hopts...)
}

// provideP2PTransport 提供 P2P 调试传输
func provideP2PTransport(opts *options, router *Router) (*debugp2p.Transport, error) {
	return debugp2p.New(router, opts.p2p.opts...)
}

// ════════════════════════════════════════════════════════════════════════════
// 系统端点挂载
// ════════════════════════════════════════════════════════════════════════════

// systemRoutesParams 系统端点挂载参数
type systemRoutesParams struct {
	fx.In

	Options  *options
	Router   *Router
	Recorder *reqtrace.Recorder `optional:"true"`
}

// mountSystemRoutes 构建系统端点子路由并挂载
func mountSystemRoutes(p systemRoutesParams) error {
	provider := sysinfo.New(sysinfo.WithRecorder(p.Recorder))

	sub := NewRouter()
	for _, ep := range provider.Endpoints() {
		if err := sub.Register(Route{
			Path:        ep.Path,
			Description: ep.Description,
			Parameters:  ep.Parameters,
			Affinity:    ep.Affinity,
			Handler:     ep.Handler,
		}); err != nil {
			sub.Close()
			return err
		}
	}

	// 挂载失败时关闭子路由器，避免泄漏其亲和工作协程
	if err := p.Router.Mount(p.Options.systemPrefix, sub); err != nil {
		sub.Close()
		return err
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
// Agent 组件注入
// ════════════════════════════════════════════════════════════════════════════

// agentInjectParams Agent 组件注入参数
type agentInjectParams struct {
	fx.In

	// 核心组件（必需）
	Router *Router

	// 可选组件
	Collector *metrics.Collector  `optional:"true"`
	Recorder  *reqtrace.Recorder  `optional:"true"`
	HTTP      *debughttp.Server   `optional:"true"`
	P2P       *debugp2p.Transport `optional:"true"`
}

// injectAgentComponents 创建 Agent 组件注入函数
//
// 使用统一的注入结构，所有可选组件通过 optional:"true" 标签处理
func injectAgentComponents(agent *Agent) interface{} {
	return func(params agentInjectParams) {
		agent.router = params.Router
		agent.collector = params.Collector
		agent.recorder = params.Recorder
		agent.http = params.HTTP
		agent.p2p = params.P2P

		// 传输启动顺序与注册顺序一致
		if params.HTTP != nil {
			agent.transports = append(agent.transports, params.HTTP)
		}
		if params.P2P != nil {
			agent.transports = append(agent.transports, params.P2P)
		}
		agent.transports = append(agent.transports, agent.config.extraTransports...)
	}
}
