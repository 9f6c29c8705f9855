// Package debugagent 提供进程内调试代理
//
// debugagent 把一组调试端点嵌入到任意 Go 进程中，让运行中的程序可以
// 通过 HTTP 或 P2P 网络被远程检查：查看内部状态、触发诊断动作、调整
// 日志级别，而无需停机或接调试器。
//
// # 核心概念
//
// debugagent 围绕三个核心概念构建：
//
//   - Agent: 调试代理，聚合路由器与传输层，用户交互的主入口
//   - Router: 端点路由器，精确匹配分发，支持挂载组合与线程亲和调度
//   - Transport: 传输层，把外部请求桥接到路由器（HTTP、P2P 或自定义）
//
// # 快速开始
//
//	import "github.com/dep2p/go-debugagent"
//
//	// 1. 创建代理并注册端点
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
//	// 2. 启动所有传输
//	if err := agent.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// 3. 从外部访问: curl http://127.0.0.1:8123/echo?name=Kyle
//
// # API 层次结构
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│  入口层                                                          │
//	│  ┌─────────┐                                                     │
//	│  │  Agent  │  debugagent.New() / debugagent.Start()             │
//	│  └─────────┘                                                     │
//	├─────────────────────────────────────────────────────────────────┤
//	│  路由层                                                          │
//	│  ┌─────────┐                                                     │
//	│  │ Router  │  agent.Router() / debugagent.NewRouter()           │
//	│  └─────────┘                                                     │
//	├─────────────────────────────────────────────────────────────────┤
//	│  传输层                                                          │
//	│  ┌────────────┐ ┌────────────┐ ┌──────────────┐                 │
//	│  │  debughttp │ │  debugp2p  │ │ 自定义 Transport │              │
//	│  └────────────┘ └────────────┘ └──────────────┘                 │
//	│  WithHTTP() / WithP2P() / WithTransport()                       │
//	└─────────────────────────────────────────────────────────────────┘
//
// # 文件组织
//
// 本包按功能领域组织代码：
//
//	go-debugagent/
//	├── doc.go                # 包文档
//	├── debugagent.go         # 版本信息
//	│
//	# ════════════════════════════════════════════════════════════════
//	#                          入口层（Agent）
//	# ════════════════════════════════════════════════════════════════
//	├── agent.go              # Agent 结构定义、生命周期、组件访问
//	├── options.go            # WithXxx 配置选项
//	├── fx.go                 # Fx 组件装配
//	├── errors.go             # 错误定义
//	│
//	# ════════════════════════════════════════════════════════════════
//	#                          路由层（Router）
//	# ════════════════════════════════════════════════════════════════
//	├── router.go             # Router 结构、注册、挂载、分发
//	├── dispatch.go           # 亲和工作协程、panic 吸收
//	├── index.go              # 自描述索引
//	│
//	# ════════════════════════════════════════════════════════════════
//	#                          支撑包
//	# ════════════════════════════════════════════════════════════════
//	├── pkg/types/            # Request、Response、RouteInfo 等公共类型
//	├── pkg/interfaces/       # Dispatcher、Transport 接口
//	├── transport/debughttp/  # HTTP 传输适配器
//	├── transport/debugp2p/   # P2P 传输适配器（基于 dep2p）
//	├── internal/keys/        # Ed25519 节点身份持久化
//	├── internal/metrics/     # Prometheus 分发指标
//	├── internal/reqtrace/    # 最近请求记录
//	├── internal/sysinfo/     # 标准系统端点
//	│
//	├── cmd/debugquery/       # P2P 查询客户端命令行工具
//	└── examples/             # 可运行示例
//
// # 传输方式
//
// 同一个路由器可以同时绑定多个传输，各传输独立启停：
//
//	进程内    agent.Dispatch(ctx, req)       测试与内部复用
//	HTTP     WithHTTP("127.0.0.1:8123")     curl / 浏览器直接访问
//	P2P      WithP2P(...)                   跨 NAT 远程调试，无需公网地址
//
// P2P 传输基于 dep2p 构建，目标进程以持久化的 Ed25519 身份上线，
// 调试方凭节点 ID 或连接票据直连，流量走 QUIC 加密通道。
//
// # 版本
//
// 当前版本: v0.1.0
//
// 更多信息请访问: https://github.com/dep2p/go-debugagent
package debugagent
