package debugagent

import "errors"

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 路由注册错误（配置错误，注册/挂载时立即失败，不会出现在请求路径上）
	// ────────────────────────────────────────────────────────────────────────

	// ErrInvalidPath 路径必须以 "/" 开头且不含尾部斜杠
	ErrInvalidPath = errors.New("debugagent: invalid path")

	// ErrNilHandler 处理器为 nil
	ErrNilHandler = errors.New("debugagent: handler is nil")

	// ErrNilRouter 子路由为 nil
	ErrNilRouter = errors.New("debugagent: router is nil")

	// ErrDuplicatePath 路径已注册
	ErrDuplicatePath = errors.New("debugagent: duplicate path")

	// ErrMountShadowed 路径与挂载前缀相互遮蔽
	ErrMountShadowed = errors.New("debugagent: path collides with mount prefix")

	// ErrMountCycle 挂载会形成环
	ErrMountCycle = errors.New("debugagent: mount would create a cycle")

	// ErrAlreadyMounted 子路由已挂载到其他父路由
	ErrAlreadyMounted = errors.New("debugagent: router already mounted")

	// ────────────────────────────────────────────────────────────────────────
	// 分发错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrRouterClosed 路由器已关闭
	ErrRouterClosed = errors.New("debugagent: router closed")

	// ────────────────────────────────────────────────────────────────────────
	// Agent 生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrAgentClosed Agent 已关闭
	ErrAgentClosed = errors.New("debugagent: agent closed")

	// ErrNilTransport 传输为 nil
	ErrNilTransport = errors.New("debugagent: transport is nil")
)
