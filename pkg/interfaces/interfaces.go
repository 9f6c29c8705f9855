// Package interfaces 定义调试代理的公共契约
//
// 传输适配器只通过本包与路由层交互：Dispatcher 是适配器眼中的路由器，
// Transport 是路由层（及 Agent）眼中的适配器。接口放在独立的叶子包中，
// 根包和各传输包可以互不导入地共享它们。
package interfaces

import (
	"context"

	"github.com/dep2p/go-debugagent/pkg/types"
)

// ============================================================================
//                              Dispatcher
// ============================================================================

// Dispatcher 请求分发器
//
// 传输适配器把解码后的请求交给 Dispatch，同步阻塞直到拿到响应。
// Dispatch 永远返回非 nil 的响应：未注册路径返回 notFound，
// 处理器故障被转换为 internalError，调用方无需再做判空。
type Dispatcher interface {
	// Dispatch 分发请求并等待处理器结果
	Dispatch(ctx context.Context, req *types.Request) *types.Response
}

// ============================================================================
//                              Transport
// ============================================================================

// Transport 传输适配器契约
//
// 适配器在构造时绑定唯一的 Dispatcher，生命周期内不可更换；
// 未绑定时 Start 必须失败，而不是在请求到达时丢弃请求。
type Transport interface {
	// Start 开始接受连接/请求
	//
	// 幂等：已在运行时再次调用返回 nil。
	// 同步：返回时监听与身份状态必须已完全就绪，
	// 即使内部初始化是异步的。
	Start(ctx context.Context) error

	// Stop 释放 Start 获取的全部资源
	//
	// 幂等；尽力而为——个别资源释放失败记录日志并继续，
	// 在完整的清理尝试之后返回首个错误。
	Stop(ctx context.Context) error

	// IsRunning 报告适配器是否正在运行
	IsRunning() bool
}
