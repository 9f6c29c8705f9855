package debugagent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dep2p/go-dep2p/pkg/lib/log"
	"github.com/google/uuid"

	"github.com/dep2p/go-debugagent/internal/metrics"
	"github.com/dep2p/go-debugagent/internal/reqtrace"
	"github.com/dep2p/go-debugagent/pkg/interfaces"
	"github.com/dep2p/go-debugagent/pkg/types"
)

// logger 包级日志记录器
var logger = log.Logger("debugagent")

// HandlerFunc 调试端点处理函数
//
// 实现必须返回非 nil 的响应；返回 nil 或发生 panic 时路由器会代之以
// internalError 响应。处理函数内再次调用 Dispatch 时必须传递收到的
// ctx，亲和端点的再入调用依赖它避免自我死锁。
type HandlerFunc func(ctx context.Context, req *types.Request) *types.Response

// Route 一个调试端点的完整描述
type Route struct {
	Path        string                // 端点路径，以 "/" 开头且无尾部斜杠
	Description string                // 展示在索引中的说明
	Parameters  []types.ParameterInfo // 查询参数说明
	Affinity    bool                  // 是否在亲和工作协程上串行执行
	Handler     HandlerFunc           // 处理函数
}

// routeEntry 路由表条目，端点与挂载二选一
type routeEntry struct {
	route Route   // sub 为 nil 时有效
	sub   *Router // 非 nil 表示该条目是挂载的子路由器
}

// ════════════════════════════════════════════════════════════════════════════
//  路由器
// ════════════════════════════════════════════════════════════════════════════

// Router 调试端点路由器
//
// 路由采用精确匹配：除挂载前缀外不做任何模式展开。路由器自带一个
// 亲和工作协程，标记了 Affinity 的端点全部汇聚到该协程上顺序执行。
// 注册、挂载与分发都是并发安全的。
type Router struct {
	mu      sync.RWMutex
	entries map[string]*routeEntry
	parent  *Router // 由 mountMu 保护，被挂载后指向上级路由器
	closed  bool

	exec      *affinityExecutor
	recorder  *reqtrace.Recorder
	collector *metrics.Collector
}

var _ interfaces.Dispatcher = (*Router)(nil)

// mountMu 串行化所有挂载操作，保证环检测与单一归属检查的原子性
var mountMu sync.Mutex

// routerConfig 路由器配置
type routerConfig struct {
	queueSize int
	recorder  *reqtrace.Recorder
	collector *metrics.Collector
}

// RouterOption 路由器配置选项
type RouterOption func(*routerConfig)

// WithRouterAffinityQueueSize 设置亲和队列容量，非正值被忽略
func WithRouterAffinityQueueSize(n int) RouterOption {
	return func(c *routerConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithRouterRecorder 设置最近请求记录器
func WithRouterRecorder(rec *reqtrace.Recorder) RouterOption {
	return func(c *routerConfig) {
		c.recorder = rec
	}
}

// WithRouterCollector 设置指标收集器
func WithRouterCollector(col *metrics.Collector) RouterOption {
	return func(c *routerConfig) {
		c.collector = col
	}
}

// NewRouter 创建路由器并启动其亲和工作协程
func NewRouter(opts ...RouterOption) *Router {
	cfg := &routerConfig{queueSize: DefaultAffinityQueueSize}
	for _, opt := range opts {
		opt(cfg)
	}

	r := &Router{
		entries:   make(map[string]*routeEntry),
		recorder:  cfg.recorder,
		collector: cfg.collector,
	}
	r.exec = newAffinityExecutor(cfg.queueSize, cfg.collector)
	return r
}

// ════════════════════════════════════════════════════════════════════════════
//  注册与挂载
// ════════════════════════════════════════════════════════════════════════════

// Register 注册一个端点
//
// 路径重复返回 ErrDuplicatePath，路径落在已有挂载前缀之下返回
// ErrMountShadowed。注册 "/" 会覆盖默认的索引端点。
func (r *Router) Register(route Route) error {
	if err := validatePath(route.Path); err != nil {
		return err
	}
	if route.Handler == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRouterClosed
	}
	if err := r.checkCollision(route.Path, false); err != nil {
		return err
	}

	r.entries[route.Path] = &routeEntry{route: route}
	logger.Debug("注册调试端点", "path", route.Path, "affinity", route.Affinity)
	return nil
}

// HandleFunc 以默认亲和模式注册处理函数
//
// 等价于 Register(Route{Path: path, Affinity: true, Handler: h})。
func (r *Router) HandleFunc(path string, h HandlerFunc) error {
	return r.Register(Route{Path: path, Affinity: true, Handler: h})
}

// Mount 把子路由器挂载到指定前缀之下
//
// 挂载后所有以 prefix+"/" 开头的请求都转发给 sub 解析，对 prefix 本身
// 的请求返回 sub 的索引。一个路由器同一时间只能挂载到一个位置，重复
// 挂载返回 ErrAlreadyMounted；挂载自身或祖先返回 ErrMountCycle。
func (r *Router) Mount(prefix string, sub *Router) error {
	if err := validatePath(prefix); err != nil {
		return err
	}
	if prefix == "/" {
		return ErrInvalidPath
	}
	if sub == nil {
		return ErrNilRouter
	}

	mountMu.Lock()
	defer mountMu.Unlock()

	// 环检测：sub 不能是 r 自身或 r 的任何祖先
	for node := r; node != nil; node = node.parent {
		if node == sub {
			return ErrMountCycle
		}
	}
	if sub.parent != nil {
		return ErrAlreadyMounted
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRouterClosed
	}
	if err := r.checkCollision(prefix, true); err != nil {
		return err
	}

	r.entries[prefix] = &routeEntry{sub: sub}
	sub.parent = r
	logger.Debug("挂载子路由器", "prefix", prefix, "endpoints", sub.EndpointCount())
	return nil
}

// checkCollision 检查新条目与现有路由表的冲突，调用方须持有 r.mu
func (r *Router) checkCollision(path string, isMount bool) error {
	if _, ok := r.entries[path]; ok {
		return ErrDuplicatePath
	}
	for existing, e := range r.entries {
		if e.sub != nil && strings.HasPrefix(path, existing+"/") {
			return ErrMountShadowed
		}
		if isMount && strings.HasPrefix(existing, path+"/") {
			return ErrMountShadowed
		}
	}
	return nil
}

// validatePath 校验端点路径格式
func validatePath(path string) error {
	if path == "" || !strings.HasPrefix(path, "/") {
		return ErrInvalidPath
	}
	if path != "/" && strings.HasSuffix(path, "/") {
		return ErrInvalidPath
	}
	if strings.Contains(path, "//") {
		return ErrInvalidPath
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//  分发
// ════════════════════════════════════════════════════════════════════════════

// resolution 一次路径解析的结果
type resolution struct {
	route Route   // 命中的端点
	index *Router // 非 nil 表示应返回该路由器的索引
}

// resolve 在路由树中解析路径
//
// 递归进入子路由器前必须释放本层读锁，子路由器持有自己的锁。
func (r *Router) resolve(path string) (resolution, bool) {
	r.mu.RLock()

	if e, ok := r.entries[path]; ok {
		if e.sub != nil {
			sub := e.sub
			r.mu.RUnlock()
			return sub.resolve("/")
		}
		route := e.route
		r.mu.RUnlock()
		return resolution{route: route}, true
	}

	var sub *Router
	var rest string
	for prefix, e := range r.entries {
		if e.sub != nil && strings.HasPrefix(path, prefix+"/") {
			sub = e.sub
			rest = strings.TrimPrefix(path, prefix)
			break
		}
	}
	r.mu.RUnlock()

	if sub != nil {
		return sub.resolve(rest)
	}
	if path == "/" {
		return resolution{index: r}, true
	}
	return resolution{}, false
}

// Dispatch 分发请求并返回响应，永不返回 nil
//
// 未注册的路径返回 notFound；处理函数 panic 被吸收并转换为
// internalError。挂载路径上的亲和端点在本路由器（而非子路由器）的
// 亲和工作协程上执行，整棵路由树共享同一条串行通道。
func (r *Router) Dispatch(ctx context.Context, req *types.Request) *types.Response {
	if req == nil {
		return types.BadRequest("nil request")
	}

	start := time.Now()
	traceID := uuid.NewString()
	r.collector.IncInflight()

	resp := r.dispatch(ctx, req)

	elapsed := time.Since(start)
	r.collector.DecInflight()
	r.collector.ObserveDispatch(resp.Status, elapsed)
	r.recorder.Record(ctx, traceID, req.Path, resp.Status, elapsed)
	logger.Debug("分发完成",
		"trace", log.TruncateID(traceID, 8),
		"path", req.Path,
		"status", resp.Status.String(),
		"elapsed", elapsed)
	return resp
}

func (r *Router) dispatch(ctx context.Context, req *types.Request) *types.Response {
	res, ok := r.resolve(req.Path)
	if !ok {
		return types.NotFound()
	}
	if res.index != nil {
		return serveIndex(res.index, req)
	}

	route := res.route
	if route.Affinity {
		return r.exec.submit(ctx, func(ctx context.Context) *types.Response {
			return safeInvoke(ctx, route, req)
		})
	}
	return safeInvoke(ctx, route, req)
}

// ════════════════════════════════════════════════════════════════════════════
//  生命周期
// ════════════════════════════════════════════════════════════════════════════

// Close 关闭路由器并停止亲和工作协程
//
// 关闭级联到所有挂载的子路由器。重复调用无害；关闭后注册与挂载返回
// ErrRouterClosed，亲和端点的分发返回 internalError。
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	subs := make([]*Router, 0, len(r.entries))
	for _, e := range r.entries {
		if e.sub != nil {
			subs = append(subs, e.sub)
		}
	}
	r.mu.Unlock()

	r.exec.close()
	for _, sub := range subs {
		sub.Close()
	}
	logger.Debug("路由器已关闭")
}
