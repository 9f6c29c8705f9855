// Package debugp2p 把调试路由器暴露为 P2P 网络服务
//
// 传输层在 dep2p 节点上注册 ProtocolID 流协议，每条入站流承载一次
// 请求/响应交换：读取一帧请求、分发、写回一帧响应、结束写方向。流
// 之间互不影响，单条流上的畸形数据只复位该条流。
//
// 节点身份是一把 Ed25519 私钥。配置 KeyPath 后身份持久化到磁盘，
// 调试代理重启后保持相同的节点 ID；未配置时每次启动使用临时身份。
package debugp2p

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dep2p/go-dep2p"
	pkgif "github.com/dep2p/go-dep2p/pkg/interfaces"
	"github.com/dep2p/go-dep2p/pkg/lib/log"
	"go.uber.org/multierr"

	"github.com/dep2p/go-debugagent/internal/keys"
	"github.com/dep2p/go-debugagent/internal/reqtrace"
	"github.com/dep2p/go-debugagent/pkg/interfaces"
	"github.com/dep2p/go-debugagent/pkg/types"
)

var logger = log.Logger("debugp2p")

// transportName 请求记录中的来源标识
const transportName = "p2p"

// ════════════════════════════════════════════════════════════════════════════
//  Transport
// ════════════════════════════════════════════════════════════════════════════

// Transport P2P 调试传输
type Transport struct {
	config     *Config
	dispatcher interfaces.Dispatcher

	// lifecycleMu 串行化 Start/Stop 与身份变更
	lifecycleMu sync.Mutex

	mu         sync.RWMutex
	running    bool
	key        *keys.PrivateKey
	node       *dep2p.Node
	host       pkgif.Host
	ctx        context.Context
	cancel     context.CancelFunc
	nodeCancel context.CancelFunc
	wg         *sync.WaitGroup
}

var _ interfaces.Transport = (*Transport)(nil)

// New 创建 P2P 调试传输并绑定路由器
func New(dispatcher interfaces.Dispatcher, opts ...Option) (*Transport, error) {
	if dispatcher == nil {
		return nil, ErrNoRouter
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &Transport{
		config:     cfg,
		dispatcher: dispatcher,
	}, nil
}

// ════════════════════════════════════════════════════════════════════════════
//  生命周期
// ════════════════════════════════════════════════════════════════════════════

// Start 启动传输
//
// 阻塞直到底层网络节点上线并注册好流协议，或在 StartTimeout 内失败。
// 已启动时调用无效果。
func (t *Transport) Start(ctx context.Context) error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	if t.IsRunning() {
		return nil
	}

	key, err := t.ensureIdentity()
	if err != nil {
		return err
	}

	node, nodeCancel, err := t.startNode(ctx, key)
	if err != nil {
		return err
	}

	host := node.Host()
	if host == nil {
		nodeCancel()
		_ = node.Close()
		return fmt.Errorf("debugp2p: node exposes no host")
	}

	srvCtx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	t.key = key
	t.node = node
	t.host = host
	t.ctx = srvCtx
	t.cancel = cancel
	t.nodeCancel = nodeCancel
	t.wg = &sync.WaitGroup{}
	t.running = true
	t.mu.Unlock()

	host.SetStreamHandler(ProtocolID, t.handleStream)

	logger.Info("P2P 调试服务已启动",
		"node", log.TruncateID(node.ID(), 8),
		"addrs", len(node.ListenAddrs()))
	return nil
}

// Stop 停止传输
//
// 先停止接收新流，等待在途请求在 StopTimeout 内结束，然后关闭底层
// 节点。各环节的错误合并返回，但不会中断后续清理。身份保留在内存
// 中，停止后仍可导出。未启动时调用无效果。
func (t *Transport) Stop(ctx context.Context) error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	node := t.node
	host := t.host
	cancel := t.cancel
	nodeCancel := t.nodeCancel
	wg := t.wg
	t.running = false
	t.node = nil
	t.host = nil
	t.ctx = nil
	t.cancel = nil
	t.nodeCancel = nil
	t.mu.Unlock()

	if host != nil {
		host.RemoveStreamHandler(ProtocolID)
	}
	if cancel != nil {
		cancel()
	}

	if wg != nil {
		drained := make(chan struct{})
		go func() {
			wg.Wait()
			close(drained)
		}()

		select {
		case <-drained:
		case <-time.After(t.config.StopTimeout):
			logger.Warn("等待在途请求超时", "timeout", t.config.StopTimeout)
		case <-ctx.Done():
			logger.Warn("停止流程被取消，不再等待在途请求")
		}
	}

	var errs error
	if node != nil {
		stopCtx, cancelStop := context.WithTimeout(context.Background(), t.config.StopTimeout)
		if err := node.Stop(stopCtx); err != nil {
			errs = multierr.Append(errs, err)
		}
		cancelStop()
		if err := node.Close(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if nodeCancel != nil {
		nodeCancel()
	}

	logger.Info("P2P 调试服务已停止")
	return errs
}

// IsRunning 返回传输是否在运行
func (t *Transport) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// startResult 节点启动的一次性完成信号
type startResult struct {
	node *dep2p.Node
	err  error
}

// startNode 在后台启动网络节点并同步等待其上线
//
// 节点初始化是异步过程，这里通过容量为 1 的一次性信号把它转成同步
// 语义：上线、失败、超时三种结局只有一个胜出。超时或取消后，迟到的
// 节点由回收协程关闭，不会泄漏。
func (t *Transport) startNode(ctx context.Context, key *keys.PrivateKey) (*dep2p.Node, context.CancelFunc, error) {
	// 节点生命周期挂在独立的根上下文上，调用方 ctx 只约束等待过程
	nodeCtx, nodeCancel := context.WithCancel(context.Background())
	ready := make(chan startResult, 1)

	go func() {
		node, err := dep2p.New(nodeCtx, t.buildNodeOptions(key)...)
		if err != nil {
			ready <- startResult{err: err}
			return
		}
		if err := node.Start(nodeCtx); err != nil {
			_ = node.Close()
			ready <- startResult{err: err}
			return
		}
		ready <- startResult{node: node}
	}()

	timer := time.NewTimer(t.config.StartTimeout)
	defer timer.Stop()

	select {
	case res := <-ready:
		if res.err != nil {
			nodeCancel()
			return nil, nil, fmt.Errorf("failed to start node: %w", res.err)
		}
		return res.node, nodeCancel, nil
	case <-timer.C:
		nodeCancel()
		go reapLateNode(ready)
		logger.Error("节点未在期限内上线", "timeout", t.config.StartTimeout)
		return nil, nil, ErrStartTimeout
	case <-ctx.Done():
		nodeCancel()
		go reapLateNode(ready)
		return nil, nil, ctx.Err()
	}
}

// reapLateNode 回收超时后才完成启动的节点
func reapLateNode(ready <-chan startResult) {
	if res := <-ready; res.node != nil {
		_ = res.node.Close()
	}
}

// buildNodeOptions 把传输配置翻译为节点选项
func (t *Transport) buildNodeOptions(key *keys.PrivateKey) []dep2p.Option {
	opts := []dep2p.Option{
		dep2p.WithPrivateKey(key),
		dep2p.WithListenPort(t.config.ListenPort),
		dep2p.WithRelay(t.config.EnableRelay),
		dep2p.WithNAT(t.config.EnableNAT),
	}
	if len(t.config.BootstrapPeers) > 0 {
		opts = append(opts, dep2p.WithBootstrapPeers(t.config.BootstrapPeers...))
	}
	if t.config.NodeLogFile != "" {
		opts = append(opts, dep2p.WithLogFile(t.config.NodeLogFile))
	}
	return opts
}

// ════════════════════════════════════════════════════════════════════════════
//  身份管理
// ════════════════════════════════════════════════════════════════════════════

// ensureIdentity 准备本次启动使用的身份
//
// 优先级：内存中的身份（导入或上次启动加载）、KeyPath 指向的持久化
// 身份、临时身份。ForceNewIdentity 置位时跳过前两者直接重新生成。
func (t *Transport) ensureIdentity() (*keys.PrivateKey, error) {
	if !t.config.ForceNewIdentity {
		t.mu.RLock()
		key := t.key
		t.mu.RUnlock()
		if key != nil {
			return key, nil
		}
	}

	if t.config.KeyPath == "" {
		logger.Debug("未配置身份文件，使用临时身份")
		return keys.Generate()
	}

	key, created, err := keys.LoadOrCreate(t.config.KeyPath, t.config.ForceNewIdentity)
	if err != nil {
		return nil, err
	}
	if !created {
		logger.Debug("已加载持久化身份", "path", t.config.KeyPath)
	}
	return key, nil
}

// NodeID 返回当前身份的节点 ID，尚未加载身份时为空串
func (t *Transport) NodeID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.node != nil {
		return t.node.ID()
	}
	if t.key != nil {
		return t.key.NodeID().String()
	}
	return ""
}

// ListenAddrs 返回节点监听地址，未启动时为 nil
func (t *Transport) ListenAddrs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.node == nil {
		return nil
	}
	return t.node.ListenAddrs()
}

// ConnectionTicket 返回可分享的连接票据，未启动时为空串
func (t *Transport) ConnectionTicket() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.node == nil {
		return ""
	}
	return t.node.ConnectionTicket()
}

// ExportSecretKey 导出当前身份的 base58 口令
//
// 运行与空闲状态都可导出。内存中尚无身份而配置了 KeyPath 时，尝试
// 从磁盘读取；两处都没有则返回 ErrNoIdentity。口令包含完整私钥，
// 不得写入日志。
func (t *Transport) ExportSecretKey() (string, error) {
	t.mu.RLock()
	key := t.key
	t.mu.RUnlock()

	if key == nil && t.config.KeyPath != "" {
		loaded, err := keys.Load(t.config.KeyPath)
		if err == nil {
			key = loaded
		}
	}
	if key == nil {
		return "", ErrNoIdentity
	}
	return keys.EncodeSecret(key), nil
}

// ImportSecretKey 导入身份口令
//
// 仅空闲状态允许，运行中导入返回 ErrNotIdle。配置了 KeyPath 时新
// 身份同时持久化；下次 Start 使用导入的身份。
func (t *Transport) ImportSecretKey(secret string) error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return ErrNotIdle
	}

	key, err := keys.DecodeSecret(secret)
	if err != nil {
		return err
	}
	if t.config.KeyPath != "" {
		if err := keys.Save(key, t.config.KeyPath); err != nil {
			return err
		}
	}

	t.key = key
	logger.Info("已导入节点身份", "node", key.NodeID().ShortString())
	return nil
}

// ResetIdentity 丢弃当前身份
//
// 仅空闲状态允许。持久化文件一并删除，下次 Start 按配置重新生成或
// 加载。
func (t *Transport) ResetIdentity() error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return ErrNotIdle
	}

	t.key = nil
	if t.config.KeyPath != "" {
		if err := os.Remove(t.config.KeyPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	logger.Info("已重置节点身份")
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//  流服务
// ════════════════════════════════════════════════════════════════════════════

// handleStream 接收入站流并移交给处理协程
//
// 登记在途计数与读取服务上下文在同一临界区内完成，保证 Stop 的
// 等待不会漏掉正在登记的流。
func (t *Transport) handleStream(stream pkgif.Stream) {
	t.mu.RLock()
	if !t.running {
		t.mu.RUnlock()
		_ = stream.Reset()
		return
	}
	ctx := t.ctx
	wg := t.wg
	wg.Add(1)
	t.mu.RUnlock()

	go func() {
		defer wg.Done()
		t.serveStream(ctx, stream)
	}()
}

// serveStream 服务一条入站流
//
// 每条流承载一次请求/响应交换。请求帧无法解析时直接复位流，不写任
// 何响应，让对端得到明确的传输层错误。
func (t *Transport) serveStream(ctx context.Context, stream pkgif.Stream) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("流处理发生 panic", "panic", rec, "stack", string(debug.Stack()))
			_ = stream.Reset()
		}
	}()
	defer stream.Close()

	if t.config.RequestTimeout > 0 {
		_ = stream.SetDeadline(time.Now().Add(t.config.RequestTimeout))
	}

	req, err := readRequest(stream)
	if err != nil {
		logger.Debug("读取请求失败，复位流", "error", err)
		_ = stream.Reset()
		return
	}

	reqCtx := reqtrace.WithTransport(ctx, transportName)
	if t.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, t.config.RequestTimeout)
		defer cancel()
	}

	resp := t.dispatcher.Dispatch(reqCtx, req)

	if err := writeResponse(stream, resp); err != nil {
		logger.Debug("写入响应失败", "error", err)
		_ = stream.Reset()
		return
	}

	// 显式结束写方向，对端读到 EOF 即知响应完整
	_ = stream.CloseWrite()
}

// ════════════════════════════════════════════════════════════════════════════
//  客户端
// ════════════════════════════════════════════════════════════════════════════

// Query 向远端调试代理发起一次请求
//
// 在一条新流上完成一次请求/响应交换，流在返回前关闭。peerID 为目标
// 节点的 base58 标识，目标需已建立连接或可通过 Connect 建立。
func (t *Transport) Query(ctx context.Context, peerID string, req *types.Request) (*types.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	t.mu.RLock()
	running := t.running
	host := t.host
	t.mu.RUnlock()
	if !running || host == nil {
		return nil, ErrNotStarted
	}

	if t.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.QueryTimeout)
		defer cancel()
	}

	stream, err := host.NewStream(ctx, peerID, ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	defer stream.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	}

	if err := writeRequest(stream, req); err != nil {
		_ = stream.Reset()
		return nil, fmt.Errorf("failed to write request: %w", err)
	}
	// 结束写方向，告知对端请求已完整
	_ = stream.CloseWrite()

	resp, err := readResponse(stream)
	if err != nil {
		_ = stream.Reset()
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, nil
}

// Connect 连接到远端节点
//
// target 接受完整 multiaddr、dep2p:// 连接票据或纯节点 ID，格式由
// 底层节点自动识别。
func (t *Transport) Connect(ctx context.Context, target string) error {
	t.mu.RLock()
	node := t.node
	running := t.running
	t.mu.RUnlock()

	if !running || node == nil {
		return ErrNotStarted
	}
	return node.Connect(ctx, target)
}
