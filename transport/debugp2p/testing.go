package debugp2p

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	pkgif "github.com/dep2p/go-dep2p/pkg/interfaces"
	dep2ptypes "github.com/dep2p/go-dep2p/pkg/types"

	"github.com/dep2p/go-debugagent/pkg/types"
)

// dispatcherFunc 把函数适配为分发器
type dispatcherFunc func(ctx context.Context, req *types.Request) *types.Response

func (f dispatcherFunc) Dispatch(ctx context.Context, req *types.Request) *types.Response {
	return f(ctx, req)
}

// startWithHost 以注入的宿主启动传输，绕过真实节点，测试专用
func (t *Transport) startWithHost(host pkgif.Host) {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	srvCtx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	t.host = host
	t.ctx = srvCtx
	t.cancel = cancel
	t.wg = &sync.WaitGroup{}
	t.running = true
	t.mu.Unlock()

	host.SetStreamHandler(ProtocolID, t.handleStream)
}

// mockNetwork 把多个 mockHost 连成内存网络
type mockNetwork struct {
	mu    sync.RWMutex
	hosts map[string]*mockHost
}

func newMockNetwork() *mockNetwork {
	return &mockNetwork{hosts: make(map[string]*mockHost)}
}

// Host 创建并登记一个指定 ID 的宿主
func (n *mockNetwork) Host(id string) *mockHost {
	n.mu.Lock()
	defer n.mu.Unlock()

	host := newMockHost(id, n)
	n.hosts[id] = host
	return host
}

// lookup 查找远端宿主上注册的流处理器
func (n *mockNetwork) lookup(peerID, protocolID string) (pkgif.StreamHandler, error) {
	n.mu.RLock()
	host, ok := n.hosts[peerID]
	n.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown peer %s", peerID)
	}

	host.mu.RLock()
	handler, ok := host.handlers[protocolID]
	host.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("peer %s does not speak %s", peerID, protocolID)
	}
	return handler, nil
}

// mockHost 是 Host 的 mock 实现
type mockHost struct {
	id       string
	addrs    []string
	network  *mockNetwork
	handlers map[string]pkgif.StreamHandler
	mu       sync.RWMutex
}

func newMockHost(id string, network *mockNetwork) *mockHost {
	return &mockHost{
		id:       id,
		addrs:    []string{"/ip4/127.0.0.1/udp/0/quic-v1"},
		network:  network,
		handlers: make(map[string]pkgif.StreamHandler),
	}
}

func (m *mockHost) ID() string {
	return m.id
}

func (m *mockHost) Addrs() []string {
	return m.addrs
}

func (m *mockHost) Listen(_ ...string) error {
	return nil
}

func (m *mockHost) Connect(_ context.Context, _ string, _ []string) error {
	return nil
}

func (m *mockHost) SetStreamHandler(protocolID string, handler pkgif.StreamHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[protocolID] = handler
}

func (m *mockHost) RemoveStreamHandler(protocolID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, protocolID)
}

func (m *mockHost) NewStream(_ context.Context, peerID string, protocolIDs ...string) (pkgif.Stream, error) {
	handler, err := m.network.lookup(peerID, protocolIDs[0])
	if err != nil {
		return nil, err
	}

	// 两条管道拼成一对双向流，远端处理器拿到对端
	client, server := newMockStreamPair(protocolIDs[0])
	go handler(server)
	return client, nil
}

func (m *mockHost) Peerstore() pkgif.Peerstore {
	return nil
}

func (m *mockHost) EventBus() pkgif.EventBus {
	return nil
}

func (m *mockHost) Close() error {
	return nil
}

func (m *mockHost) AdvertisedAddrs() []string {
	return m.Addrs()
}

func (m *mockHost) ShareableAddrs() []string {
	return nil
}

func (m *mockHost) HolePunchAddrs() []string {
	return nil
}

func (m *mockHost) SetReachabilityCoordinator(_ pkgif.ReachabilityCoordinator) {
	// no-op for mock
}

func (m *mockHost) Network() pkgif.Swarm {
	return nil
}

func (m *mockHost) HandleInboundStream(_ pkgif.Stream) {
	// no-op for mock
}

// mockStream 是 Stream 的 mock 实现
//
// 每个方向一条 io.Pipe，读写语义与真实流一致：CloseWrite 让对端读
// 到 EOF，Reset 让对端读写都得到 ErrStreamReset。
type mockStream struct {
	protocol string
	r        *io.PipeReader
	w        *io.PipeWriter
	closed   bool
	mu       sync.Mutex
}

// newMockStreamPair 创建互为对端的两条流
func newMockStreamPair(protocol string) (client, server *mockStream) {
	clientReads, serverWrites := io.Pipe()
	serverReads, clientWrites := io.Pipe()

	client = &mockStream{protocol: protocol, r: clientReads, w: clientWrites}
	server = &mockStream{protocol: protocol, r: serverReads, w: serverWrites}
	return client, server
}

func (m *mockStream) Read(p []byte) (n int, err error) {
	return m.r.Read(p)
}

func (m *mockStream) Write(p []byte) (n int, err error) {
	return m.w.Write(p)
}

func (m *mockStream) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	_ = m.w.Close()
	return m.r.Close()
}

func (m *mockStream) Reset() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	_ = m.w.CloseWithError(ErrStreamReset)
	return m.r.CloseWithError(ErrStreamReset)
}

func (m *mockStream) CloseWrite() error {
	return m.w.Close()
}

func (m *mockStream) CloseRead() error {
	return m.r.Close()
}

func (m *mockStream) SetDeadline(_ time.Time) error {
	return nil
}

func (m *mockStream) SetReadDeadline(_ time.Time) error {
	return nil
}

func (m *mockStream) SetWriteDeadline(_ time.Time) error {
	return nil
}

func (m *mockStream) Protocol() string {
	return m.protocol
}

func (m *mockStream) SetProtocol(protocol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.protocol = protocol
}

func (m *mockStream) Conn() pkgif.Connection {
	return nil
}

func (m *mockStream) Stat() dep2ptypes.StreamStat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return dep2ptypes.StreamStat{
		Direction: dep2ptypes.DirUnknown,
		Opened:    time.Now(),
		Protocol:  dep2ptypes.ProtocolID(m.protocol),
	}
}

func (m *mockStream) State() dep2ptypes.StreamState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return dep2ptypes.StreamStateClosed
	}
	return dep2ptypes.StreamStateOpen
}

func (m *mockStream) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
