// Package debughttp 把调试路由器暴露为本地 HTTP 服务
//
// 适配层刻意保持单薄：HTTP 方法被忽略，URL 路径与查询参数原样映射为
// 调试请求，响应状态码直接取自路由器返回的状态。所有路由语义（精确
// 匹配、索引、亲和调度）都留在路由器内，HTTP 层不做任何补充。
package debughttp

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/dep2p/go-dep2p/pkg/lib/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/dep2p/go-debugagent/internal/reqtrace"
	"github.com/dep2p/go-debugagent/pkg/interfaces"
	"github.com/dep2p/go-debugagent/pkg/types"
)

var logger = log.Logger("debughttp")

// ErrNoRouter 创建传输时未提供路由器
var ErrNoRouter = errors.New("debughttp: no router bound")

// metadataHeaderPrefix 携带请求元数据的 HTTP 头前缀
//
// "X-Debug-Trace-Tag: abc" 映射为 metadata["trace-tag"] = "abc"。
const metadataHeaderPrefix = "X-Debug-"

// transportName 请求记录中的来源标识
const transportName = "http"

// ════════════════════════════════════════════════════════════════════════════
//  Server
// ════════════════════════════════════════════════════════════════════════════

// Server 本地 HTTP 调试传输
type Server struct {
	config     *Config
	dispatcher interfaces.Dispatcher

	server   *http.Server
	listener net.Listener

	running   bool
	startTime time.Time

	mu sync.Mutex
}

var _ interfaces.Transport = (*Server)(nil)

// New 创建 HTTP 调试传输并绑定路由器
func New(dispatcher interfaces.Dispatcher, opts ...Option) (*Server, error) {
	if dispatcher == nil {
		return nil, ErrNoRouter
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &Server{
		config:     cfg,
		dispatcher: dispatcher,
	}, nil
}

// Start 启动服务
//
// 监听地址绑定失败会同步返回错误；绑定成功后请求在后台协程中服务。
// 已启动时调用无效果。
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleDispatch)

	if s.config.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	if s.config.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go func(srv *http.Server, l net.Listener) {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("调试服务异常退出", "error", err)
		}
	}(s.server, listener)

	s.running = true
	s.startTime = time.Now()
	logger.Info("HTTP 调试服务已启动", "addr", listener.Addr().String())
	return nil
}

// Stop 停止服务
//
// 先尝试优雅关闭，ctx 未携带截止时间时以 ShutdownTimeout 为上限；
// 超时后强制断开剩余连接。未启动时调用无效果。
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	shutdownCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}

	err := s.server.Shutdown(shutdownCtx)
	if err != nil {
		logger.Warn("优雅关闭超时，强制断开", "error", err)
		err = multierr.Append(err, s.server.Close())
	}

	s.running = false
	logger.Info("HTTP 调试服务已停止")
	return err
}

// IsRunning 返回服务是否在运行
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr 返回实际监听地址
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// ════════════════════════════════════════════════════════════════════════════
//  请求映射
// ════════════════════════════════════════════════════════════════════════════

// handleDispatch 把 HTTP 请求映射为调试请求并写回响应
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	query := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}

	metadata := map[string]string{
		"method":      r.Method,
		"remote_addr": r.RemoteAddr,
	}
	for key, values := range r.Header {
		if rest, ok := strings.CutPrefix(key, metadataHeaderPrefix); ok && len(values) > 0 {
			metadata[strings.ToLower(rest)] = values[0]
		}
	}

	var body []byte
	if r.Body != nil {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		body = data
	}

	ctx := reqtrace.WithTransport(r.Context(), transportName)
	resp := s.dispatcher.Dispatch(ctx, types.NewRequest(r.URL.Path, query, metadata, body))

	code := int(resp.Status)
	if code < 100 || code > 599 {
		logger.Warn("响应状态不合法", "path", r.URL.Path, "status", code)
		code = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", string(resp.ContentType))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	if _, err := w.Write(resp.Body); err != nil {
		logger.Debug("写入响应失败", "path", r.URL.Path, "error", err)
	}
}
