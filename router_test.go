package debugagent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-debugagent/internal/reqtrace"
	"github.com/dep2p/go-debugagent/pkg/types"
)

// echoHandler 返回 name 查询参数的处理函数
func echoHandler(_ context.Context, req *types.Request) *types.Response {
	return types.Text("hello " + req.QueryValue("name"))
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r := NewRouter()
	t.Cleanup(r.Close)
	return r
}

func TestRouter_RegisterAndDispatch(t *testing.T) {
	r := newTestRouter(t)

	err := r.Register(Route{
		Path:        "/echo",
		Description: "echo the name parameter",
		Parameters:  []types.ParameterInfo{{Name: "name", Required: true}},
		Affinity:    true,
		Handler:     echoHandler,
	})
	require.NoError(t, err)

	req := types.NewRequest("/echo", map[string]string{"name": "Kyle"}, nil, nil)
	resp := r.Dispatch(context.Background(), req)

	require.NotNil(t, resp)
	assert.Equal(t, types.StatusOK, resp.Status)
	assert.Equal(t, types.ContentTypeText, resp.ContentType)
	assert.Equal(t, "hello Kyle", string(resp.Body))
}

func TestRouter_Register_Validation(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		handler HandlerFunc
		wantErr error
	}{
		{name: "空路径", path: "", handler: echoHandler, wantErr: ErrInvalidPath},
		{name: "缺少前导斜杠", path: "echo", handler: echoHandler, wantErr: ErrInvalidPath},
		{name: "尾部斜杠", path: "/echo/", handler: echoHandler, wantErr: ErrInvalidPath},
		{name: "连续斜杠", path: "/a//b", handler: echoHandler, wantErr: ErrInvalidPath},
		{name: "空处理函数", path: "/echo", handler: nil, wantErr: ErrNilHandler},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t)
			err := r.Register(Route{Path: tt.path, Handler: tt.handler})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRouter_Register_Duplicate(t *testing.T) {
	r := newTestRouter(t)

	require.NoError(t, r.HandleFunc("/echo", echoHandler))
	err := r.HandleFunc("/echo", echoHandler)
	assert.ErrorIs(t, err, ErrDuplicatePath)
}

func TestRouter_Dispatch_NotFound(t *testing.T) {
	r := newTestRouter(t)

	resp := r.Dispatch(context.Background(), types.NewRequest("/missing", nil, nil, nil))
	require.NotNil(t, resp)
	assert.Equal(t, types.StatusNotFound, resp.Status)
}

func TestRouter_Dispatch_NilRequest(t *testing.T) {
	r := newTestRouter(t)

	resp := r.Dispatch(context.Background(), nil)
	require.NotNil(t, resp)
	assert.Equal(t, types.StatusBadRequest, resp.Status)
}

func TestRouter_Dispatch_PanicRecovery(t *testing.T) {
	r := newTestRouter(t)

	require.NoError(t, r.HandleFunc("/boom", func(context.Context, *types.Request) *types.Response {
		panic("kaboom")
	}))
	require.NoError(t, r.HandleFunc("/ok", echoHandler))

	resp := r.Dispatch(context.Background(), types.NewRequest("/boom", nil, nil, nil))
	require.NotNil(t, resp)
	assert.Equal(t, types.StatusInternalError, resp.Status)
	assert.Contains(t, string(resp.Body), "handler panic")

	// 工作协程在 panic 之后必须继续服务其它端点
	resp = r.Dispatch(context.Background(), types.NewRequest("/ok", nil, nil, nil))
	assert.Equal(t, types.StatusOK, resp.Status)
}

func TestRouter_Dispatch_NilResponse(t *testing.T) {
	r := newTestRouter(t)

	require.NoError(t, r.HandleFunc("/nil", func(context.Context, *types.Request) *types.Response {
		return nil
	}))

	resp := r.Dispatch(context.Background(), types.NewRequest("/nil", nil, nil, nil))
	require.NotNil(t, resp)
	assert.Equal(t, types.StatusInternalError, resp.Status)
}

func TestRouter_Affinity_Serialized(t *testing.T) {
	r := newTestRouter(t)

	var active, overlaps int32
	require.NoError(t, r.HandleFunc("/serial", func(context.Context, *types.Request) *types.Response {
		if atomic.AddInt32(&active, 1) > 1 {
			atomic.AddInt32(&overlaps, 1)
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&active, -1)
		return types.Text("done")
	}))

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			resp := r.Dispatch(context.Background(), types.NewRequest("/serial", nil, nil, nil))
			assert.Equal(t, types.StatusOK, resp.Status)
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&overlaps), "affinity handlers must never run concurrently")
}

func TestRouter_NonAffinity_Concurrent(t *testing.T) {
	r := newTestRouter(t)

	first := make(chan struct{})
	second := make(chan struct{})

	// 两个处理函数互相等待，只有并发执行才能都完成
	require.NoError(t, r.Register(Route{Path: "/a", Handler: func(context.Context, *types.Request) *types.Response {
		close(first)
		<-second
		return types.Text("a")
	}}))
	require.NoError(t, r.Register(Route{Path: "/b", Handler: func(context.Context, *types.Request) *types.Response {
		<-first
		close(second)
		return types.Text("b")
	}}))

	var wg sync.WaitGroup
	wg.Add(2)
	for _, path := range []string{"/a", "/b"} {
		go func(path string) {
			defer wg.Done()
			resp := r.Dispatch(context.Background(), types.NewRequest(path, nil, nil, nil))
			assert.Equal(t, types.StatusOK, resp.Status)
		}(path)
	}

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(5 * time.Second):
		t.Fatal("non-affinity handlers did not run concurrently")
	}
}

func TestRouter_Affinity_Reentrant(t *testing.T) {
	r := newTestRouter(t)

	require.NoError(t, r.HandleFunc("/inner", func(context.Context, *types.Request) *types.Response {
		return types.Text("inner")
	}))
	require.NoError(t, r.HandleFunc("/outer", func(ctx context.Context, _ *types.Request) *types.Response {
		return r.Dispatch(ctx, types.NewRequest("/inner", nil, nil, nil))
	}))

	type result struct{ resp *types.Response }
	ch := make(chan result, 1)
	go func() {
		ch <- result{resp: r.Dispatch(context.Background(), types.NewRequest("/outer", nil, nil, nil))}
	}()

	select {
	case got := <-ch:
		require.NotNil(t, got.resp)
		assert.Equal(t, types.StatusOK, got.resp.Status)
		assert.Equal(t, "inner", string(got.resp.Body))
	case <-time.After(5 * time.Second):
		t.Fatal("reentrant affinity dispatch deadlocked")
	}
}

func TestRouter_Dispatch_CancelledContext(t *testing.T) {
	r := newTestRouter(t)
	require.NoError(t, r.HandleFunc("/slow", echoHandler))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := r.Dispatch(ctx, types.NewRequest("/slow", nil, nil, nil))
	require.NotNil(t, resp)
	assert.Equal(t, types.StatusInternalError, resp.Status)
	assert.Contains(t, string(resp.Body), "dispatch cancelled")
}

// ════════════════════════════════════════════════════════════════════════════
//  挂载
// ════════════════════════════════════════════════════════════════════════════

func TestRouter_Mount(t *testing.T) {
	root := newTestRouter(t)
	tools := NewRouter()

	require.NoError(t, tools.HandleFunc("/echo", echoHandler))
	require.NoError(t, tools.HandleFunc("/ping", func(context.Context, *types.Request) *types.Response {
		return types.Text("pong")
	}))
	require.NoError(t, root.HandleFunc("/top", echoHandler))
	require.NoError(t, root.Mount("/tools", tools))

	// 挂载路径下的端点经由根路由器分发
	resp := root.Dispatch(context.Background(), types.NewRequest("/tools/echo", map[string]string{"name": "Kyle"}, nil, nil))
	require.Equal(t, types.StatusOK, resp.Status)
	assert.Equal(t, "hello Kyle", string(resp.Body))

	// 挂载点本身返回子路由器的索引
	resp = root.Dispatch(context.Background(), types.NewRequest("/tools", nil, nil, nil))
	require.Equal(t, types.StatusOK, resp.Status)
	assert.Equal(t, types.ContentTypeJSON, resp.ContentType)

	var idx types.RouteInfo
	require.NoError(t, json.Unmarshal(resp.Body, &idx))
	assert.Equal(t, 2, idx.EndpointCount)

	assert.Equal(t, 3, root.EndpointCount())
}

func TestRouter_Mount_Validation(t *testing.T) {
	t.Run("子路由器为空", func(t *testing.T) {
		root := newTestRouter(t)
		assert.ErrorIs(t, root.Mount("/sub", nil), ErrNilRouter)
	})

	t.Run("挂载到根路径", func(t *testing.T) {
		root := newTestRouter(t)
		sub := newTestRouter(t)
		assert.ErrorIs(t, root.Mount("/", sub), ErrInvalidPath)
	})

	t.Run("挂载自身", func(t *testing.T) {
		root := newTestRouter(t)
		assert.ErrorIs(t, root.Mount("/self", root), ErrMountCycle)
	})

	t.Run("挂载祖先", func(t *testing.T) {
		root := newTestRouter(t)
		mid := NewRouter()
		leaf := NewRouter()
		require.NoError(t, root.Mount("/mid", mid))
		require.NoError(t, mid.Mount("/leaf", leaf))
		assert.ErrorIs(t, leaf.Mount("/loop", root), ErrMountCycle)
		assert.ErrorIs(t, mid.Mount("/loop", root), ErrMountCycle)
	})

	t.Run("重复挂载", func(t *testing.T) {
		a := newTestRouter(t)
		b := newTestRouter(t)
		sub := NewRouter()
		require.NoError(t, a.Mount("/sub", sub))
		assert.ErrorIs(t, b.Mount("/sub", sub), ErrAlreadyMounted)
	})

	t.Run("挂载前缀遮蔽已有端点", func(t *testing.T) {
		root := newTestRouter(t)
		sub := newTestRouter(t)
		require.NoError(t, root.HandleFunc("/tools/echo", echoHandler))
		assert.ErrorIs(t, root.Mount("/tools", sub), ErrMountShadowed)
	})

	t.Run("端点落入已有挂载前缀", func(t *testing.T) {
		root := newTestRouter(t)
		sub := newTestRouter(t)
		require.NoError(t, root.Mount("/tools", sub))
		assert.ErrorIs(t, root.HandleFunc("/tools/echo", echoHandler), ErrMountShadowed)
	})

	t.Run("挂载点与已有端点重名", func(t *testing.T) {
		root := newTestRouter(t)
		sub := newTestRouter(t)
		require.NoError(t, root.HandleFunc("/tools", echoHandler))
		assert.ErrorIs(t, root.Mount("/tools", sub), ErrDuplicatePath)
	})
}

// ════════════════════════════════════════════════════════════════════════════
//  生命周期
// ════════════════════════════════════════════════════════════════════════════

func TestRouter_Close(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.HandleFunc("/echo", echoHandler))

	r.Close()
	r.Close() // 重复关闭无害

	assert.ErrorIs(t, r.HandleFunc("/late", echoHandler), ErrRouterClosed)
	assert.ErrorIs(t, r.Mount("/sub", NewRouter()), ErrRouterClosed)

	resp := r.Dispatch(context.Background(), types.NewRequest("/echo", nil, nil, nil))
	require.NotNil(t, resp)
	assert.Equal(t, types.StatusInternalError, resp.Status)
	assert.Contains(t, string(resp.Body), "router closed")
}

func TestRouter_WithRecorder(t *testing.T) {
	rec, err := reqtrace.New(8, clock.NewMock())
	require.NoError(t, err)

	r := NewRouter(WithRouterRecorder(rec))
	t.Cleanup(r.Close)
	require.NoError(t, r.HandleFunc("/echo", echoHandler))

	r.Dispatch(context.Background(), types.NewRequest("/echo", map[string]string{"name": "A"}, nil, nil))
	r.Dispatch(context.Background(), types.NewRequest("/missing", nil, nil, nil))

	entries := rec.Snapshot()
	require.Len(t, entries, 2)
	assert.Equal(t, "/echo", entries[0].Path)
	assert.Equal(t, types.StatusOK, entries[0].Status)
	assert.Equal(t, "/missing", entries[1].Path)
	assert.Equal(t, types.StatusNotFound, entries[1].Status)
	for _, e := range entries {
		assert.NotEmpty(t, e.ID)
	}
}

func TestRouter_QueuePressure(t *testing.T) {
	r := NewRouter(WithRouterAffinityQueueSize(2))
	t.Cleanup(r.Close)

	require.NoError(t, r.HandleFunc("/task", func(context.Context, *types.Request) *types.Response {
		time.Sleep(time.Millisecond)
		return types.Text("done")
	}))

	// 并发量远超队列容量，提交方阻塞等待但不丢任务
	const workers = 20
	var ok int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			resp := r.Dispatch(context.Background(), types.NewRequest("/task", nil, nil, nil))
			if resp.Status == types.StatusOK {
				atomic.AddInt32(&ok, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(workers), atomic.LoadInt32(&ok))
}

func TestRouter_RootOverride(t *testing.T) {
	r := newTestRouter(t)

	require.NoError(t, r.HandleFunc("/", func(context.Context, *types.Request) *types.Response {
		return types.Text("custom root")
	}))

	resp := r.Dispatch(context.Background(), types.NewRequest("/", nil, nil, nil))
	require.Equal(t, types.StatusOK, resp.Status)
	assert.Equal(t, "custom root", string(resp.Body))
}

func ExampleRouter_HandleFunc() {
	r := NewRouter()
	defer r.Close()

	_ = r.HandleFunc("/echo", func(_ context.Context, req *types.Request) *types.Response {
		return types.Text("hello " + req.QueryValue("name"))
	})

	resp := r.Dispatch(context.Background(), types.NewRequest("/echo", map[string]string{"name": "Kyle"}, nil, nil))
	fmt.Println(string(resp.Body))
	// Output: hello Kyle
}
