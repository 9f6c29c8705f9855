package sysinfo

import (
	"context"
	"encoding/json"
	"runtime"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dep2p/pkg/lib/log"

	"github.com/dep2p/go-debugagent/internal/reqtrace"
	"github.com/dep2p/go-debugagent/pkg/types"
)

// endpointByPath 在提供者的端点中查找指定路径
func endpointByPath(t *testing.T, p *Provider, path string) Endpoint {
	t.Helper()
	for _, ep := range p.Endpoints() {
		if ep.Path == path {
			return ep
		}
	}
	t.Fatalf("endpoint %s not provided", path)
	return Endpoint{}
}

// call 以给定查询参数调用端点
func call(ep Endpoint, query map[string]string) *types.Response {
	return ep.Handler(context.Background(), types.NewRequest(ep.Path, query, nil, nil))
}

func TestProvider_Endpoints(t *testing.T) {
	t.Run("默认端点", func(t *testing.T) {
		p := New()

		paths := make([]string, 0)
		for _, ep := range p.Endpoints() {
			paths = append(paths, ep.Path)
			assert.False(t, ep.Affinity, "系统端点不应要求亲和线程: %s", ep.Path)
			assert.NotNil(t, ep.Handler)
		}
		assert.Equal(t, []string{"/runtime", "/health", "/loglevel"}, paths)
	})

	t.Run("配置记录器后提供请求端点", func(t *testing.T) {
		rec, err := reqtrace.New(8, nil)
		require.NoError(t, err)

		p := New(WithRecorder(rec))
		endpointByPath(t, p, "/requests")
	})
}

func TestRuntimeEndpoint(t *testing.T) {
	p := New()
	resp := call(endpointByPath(t, p, "/runtime"), nil)

	require.Equal(t, types.StatusOK, resp.Status)
	require.Equal(t, types.ContentTypeJSON, resp.ContentType)

	var info RuntimeInfo
	require.NoError(t, json.Unmarshal(resp.Body, &info))
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.GreaterOrEqual(t, info.NumCPU, 1)
	assert.GreaterOrEqual(t, info.NumGoroutine, 1)
	assert.NotZero(t, info.PID)
	assert.NotEmpty(t, info.Uptime)
}

func TestHealthEndpoint(t *testing.T) {
	mock := clock.NewMock()
	p := New(WithClock(mock))
	mock.Add(90 * time.Second)

	resp := call(endpointByPath(t, p, "/health"), nil)
	require.Equal(t, types.StatusOK, resp.Status)

	var health HealthInfo
	require.NoError(t, json.Unmarshal(resp.Body, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "1m30s", health.Uptime)
}

func TestLogLevelEndpoint(t *testing.T) {
	t.Run("查询当前级别", func(t *testing.T) {
		p := New()
		resp := call(endpointByPath(t, p, "/loglevel"), nil)
		require.Equal(t, types.StatusOK, resp.Status)

		var info LevelInfo
		require.NoError(t, json.Unmarshal(resp.Body, &info))
		assert.Equal(t, "info", info.Level)
		assert.Equal(t, []string{"debug", "info", "warn", "error"}, info.Valid)
	})

	t.Run("切换级别", func(t *testing.T) {
		defer log.SetLevel(log.LevelInfo)

		p := New()
		ep := endpointByPath(t, p, "/loglevel")

		resp := call(ep, map[string]string{"level": "debug"})
		require.Equal(t, types.StatusOK, resp.Status)

		var info LevelInfo
		require.NoError(t, json.Unmarshal(resp.Body, &info))
		assert.Equal(t, "debug", info.Level)

		// 再次查询反映新级别
		resp = call(ep, nil)
		require.NoError(t, json.Unmarshal(resp.Body, &info))
		assert.Equal(t, "debug", info.Level)
	})

	t.Run("非法级别", func(t *testing.T) {
		p := New()
		resp := call(endpointByPath(t, p, "/loglevel"), map[string]string{"level": "loud"})

		assert.Equal(t, types.StatusBadRequest, resp.Status)
		assert.Contains(t, string(resp.Body), "unknown log level")
	})
}

func TestRequestsEndpoint(t *testing.T) {
	rec, err := reqtrace.New(8, clock.NewMock())
	require.NoError(t, err)

	p := New(WithRecorder(rec))
	ep := endpointByPath(t, p, "/requests")

	t.Run("空记录", func(t *testing.T) {
		resp := call(ep, nil)
		require.Equal(t, types.StatusOK, resp.Status)

		var rl RequestLog
		require.NoError(t, json.Unmarshal(resp.Body, &rl))
		assert.Zero(t, rl.Count)
		assert.NotNil(t, rl.Requests)
	})

	t.Run("按写入顺序返回", func(t *testing.T) {
		ctx := reqtrace.WithTransport(context.Background(), "http")
		rec.Record(ctx, "trace-1", "/echo", types.StatusOK, 3*time.Millisecond)
		rec.Record(ctx, "trace-2", "/files/list", types.StatusNotFound, time.Millisecond)

		resp := call(ep, nil)
		require.Equal(t, types.StatusOK, resp.Status)

		var rl RequestLog
		require.NoError(t, json.Unmarshal(resp.Body, &rl))
		require.Equal(t, 2, rl.Count)
		assert.Equal(t, "trace-1", rl.Requests[0].ID)
		assert.Equal(t, "/echo", rl.Requests[0].Path)
		assert.Equal(t, "http", rl.Requests[0].Transport)
		assert.Equal(t, "trace-2", rl.Requests[1].ID)
		assert.Equal(t, types.StatusNotFound, rl.Requests[1].Status)
	})
}
