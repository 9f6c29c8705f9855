package debugagent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-debugagent/pkg/types"
)

// buildIndexTree 构造一棵带挂载的路由树：
//
//	/echo
//	/stats
//	/tools          (挂载)
//	/tools/ping
//	/tools/trace
func buildIndexTree(t *testing.T) *Router {
	t.Helper()

	root := NewRouter()
	t.Cleanup(root.Close)

	require.NoError(t, root.Register(Route{
		Path:        "/echo",
		Description: "echo the name parameter",
		Parameters:  []types.ParameterInfo{{Name: "name", Required: true, Examples: []string{"Kyle"}}},
		Affinity:    true,
		Handler:     echoHandler,
	}))
	require.NoError(t, root.Register(Route{
		Path:    "/stats",
		Handler: echoHandler,
	}))

	tools := NewRouter()
	require.NoError(t, tools.HandleFunc("/ping", echoHandler))
	require.NoError(t, tools.HandleFunc("/trace", echoHandler))
	require.NoError(t, root.Mount("/tools", tools))

	return root
}

func TestRouter_Index_Full(t *testing.T) {
	root := buildIndexTree(t)

	idx := root.Index(types.IndexFull)
	require.NotNil(t, idx)
	assert.Equal(t, "/", idx.Path)
	assert.Equal(t, 4, idx.EndpointCount)

	require.Len(t, idx.Routes, 3)
	// 条目按路径排序
	assert.Equal(t, "/echo", idx.Routes[0].Path)
	assert.Equal(t, "/stats", idx.Routes[1].Path)
	assert.Equal(t, "/tools", idx.Routes[2].Path)

	echo := idx.Routes[0]
	assert.Equal(t, "echo the name parameter", echo.Description)
	assert.True(t, echo.Affinity)
	require.Len(t, echo.Parameters, 1)
	assert.Equal(t, "name", echo.Parameters[0].Name)

	mount := idx.Routes[2]
	assert.True(t, mount.Mount)
	assert.Equal(t, 2, mount.EndpointCount)
	require.Len(t, mount.Routes, 2)
	assert.Equal(t, "/ping", mount.Routes[0].Path)
	assert.Equal(t, "/trace", mount.Routes[1].Path)
}

func TestRouter_Index_Shallow(t *testing.T) {
	root := buildIndexTree(t)

	idx := root.Index(types.IndexShallow)
	require.Len(t, idx.Routes, 3)

	mount := idx.Routes[2]
	assert.True(t, mount.Mount)
	assert.Equal(t, 2, mount.EndpointCount)
	assert.Empty(t, mount.Routes, "shallow index must not expand mounts")
}

func TestRouter_Index_Dispatch(t *testing.T) {
	root := buildIndexTree(t)

	t.Run("默认深度为 full", func(t *testing.T) {
		resp := root.Dispatch(context.Background(), types.NewRequest("/", nil, nil, nil))
		require.Equal(t, types.StatusOK, resp.Status)
		require.Equal(t, types.ContentTypeJSON, resp.ContentType)

		var idx types.RouteInfo
		require.NoError(t, json.Unmarshal(resp.Body, &idx))
		assert.Equal(t, 4, idx.EndpointCount)
		require.Len(t, idx.Routes, 3)
		assert.NotEmpty(t, idx.Routes[2].Routes)
	})

	t.Run("depth=shallow", func(t *testing.T) {
		resp := root.Dispatch(context.Background(),
			types.NewRequest("/", map[string]string{"depth": "shallow"}, nil, nil))
		require.Equal(t, types.StatusOK, resp.Status)

		var idx types.RouteInfo
		require.NoError(t, json.Unmarshal(resp.Body, &idx))
		require.Len(t, idx.Routes, 3)
		assert.Empty(t, idx.Routes[2].Routes)
	})

	t.Run("非法深度", func(t *testing.T) {
		resp := root.Dispatch(context.Background(),
			types.NewRequest("/", map[string]string{"depth": "bogus"}, nil, nil))
		assert.Equal(t, types.StatusBadRequest, resp.Status)
	})
}

func TestRouter_EndpointCount_Empty(t *testing.T) {
	r := newTestRouter(t)
	assert.Zero(t, r.EndpointCount())

	idx := r.Index(types.IndexFull)
	assert.Zero(t, idx.EndpointCount)
	assert.Empty(t, idx.Routes)
}
