package debugagent

import (
	"fmt"
	"sort"

	"github.com/dep2p/go-debugagent/pkg/types"
)

// serveIndex 处理对路由器索引的请求
//
// depth 查询参数控制展开深度，缺省为 full；无法识别的取值返回
// badRequest。
func serveIndex(r *Router, req *types.Request) *types.Response {
	raw := req.QueryValue("depth")
	depth, ok := types.ParseIndexDepth(raw)
	if !ok {
		return types.BadRequest(fmt.Sprintf("invalid depth %q", raw))
	}
	return types.JSON(r.Index(depth))
}

// Index 生成路由器的自描述索引
//
// IndexShallow 时挂载的子路由器仅给出端点计数，IndexFull 时递归展开
// 全部子路由器。挂载条目内的路径相对于其子路由器。
func (r *Router) Index(depth types.IndexDepth) *types.RouteInfo {
	return &types.RouteInfo{
		Path:          "/",
		EndpointCount: r.EndpointCount(),
		Routes:        r.childInfos(depth),
	}
}

// childInfos 列出直接子条目的描述，按路径排序
//
// 先在读锁下对路由表做快照，递归进入子路由器时不持有任何锁。
func (r *Router) childInfos(depth types.IndexDepth) []types.RouteInfo {
	type subRef struct {
		prefix string
		sub    *Router
	}

	r.mu.RLock()
	infos := make([]types.RouteInfo, 0, len(r.entries))
	subs := make([]subRef, 0)
	for path, e := range r.entries {
		if e.sub != nil {
			subs = append(subs, subRef{prefix: path, sub: e.sub})
			continue
		}
		infos = append(infos, types.RouteInfo{
			Path:        path,
			Description: e.route.Description,
			Parameters:  e.route.Parameters,
			Affinity:    e.route.Affinity,
		})
	}
	r.mu.RUnlock()

	for _, s := range subs {
		info := types.RouteInfo{
			Path:          s.prefix,
			Mount:         true,
			EndpointCount: s.sub.EndpointCount(),
		}
		if depth == types.IndexFull {
			info.Routes = s.sub.childInfos(depth)
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos
}

// EndpointCount 返回端点总数，含所有挂载的子路由器
func (r *Router) EndpointCount() int {
	r.mu.RLock()
	count := 0
	subs := make([]*Router, 0)
	for _, e := range r.entries {
		if e.sub == nil {
			count++
			continue
		}
		subs = append(subs, e.sub)
	}
	r.mu.RUnlock()

	for _, sub := range subs {
		count += sub.EndpointCount()
	}
	return count
}
