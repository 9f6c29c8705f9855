package types

// ============================================================================
//                              ParameterInfo - 参数描述
// ============================================================================

// ParameterInfo 端点参数的描述性元数据
//
// 仅用于 API 自描述（索引文档），核心不会依据它校验传入请求。
type ParameterInfo struct {
	// Name 参数名
	Name string `json:"name"`

	// Description 参数说明
	Description string `json:"description,omitempty"`

	// Required 是否必填
	Required bool `json:"required,omitempty"`

	// Default 默认值，空字符串表示无默认值
	Default string `json:"default,omitempty"`

	// Examples 示例值，保持声明顺序
	Examples []string `json:"examples,omitempty"`
}

// ============================================================================
//                              RouteInfo - 索引文档节点
// ============================================================================

// RouteInfo 自描述文档中的一个节点
//
// 普通端点填充 Description/Parameters/Affinity；
// 挂载的子路由 Mount 为 true，EndpointCount 为其递归端点总数，
// Routes 仅在 depth=full 时填充。
type RouteInfo struct {
	// Path 节点路径（相对于所属路由）
	Path string `json:"path"`

	// Description 端点说明
	Description string `json:"description,omitempty"`

	// Parameters 参数元数据
	Parameters []ParameterInfo `json:"parameters,omitempty"`

	// Affinity 处理器是否绑定亲和线程
	Affinity bool `json:"affinity,omitempty"`

	// Mount 是否为挂载的子路由
	Mount bool `json:"mount,omitempty"`

	// EndpointCount 递归端点总数（根节点与挂载节点填充）
	EndpointCount int `json:"endpoint_count,omitempty"`

	// Routes 子节点（depth=full 时填充）
	Routes []RouteInfo `json:"routes,omitempty"`
}

// ============================================================================
//                              IndexDepth - 索引深度
// ============================================================================

// IndexDepth 索引文档的展开深度
type IndexDepth string

const (
	// IndexFull 完整展开挂载的子路由（默认）
	IndexFull IndexDepth = "full"

	// IndexShallow 挂载的子路由仅报告端点数量
	IndexShallow IndexDepth = "shallow"
)

// ParseIndexDepth 解析深度参数
//
// 空字符串视为默认的 full；无法识别的值返回 false。
func ParseIndexDepth(s string) (IndexDepth, bool) {
	switch s {
	case "", string(IndexFull):
		return IndexFull, true
	case string(IndexShallow):
		return IndexShallow, true
	default:
		return "", false
	}
}
