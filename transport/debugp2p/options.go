package debugp2p

import "time"

// ProtocolID 调试请求/响应交换的流协议标识
const ProtocolID = "/debugagent/rpc/1.0.0"

// 默认超时
const (
	// DefaultStartTimeout 等待节点上线的默认期限
	DefaultStartTimeout = 60 * time.Second
	// DefaultStopTimeout 等待在途请求结束的默认期限
	DefaultStopTimeout = 5 * time.Second
	// DefaultRequestTimeout 服务端单次请求处理的默认上限
	DefaultRequestTimeout = 30 * time.Second
	// DefaultQueryTimeout 客户端单次查询的默认上限
	DefaultQueryTimeout = 30 * time.Second
)

// Config 传输配置
type Config struct {
	// KeyPath 身份文件路径
	//
	// 为空时每次启动使用临时身份，节点 ID 不跨重启保留。
	KeyPath string

	// ForceNewIdentity 启动时强制生成新身份
	//
	// 置位后每次 Start 都丢弃现有身份并重新生成；配置了 KeyPath 时
	// 新身份原子覆盖旧文件。
	ForceNewIdentity bool

	// ListenPort QUIC 监听端口，0 表示随机端口
	ListenPort int

	// BootstrapPeers 引导节点的完整地址列表
	BootstrapPeers []string

	// EnableRelay 是否启用中继
	EnableRelay bool

	// EnableNAT 是否启用 NAT 穿透
	EnableNAT bool

	// NodeLogFile 底层节点日志输出文件，空表示跟随默认输出
	NodeLogFile string

	// StartTimeout 等待节点上线的期限
	StartTimeout time.Duration

	// StopTimeout 停止时等待在途请求结束的期限
	StopTimeout time.Duration

	// RequestTimeout 服务端处理单个请求的上限，0 表示不限制
	RequestTimeout time.Duration

	// QueryTimeout 客户端单次查询的上限，0 表示跟随调用方 ctx
	QueryTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		EnableNAT:      true,
		StartTimeout:   DefaultStartTimeout,
		StopTimeout:    DefaultStopTimeout,
		RequestTimeout: DefaultRequestTimeout,
		QueryTimeout:   DefaultQueryTimeout,
	}
}

// Option 配置选项
type Option func(*Config)

// WithKeyPath 设置身份文件路径，启用持久化身份
func WithKeyPath(path string) Option {
	return func(c *Config) {
		c.KeyPath = path
	}
}

// WithForceNewIdentity 每次启动强制生成新身份
func WithForceNewIdentity() Option {
	return func(c *Config) {
		c.ForceNewIdentity = true
	}
}

// WithListenPort 设置 QUIC 监听端口
func WithListenPort(port int) Option {
	return func(c *Config) {
		if port >= 0 && port <= 65535 {
			c.ListenPort = port
		}
	}
}

// WithBootstrapPeers 设置引导节点
func WithBootstrapPeers(peers ...string) Option {
	return func(c *Config) {
		c.BootstrapPeers = append([]string(nil), peers...)
	}
}

// WithRelay 启用或禁用中继
func WithRelay(enable bool) Option {
	return func(c *Config) {
		c.EnableRelay = enable
	}
}

// WithNAT 启用或禁用 NAT 穿透
func WithNAT(enable bool) Option {
	return func(c *Config) {
		c.EnableNAT = enable
	}
}

// WithNodeLogFile 把底层节点日志重定向到文件
func WithNodeLogFile(path string) Option {
	return func(c *Config) {
		c.NodeLogFile = path
	}
}

// WithStartTimeout 设置等待节点上线的期限
func WithStartTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.StartTimeout = d
		}
	}
}

// WithStopTimeout 设置等待在途请求结束的期限
func WithStopTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.StopTimeout = d
		}
	}
}

// WithRequestTimeout 设置服务端单次请求处理上限
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

// WithQueryTimeout 设置客户端单次查询上限
func WithQueryTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.QueryTimeout = d
	}
}
