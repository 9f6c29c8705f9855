package debugp2p

import "errors"

// 错误定义
var (
	// ErrNoRouter 创建传输时未提供路由器
	ErrNoRouter = errors.New("debugp2p: no router bound")
	// ErrNotStarted 传输尚未启动
	ErrNotStarted = errors.New("debugp2p: transport not started")
	// ErrNotIdle 操作要求传输处于空闲状态
	ErrNotIdle = errors.New("debugp2p: transport is running")
	// ErrNoIdentity 尚未加载任何身份
	ErrNoIdentity = errors.New("debugp2p: no identity loaded")
	// ErrNilRequest 请求为空
	ErrNilRequest = errors.New("debugp2p: nil request")
	// ErrStartTimeout 节点未在期限内上线
	ErrStartTimeout = errors.New("debugp2p: node start timed out")
	// ErrEmptyFrame 帧长度为 0
	ErrEmptyFrame = errors.New("debugp2p: empty frame")
	// ErrFrameTooLarge 帧长度超出上限
	ErrFrameTooLarge = errors.New("debugp2p: frame exceeds size limit")
	// ErrMalformedFrame 帧载荷无法解析
	ErrMalformedFrame = errors.New("debugp2p: malformed frame")
	// ErrStreamReset 流被对端复位
	ErrStreamReset = errors.New("debugp2p: stream reset")
)
