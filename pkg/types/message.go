// Package types 定义调试代理的基础值类型
//
// 这是整个模块的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，在路由层与各传输适配器之间传递数据；
// 构造完成后视为只读，构造函数对传入的 map 和字节切片做深拷贝。
package types

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
//                              Status - 响应状态
// ============================================================================

// Status 响应状态码
//
// 数值与 HTTP 状态码一致，同时也是 P2P 线上文档中 "status" 字段的取值，
// 两种传输无需各自维护映射表。
type Status int

const (
	// StatusOK 请求成功
	StatusOK Status = 200
	// StatusBadRequest 请求参数错误
	StatusBadRequest Status = 400
	// StatusNotFound 路径未注册
	StatusNotFound Status = 404
	// StatusInternalError 处理器内部错误
	StatusInternalError Status = 500
)

// String 返回状态的字符串表示
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBadRequest:
		return "bad_request"
	case StatusNotFound:
		return "not_found"
	case StatusInternalError:
		return "internal_error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ============================================================================
//                              ContentType - 内容类型
// ============================================================================

// ContentType 响应内容类型
//
// 取值为标准 MIME 字符串：HTTP 适配器直接写入 Content-Type 头，
// P2P 适配器直接写入线上文档的 "content_type" 字段。
type ContentType string

const (
	// ContentTypeJSON JSON 文档
	ContentTypeJSON ContentType = "application/json"
	// ContentTypeHTML HTML 页面
	ContentTypeHTML ContentType = "text/html; charset=utf-8"
	// ContentTypeText 纯文本
	ContentTypeText ContentType = "text/plain; charset=utf-8"
	// ContentTypePNG PNG 图片
	ContentTypePNG ContentType = "image/png"
	// ContentTypeJPEG JPEG 图片
	ContentTypeJPEG ContentType = "image/jpeg"
	// ContentTypeBinary 任意二进制数据
	ContentTypeBinary ContentType = "application/octet-stream"
)

// ============================================================================
//                              Request - 请求
// ============================================================================

// Request 一次端点调用的请求
//
// Path 始终为绝对路径（如 "/files/list"）。Query 的键唯一；
// Metadata 携带传输层的头部或注解；Body 可选。
// 构造后不应再修改任何字段。
type Request struct {
	// Path 请求路径
	Path string

	// Query 查询参数
	Query map[string]string

	// Metadata 传输层元数据
	Metadata map[string]string

	// Body 请求体（可选）
	Body []byte
}

// NewRequest 创建请求
//
// 对 query、metadata 和 body 做深拷贝，调用方之后对原值的修改
// 不会影响已构造的请求。
func NewRequest(path string, query, metadata map[string]string, body []byte) *Request {
	return &Request{
		Path:     path,
		Query:    copyStringMap(query),
		Metadata: copyStringMap(metadata),
		Body:     copyBytes(body),
	}
}

// QueryValue 返回指定查询参数的值，不存在时返回空字符串
func (r *Request) QueryValue(key string) string {
	if r.Query == nil {
		return ""
	}
	return r.Query[key]
}

// ============================================================================
//                              Response - 响应
// ============================================================================

// Response 一次端点调用的响应
//
// 构造后不应再修改任何字段。
type Response struct {
	// Status 响应状态
	Status Status

	// ContentType 内容类型
	ContentType ContentType

	// Body 响应体
	Body []byte
}

// OK 创建成功响应
func OK(contentType ContentType, body []byte) *Response {
	return &Response{
		Status:      StatusOK,
		ContentType: contentType,
		Body:        copyBytes(body),
	}
}

// JSON 将任意值序列化为 JSON 成功响应
//
// 序列化失败时返回 internalError 响应而不是崩溃，
// 调试端点的输出面向人类阅读，因此使用缩进格式。
func JSON(v any) *Response {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return InternalError(fmt.Sprintf("encode json: %v", err))
	}
	return &Response{
		Status:      StatusOK,
		ContentType: ContentTypeJSON,
		Body:        data,
	}
}

// Text 创建纯文本成功响应
func Text(s string) *Response {
	return &Response{
		Status:      StatusOK,
		ContentType: ContentTypeText,
		Body:        []byte(s),
	}
}

// HTML 创建 HTML 成功响应
func HTML(s string) *Response {
	return &Response{
		Status:      StatusOK,
		ContentType: ContentTypeHTML,
		Body:        []byte(s),
	}
}

// NotFound 创建路径未注册响应
func NotFound() *Response {
	return &Response{
		Status:      StatusNotFound,
		ContentType: ContentTypeText,
		Body:        []byte("not found"),
	}
}

// BadRequest 创建请求参数错误响应
func BadRequest(msg string) *Response {
	return &Response{
		Status:      StatusBadRequest,
		ContentType: ContentTypeText,
		Body:        []byte(msg),
	}
}

// InternalError 创建内部错误响应
func InternalError(msg string) *Response {
	return &Response{
		Status:      StatusInternalError,
		ContentType: ContentTypeText,
		Body:        []byte(msg),
	}
}

// ============================================================================
//                              辅助函数
// ============================================================================

// copyStringMap 深拷贝字符串映射，nil 输入返回 nil
func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// copyBytes 拷贝字节切片，nil 输入返回 nil
func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
