package debugp2p

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dep2p/go-debugagent/pkg/types"
)

// 线上格式：每帧由 4 字节大端长度前缀和 JSON 载荷组成。长度必须落在
// (0, MaxFrameSize) 开区间，0 与超限值都视为畸形帧。载荷中的二进制
// 字段按 JSON 惯例编码为 base64。

const (
	// lengthPrefixSize 长度前缀的字节数
	lengthPrefixSize = 4
	// MaxFrameSize 单帧载荷上限（字节）
	MaxFrameSize = 100_000_000
)

// wireRequest 请求的线上编码
type wireRequest struct {
	Path     string            `json:"path"`
	Query    map[string]string `json:"query,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Body     []byte            `json:"body,omitempty"`
}

// wireResponse 响应的线上编码
type wireResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// ════════════════════════════════════════════════════════════════════════════
//  帧读写
// ════════════════════════════════════════════════════════════════════════════

// writeFrame 写入一个长度前缀帧
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyFrame
	}
	if len(payload) >= MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	var prefix [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}

// readFrame 读取一个长度前缀帧
//
// 前缀本身读不到时原样返回底层错误（如 io.EOF）；长度越界的帧在读取
// 载荷前就被拒绝。
func readFrame(r io.Reader) ([]byte, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if length >= MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return payload, nil
}

// ════════════════════════════════════════════════════════════════════════════
//  请求/响应编解码
// ════════════════════════════════════════════════════════════════════════════

// writeRequest 把调试请求编码为一帧写入流
func writeRequest(w io.Writer, req *types.Request) error {
	payload, err := json.Marshal(wireRequest{
		Path:     req.Path,
		Query:    req.Query,
		Metadata: req.Metadata,
		Body:     req.Body,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return writeFrame(w, payload)
}

// readRequest 从流中读取一帧并解码为调试请求
func readRequest(r io.Reader) (*types.Request, error) {
	payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}

	var wr wireRequest
	if err := json.Unmarshal(payload, &wr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if wr.Path == "" {
		return nil, fmt.Errorf("%w: missing path", ErrMalformedFrame)
	}

	return types.NewRequest(wr.Path, wr.Query, wr.Metadata, wr.Body), nil
}

// writeResponse 把调试响应编码为一帧写入流
func writeResponse(w io.Writer, resp *types.Response) error {
	payload, err := json.Marshal(wireResponse{
		Status:      int(resp.Status),
		ContentType: string(resp.ContentType),
		Body:        resp.Body,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	return writeFrame(w, payload)
}

// readResponse 从流中读取一帧并解码为调试响应
func readResponse(r io.Reader) (*types.Response, error) {
	payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}

	var wr wireResponse
	if err := json.Unmarshal(payload, &wr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	return &types.Response{
		Status:      types.Status(wr.Status),
		ContentType: types.ContentType(wr.ContentType),
		Body:        wr.Body,
	}, nil
}
