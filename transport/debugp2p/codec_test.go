package debugp2p

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-debugagent/pkg/types"
)

// frameHeader 构造一个长度前缀
func frameHeader(n uint32) []byte {
	hdr := make([]byte, lengthPrefixSize)
	binary.BigEndian.PutUint32(hdr, n)
	return hdr
}

// zeroReader 源源不断地产出零字节
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestFrameRoundtrip(t *testing.T) {
	var buf bytes.Buffer

	payload := []byte("hello debug")
	require.NoError(t, writeFrame(&buf, payload))

	got, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWriteFrame_Validation(t *testing.T) {
	t.Run("空载荷被拒绝", func(t *testing.T) {
		err := writeFrame(io.Discard, nil)
		assert.ErrorIs(t, err, ErrEmptyFrame)

		err = writeFrame(io.Discard, []byte{})
		assert.ErrorIs(t, err, ErrEmptyFrame)
	})

	t.Run("达到上限被拒绝", func(t *testing.T) {
		err := writeFrame(io.Discard, make([]byte, MaxFrameSize))
		assert.ErrorIs(t, err, ErrFrameTooLarge)
	})

	t.Run("上限以内被接受", func(t *testing.T) {
		err := writeFrame(io.Discard, make([]byte, MaxFrameSize-1))
		assert.NoError(t, err)
	})
}

func TestReadFrame_Boundaries(t *testing.T) {
	t.Run("零长度被拒绝", func(t *testing.T) {
		_, err := readFrame(bytes.NewReader(frameHeader(0)))
		assert.ErrorIs(t, err, ErrEmptyFrame)
	})

	t.Run("达到上限被拒绝", func(t *testing.T) {
		// 只给前缀不给载荷：长度检查必须发生在读取载荷之前
		_, err := readFrame(bytes.NewReader(frameHeader(MaxFrameSize)))
		assert.ErrorIs(t, err, ErrFrameTooLarge)
	})

	t.Run("上限以内被接受", func(t *testing.T) {
		r := io.MultiReader(
			bytes.NewReader(frameHeader(MaxFrameSize-1)),
			io.LimitReader(zeroReader{}, MaxFrameSize-1),
		)
		payload, err := readFrame(r)
		require.NoError(t, err)
		assert.Len(t, payload, MaxFrameSize-1)
	})
}

func TestReadFrame_EOF(t *testing.T) {
	// 对端干净关闭时原样返回 io.EOF，调用方据此区分正常结束与半截帧
	_, err := readFrame(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrame_TruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(frameHeader(10))
	buf.WriteString("short")

	_, err := readFrame(&buf)
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestRequestRoundtrip(t *testing.T) {
	t.Run("完整请求", func(t *testing.T) {
		var buf bytes.Buffer

		req := types.NewRequest("/echo",
			map[string]string{"name": "Kyle"},
			map[string]string{"session": "abc123"},
			[]byte{0x00, 0x01, 0xFF})
		require.NoError(t, writeRequest(&buf, req))

		got, err := readRequest(&buf)
		require.NoError(t, err)
		assert.Equal(t, "/echo", got.Path)
		assert.Equal(t, "Kyle", got.QueryValue("name"))
		assert.Equal(t, "abc123", got.Metadata["session"])
		assert.Equal(t, []byte{0x00, 0x01, 0xFF}, got.Body)
	})

	t.Run("最小请求", func(t *testing.T) {
		var buf bytes.Buffer

		require.NoError(t, writeRequest(&buf, types.NewRequest("/", nil, nil, nil)))

		got, err := readRequest(&buf)
		require.NoError(t, err)
		assert.Equal(t, "/", got.Path)
		assert.Empty(t, got.Query)
		assert.Empty(t, got.Metadata)
		assert.Empty(t, got.Body)
	})
}

func TestReadRequest_Malformed(t *testing.T) {
	t.Run("非法 JSON", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeFrame(&buf, []byte("not-json")))

		_, err := readRequest(&buf)
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})

	t.Run("缺少路径", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeFrame(&buf, []byte("{}")))

		_, err := readRequest(&buf)
		assert.ErrorIs(t, err, ErrMalformedFrame)
	})
}

func TestResponseRoundtrip(t *testing.T) {
	t.Run("JSON 响应", func(t *testing.T) {
		var buf bytes.Buffer

		resp := types.JSON(map[string]int{"count": 3})
		require.NoError(t, writeResponse(&buf, resp))

		got, err := readResponse(&buf)
		require.NoError(t, err)
		assert.Equal(t, types.StatusOK, got.Status)
		assert.Equal(t, types.ContentTypeJSON, got.ContentType)
		assert.JSONEq(t, `{"count": 3}`, string(got.Body))
	})

	t.Run("空响应体", func(t *testing.T) {
		var buf bytes.Buffer

		require.NoError(t, writeResponse(&buf, types.Text("")))

		got, err := readResponse(&buf)
		require.NoError(t, err)
		assert.Equal(t, types.StatusOK, got.Status)
		assert.Empty(t, got.Body)
	})
}
