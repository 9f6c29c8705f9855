// Package reqtrace 维护最近处理过的请求的环形记录
//
// Recorder 基于固定容量的 LRU 缓存实现：每条分发记录以追踪 ID 为键写入，
// 容量满后最旧的记录被淘汰。记录与读取都是并发安全的。
package reqtrace

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-debugagent/pkg/types"
)

// DefaultCapacity 默认保留的记录条数
const DefaultCapacity = 128

// Entry 一次已完成分发的记录
type Entry struct {
	ID        string        `json:"id"`                  // 追踪 ID
	Time      time.Time     `json:"time"`                // 分发完成时刻
	Transport string        `json:"transport,omitempty"` // 来源传输层
	Path      string        `json:"path"`                // 请求路径
	Status    types.Status  `json:"status"`              // 响应状态
	Elapsed   time.Duration `json:"elapsed_ns"`          // 处理耗时
}

// Recorder 最近请求记录器
type Recorder struct {
	cache *lru.Cache[string, Entry]
	clock clock.Clock
}

// New 创建记录器
//
// capacity 小于等于 0 时使用 DefaultCapacity；clk 为 nil 时使用真实时钟。
func New(capacity int, clk clock.Clock) (*Recorder, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clk == nil {
		clk = clock.New()
	}
	cache, err := lru.New[string, Entry](capacity)
	if err != nil {
		return nil, err
	}
	return &Recorder{cache: cache, clock: clk}, nil
}

// Record 写入一条分发记录
func (r *Recorder) Record(ctx context.Context, id, path string, status types.Status, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.cache.Add(id, Entry{
		ID:        id,
		Time:      r.clock.Now(),
		Transport: TransportFrom(ctx),
		Path:      path,
		Status:    status,
		Elapsed:   elapsed,
	})
}

// Snapshot 返回当前全部记录，按写入顺序从旧到新排列
func (r *Recorder) Snapshot() []Entry {
	if r == nil {
		return nil
	}
	keys := r.cache.Keys()
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		if e, ok := r.cache.Peek(k); ok {
			out = append(out, e)
		}
	}
	return out
}

// Len 返回当前记录条数
func (r *Recorder) Len() int {
	if r == nil {
		return 0
	}
	return r.cache.Len()
}

// ════════════════════════════════════════════════════════════════════════════
// 传输层标记
// ════════════════════════════════════════════════════════════════════════════

type transportKey struct{}

// WithTransport 在上下文中标记请求来源的传输层名称
func WithTransport(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, transportKey{}, name)
}

// TransportFrom 读取上下文中的传输层名称，未标记时返回空串
func TransportFrom(ctx context.Context) string {
	name, _ := ctx.Value(transportKey{}).(string)
	return name
}
