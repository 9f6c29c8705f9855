package debugagent

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/dep2p/go-debugagent/internal/metrics"
	"github.com/dep2p/go-debugagent/pkg/types"
)

// DefaultAffinityQueueSize 亲和队列默认容量
const DefaultAffinityQueueSize = 64

// affinityTask 提交给亲和工作协程的一次调用
type affinityTask struct {
	ctx    context.Context
	run    func(ctx context.Context) *types.Response
	result chan *types.Response // 容量 1，工作协程写入后立即继续
}

// affinityExecutor 亲和执行器
//
// 所有亲和端点的调用汇聚到同一个工作协程上顺序执行，提交方阻塞等待
// 结果。队列满时提交继续阻塞，直到队列腾出空间、调用方上下文取消或
// 执行器关闭。
type affinityExecutor struct {
	queue     chan *affinityTask
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	collector *metrics.Collector
}

func newAffinityExecutor(queueSize int, collector *metrics.Collector) *affinityExecutor {
	e := &affinityExecutor{
		queue:     make(chan *affinityTask, queueSize),
		done:      make(chan struct{}),
		collector: collector,
	}
	e.wg.Add(1)
	go e.loop()
	return e
}

// loop 工作协程主循环
func (e *affinityExecutor) loop() {
	defer e.wg.Done()
	for {
		select {
		case task := <-e.queue:
			e.collector.SetQueueDepth(len(e.queue))
			// 调用方已放弃等待的任务不再执行
			select {
			case <-task.ctx.Done():
				task.result <- types.InternalError(fmt.Sprintf("dispatch cancelled: %v", task.ctx.Err()))
				continue
			default:
			}
			task.result <- task.run(withAffinityMarker(task.ctx))
		case <-e.done:
			return
		}
	}
}

// submit 提交任务并等待结果
//
// 亲和工作协程内的再入调用直接内联执行，避免自我死锁。调用方上下文
// 在排队或等待期间取消时返回 internalError，已入队的任务由工作协程
// 在执行前丢弃。
func (e *affinityExecutor) submit(ctx context.Context, run func(ctx context.Context) *types.Response) *types.Response {
	if onAffinityWorker(ctx) {
		return run(ctx)
	}

	task := &affinityTask{
		ctx:    ctx,
		run:    run,
		result: make(chan *types.Response, 1),
	}

	select {
	case e.queue <- task:
		e.collector.SetQueueDepth(len(e.queue))
	case <-ctx.Done():
		return types.InternalError(fmt.Sprintf("dispatch cancelled: %v", ctx.Err()))
	case <-e.done:
		return types.InternalError("router closed")
	}

	select {
	case resp := <-task.result:
		return resp
	case <-ctx.Done():
		return types.InternalError(fmt.Sprintf("dispatch cancelled: %v", ctx.Err()))
	case <-e.done:
		return types.InternalError("router closed")
	}
}

// close 停止工作协程并等待其退出，重复调用无害
func (e *affinityExecutor) close() {
	e.closeOnce.Do(func() {
		close(e.done)
	})
	e.wg.Wait()
}

// ════════════════════════════════════════════════════════════════════════════
//  执行保护
// ════════════════════════════════════════════════════════════════════════════

// affinityKey 标记上下文已在亲和工作协程上
type affinityKey struct{}

func withAffinityMarker(ctx context.Context) context.Context {
	return context.WithValue(ctx, affinityKey{}, true)
}

func onAffinityWorker(ctx context.Context) bool {
	marked, _ := ctx.Value(affinityKey{}).(bool)
	return marked
}

// safeInvoke 执行处理函数并吸收 panic
func safeInvoke(ctx context.Context, route Route, req *types.Request) (resp *types.Response) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("处理器发生 panic",
				"path", route.Path,
				"panic", rec,
				"stack", string(debug.Stack()))
			resp = types.InternalError(fmt.Sprintf("handler panic: %v", rec))
		}
	}()

	resp = route.Handler(ctx, req)
	if resp == nil {
		resp = types.InternalError("handler returned nil response")
	}
	return resp
}
