package core

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/djskncxm/graphreq/pkg/httpc"
)

// ErrTaskDropped 任务在结果送达之前被取消
var ErrTaskDropped = errors.New("core: task dropped before delivery")

// Task 提交后的请求，Done 在回调返回之后关闭
type Task struct {
	id     string
	req    *httpc.Request
	done   chan struct{}
	result *httpc.Result
	err    error
}

func newTask(req *httpc.Request) *Task {
	return &Task{
		id:   uuid.New().String(),
		req:  req,
		done: make(chan struct{}),
	}
}

func (t *Task) ID() string { return t.id }

func (t *Task) Request() *httpc.Request { return t.req }

func (t *Task) Done() <-chan struct{} { return t.done }

// Wait 阻塞到任务结束或 ctx 结束
func (t *Task) Wait(ctx context.Context) (*httpc.Result, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result 任务未结束时返回 nil
func (t *Task) Result() *httpc.Result {
	select {
	case <-t.done:
		return t.result
	default:
		return nil
	}
}

func (t *Task) finish(res *httpc.Result) {
	t.result = res
	if res == nil {
		t.err = ErrTaskDropped
	}
	close(t.done)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
