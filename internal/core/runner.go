package core

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/djskncxm/graphreq/internal/download"
	"github.com/djskncxm/graphreq/pkg/httpc"
	"github.com/djskncxm/graphreq/pkg/logger"
	"github.com/djskncxm/graphreq/pkg/middleware"
)

type State int32

const (
	StateCreated State = iota
	StateConfigured
	StateSubmitted
	StateAwaitingTransport
	StateDelivered
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConfigured:
		return "configured"
	case StateSubmitted:
		return "submitted"
	case StateAwaitingTransport:
		return "awaiting_transport"
	case StateDelivered:
		return "delivered"
	case StateDisposed:
		return "disposed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// DeleteSentinel DELETE 通过 POST 携带这个字段模拟
const DeleteSentinel = "delete"

const (
	StatDelivered      = "requests_delivered"
	StatFailed         = "requests_failed"
	StatDropped        = "requests_dropped"
	StatCallbackPanics = "callback_panics"
	StatSubmitted      = "requests_submitted"
)

type Transport interface {
	Get(ctx context.Context, url string, header http.Header) *download.Operation
	Post(ctx context.Context, url string, form *httpc.Form) *download.Operation
}

type RunnerOptions struct {
	IsWeb       bool
	UserAgent   string
	Transport   Transport
	Middlewares *middleware.MiddlewareManager
	Logger      *logger.Logger
}

// RequestRunner 执行一个请求，只执行一次
type RequestRunner struct {
	req   *httpc.Request
	opts  RunnerOptions
	log   *logger.Logger
	state atomic.Int32
}

func NewRequestRunner(req *httpc.Request, opts RunnerOptions) *RequestRunner {
	if opts.Middlewares == nil {
		opts.Middlewares = middleware.NewMiddlewareManager()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	r := &RequestRunner{
		req:  req,
		opts: opts,
		log:  opts.Logger.WithFields(map[string]interface{}{"method": req.Method(), "url": req.URL()}),
	}
	r.state.Store(int32(StateConfigured))
	return r
}

func (r *RequestRunner) State() State {
	return State(r.state.Load())
}

// Run 发出请求并等待完成，回调最多执行一次。
// ctx 在完成前被取消时不执行回调，返回 nil。
func (r *RequestRunner) Run(ctx context.Context) *httpc.Result {
	if !r.state.CompareAndSwap(int32(StateConfigured), int32(StateSubmitted)) {
		return nil
	}

	op, url := r.submit(ctx)
	defer r.dispose(op)

	r.state.Store(int32(StateAwaitingTransport))
	if err := op.Wait(ctx); err != nil || ctx.Err() != nil {
		r.log.Warn("请求被宿主取消，跳过回调")
		r.opts.Logger.Stats.Increment(StatDropped)
		return nil
	}

	res := httpc.NewResult(r.req, url, op.Response(), op.Body(), op.Duration(), op.Err())
	if err := r.opts.Middlewares.ProcessResult(res); err != nil && res.Err == nil {
		res.Err = err
	}

	if res.OK() {
		r.opts.Logger.Stats.Increment(StatDelivered)
		r.log.WithField("status", res.StatusCode).Debugf("请求完成，耗时 %v", res.Duration)
	} else {
		r.opts.Logger.Stats.Increment(StatFailed)
		r.log.WithField("status", res.StatusCode).Warnf("请求失败: %s", res.Error())
	}

	if cb := r.req.Callback(); cb != nil {
		r.deliver(cb, res)
	}
	r.state.Store(int32(StateDelivered))
	return res
}

func (r *RequestRunner) submit(ctx context.Context) (*download.Operation, string) {
	if r.req.Method() == httpc.MethodGet {
		url := httpc.BuildQueryURL(r.req.URL(), r.req.FormData())
		header := http.Header{}
		for k, v := range r.req.Headers() {
			header.Set(k, v)
		}
		if !r.opts.IsWeb {
			header.Set("User-Agent", r.opts.UserAgent)
		}
		return r.opts.Transport.Get(ctx, url, header), url
	}

	// POST 或 DELETE
	form := r.req.Query()
	if form == nil {
		form = httpc.NewForm()
	}
	if form.Headers == nil {
		form.Headers = make(map[string]string)
	}

	if r.req.Method() == httpc.MethodDelete {
		form.AddField("method", DeleteSentinel)
	}

	formData := r.req.FormData()
	keys := sortedKeys(formData)
	for _, k := range keys {
		form.AddField(k, formData[k])
	}

	for k, v := range r.req.Headers() {
		form.Headers[k] = v
	}
	if !r.opts.IsWeb {
		form.Headers["User-Agent"] = r.opts.UserAgent
	}

	return r.opts.Transport.Post(ctx, r.req.URL(), form), r.req.URL()
}

func (r *RequestRunner) deliver(cb func(*httpc.Result), res *httpc.Result) {
	defer func() {
		if p := recover(); p != nil {
			r.opts.Logger.Stats.Increment(StatCallbackPanics)
			r.log.Errorf("回调 panic: %v", p)
		}
	}()
	cb(res)
}

// 回调之后释放传输资源
func (r *RequestRunner) dispose(op *download.Operation) {
	op.Dispose()
	r.state.Store(int32(StateDisposed))
}
