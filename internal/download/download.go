package download

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/djskncxm/graphreq/pkg/httpc"
	"github.com/djskncxm/graphreq/pkg/middleware"
)

const (
	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 90 * time.Second
)

type Download struct {
	client      *http.Client
	middlewares *middleware.MiddlewareManager
}

type Option func(*Download)

// WithClient 替换默认的 http.Client
func WithClient(client *http.Client) Option {
	return func(d *Download) { d.client = client }
}

func WithMiddlewares(mm *middleware.MiddlewareManager) Option {
	return func(d *Download) { d.middlewares = mm }
}

func InitDownload(timeout time.Duration, opts ...Option) *Download {
	d := &Download{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        DefaultMaxIdleConns,
				MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
				IdleConnTimeout:     DefaultIdleConnTimeout,
			},
		},
		middlewares: middleware.NewMiddlewareManager(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Get 对给定 URL 发起 GET，header 原样附加
func (d *Download) Get(ctx context.Context, url string, header http.Header) *Operation {
	return d.start(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		return req, nil
	})
}

// Post 发送编码后的表单，form.Headers 作为请求头
func (d *Download) Post(ctx context.Context, url string, form *httpc.Form) *Operation {
	return d.start(ctx, func(ctx context.Context) (*http.Request, error) {
		body, contentType, err := form.Encode()
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		for k, v := range form.Headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
}

func (d *Download) start(parent context.Context, build func(context.Context) (*http.Request, error)) *Operation {
	ctx, cancel := context.WithCancel(parent)
	op := &Operation{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(op.done)
		start := time.Now()

		req, err := build(ctx)
		if err == nil {
			op.url = req.URL.String()
			err = d.middlewares.ProcessRequest(req)
		}
		if err != nil {
			op.err = d.middlewares.ProcessException(err)
			op.duration = time.Since(start)
			return
		}

		resp, err := d.client.Do(req)
		if err != nil {
			op.err = d.middlewares.ProcessException(err)
			op.duration = time.Since(start)
			return
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		op.duration = time.Since(start)
		op.resp = resp
		op.body = body
		if err != nil {
			op.err = d.middlewares.ProcessException(err)
		}
	}()

	return op
}

// Operation 一次传输的异步句柄，成功和失败都会完成
type Operation struct {
	cancel   context.CancelFunc
	done     chan struct{}
	url      string
	resp     *http.Response
	body     []byte
	err      error
	duration time.Duration
	disposed bool
}

func (op *Operation) Done() <-chan struct{} {
	return op.done
}

func (op *Operation) IsDone() bool {
	select {
	case <-op.done:
		return true
	default:
		return false
	}
}

// Wait 等待传输完成，ctx 先结束时返回 ctx.Err()
func (op *Operation) Wait(ctx context.Context) error {
	select {
	case <-op.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// 以下访问器只能在完成之后调用
func (op *Operation) URL() string { return op.url }

func (op *Operation) Response() *http.Response { return op.resp }

func (op *Operation) Body() []byte { return op.body }

func (op *Operation) Err() error { return op.err }

func (op *Operation) Duration() time.Duration { return op.duration }

// Dispose 取消未完成的传输并释放缓冲，可重复调用
func (op *Operation) Dispose() {
	op.cancel()
	<-op.done
	if op.disposed {
		return
	}
	op.disposed = true
	op.resp = nil
	op.body = nil
}

func (op *Operation) Disposed() bool {
	return op.disposed
}
