package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djskncxm/graphreq/pkg/httpc"
	"github.com/djskncxm/graphreq/pkg/middleware"
)

type captured struct {
	method    string
	rawQuery  string
	userAgent string
	form      map[string][]string
	header    http.Header
}

func captureServer(t *testing.T, status int, body string) (*httptest.Server, <-chan captured) {
	t.Helper()
	ch := make(chan captured, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := captured{
			method:    r.Method,
			rawQuery:  r.URL.RawQuery,
			userAgent: r.Header.Get("User-Agent"),
			header:    r.Header.Clone(),
		}
		if r.Method == http.MethodPost {
			assert.NoError(t, r.ParseForm())
			c.form = r.PostForm
		}
		ch <- c
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, ch
}

func build(t *testing.T, b *httpc.Builder) *httpc.Request {
	t.Helper()
	req, err := b.Build()
	require.NoError(t, err)
	return req
}

func TestRunner_GetAppendsFormDataToExistingQuery(t *testing.T) {
	server, seen := captureServer(t, http.StatusOK, `{"id":"1"}`)

	var calls atomic.Int32
	var got *httpc.Result
	req := build(t, httpc.New(server.URL+"/me?fields=id").
		SetMethod(httpc.MethodGet).
		SetFormData(map[string]string{"a": "b"}).
		SetCallback(func(res *httpc.Result) {
			calls.Add(1)
			got = res
		}))

	runner := NewRequestRunner(req, testRunnerOptions(false))
	assert.Equal(t, StateConfigured, runner.State())

	res := runner.Run(context.Background())
	c := <-seen

	assert.Equal(t, http.MethodGet, c.method)
	assert.Equal(t, "fields=id&a=b", c.rawQuery)
	assert.Equal(t, testUserAgent, c.userAgent)
	assert.Equal(t, int32(1), calls.Load())
	require.NotNil(t, got)
	assert.Same(t, res, got)
	assert.True(t, got.OK())
	assert.Equal(t, server.URL+"/me?fields=id&a=b", got.URL)
	assert.Equal(t, "1", got.Get("id").String())
	assert.Same(t, req, got.Request)
	assert.Equal(t, StateDisposed, runner.State())
}

func TestRunner_PostSendsFormDataAndUserAgent(t *testing.T) {
	server, seen := captureServer(t, http.StatusOK, `{"success":true}`)

	var calls atomic.Int32
	req := build(t, httpc.New(server.URL+"/me").
		SetMethod(httpc.MethodPost).
		SetFormData(map[string]string{"access_token": "T"}).
		SetCallback(func(res *httpc.Result) {
			calls.Add(1)
			assert.True(t, res.OK())
			assert.True(t, res.Get("success").Bool())
		}))

	NewRequestRunner(req, testRunnerOptions(false)).Run(context.Background())
	c := <-seen

	assert.Equal(t, http.MethodPost, c.method)
	assert.Empty(t, c.rawQuery)
	assert.Equal(t, []string{"T"}, c.form["access_token"])
	assert.Equal(t, testUserAgent, c.userAgent)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunner_BrowserHostedOmitsUserAgent(t *testing.T) {
	for _, method := range []httpc.Method{httpc.MethodGet, httpc.MethodPost} {
		t.Run(string(method), func(t *testing.T) {
			server, seen := captureServer(t, http.StatusOK, `{}`)
			req := build(t, httpc.New(server.URL).SetMethod(method))

			NewRequestRunner(req, testRunnerOptions(true)).Run(context.Background())
			c := <-seen
			assert.NotEqual(t, testUserAgent, c.userAgent)
		})
	}
}

func TestRunner_DeleteAddsSentinelField(t *testing.T) {
	tests := []struct {
		name     string
		formData map[string]string
	}{
		{"without form data", nil},
		{"with form data", map[string]string{"access_token": "T", "id": "9"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, seen := captureServer(t, http.StatusOK, `true`)
			req := build(t, httpc.New(server.URL+"/9").
				SetMethod(httpc.MethodDelete).
				SetFormData(tt.formData))

			NewRequestRunner(req, testRunnerOptions(false)).Run(context.Background())
			c := <-seen

			assert.Equal(t, http.MethodPost, c.method)
			assert.Equal(t, []string{"delete"}, c.form["method"])
			for k, v := range tt.formData {
				assert.Equal(t, []string{v}, c.form[k])
			}
		})
	}
}

func TestRunner_DeleteWithPrebuiltPayload(t *testing.T) {
	server, seen := captureServer(t, http.StatusOK, `true`)

	query := httpc.NewForm().AddField("access_token", "T")
	query.Headers["X-Custom"] = "yes"
	req := build(t, httpc.New(server.URL).SetMethod(httpc.MethodDelete).SetQuery(query))

	NewRequestRunner(req, testRunnerOptions(false)).Run(context.Background())
	c := <-seen

	assert.Equal(t, []string{"delete"}, c.form["method"])
	assert.Equal(t, []string{"T"}, c.form["access_token"])
	assert.Equal(t, "yes", c.header.Get("X-Custom"))

	// 调用方的表单不被修改
	_, ok := query.Value("method")
	assert.False(t, ok)
	assert.NotContains(t, query.Headers, "User-Agent")
}

func TestRunner_RequestHeaders(t *testing.T) {
	server, seen := captureServer(t, http.StatusOK, `{}`)
	req := build(t, httpc.New(server.URL).SetHeader("X-Trace", "abc"))

	NewRequestRunner(req, testRunnerOptions(false)).Run(context.Background())
	assert.Equal(t, "abc", (<-seen).header.Get("X-Trace"))
}

func TestRunner_FailureDeliversOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	var calls atomic.Int32
	req := build(t, httpc.New(url).SetMethod(httpc.MethodPost).SetCallback(func(res *httpc.Result) {
		calls.Add(1)
		assert.False(t, res.OK())
		assert.Error(t, res.Err)
		assert.NotEmpty(t, res.Error())
	}))

	opts := testRunnerOptions(false)
	runner := NewRequestRunner(req, opts)
	res := runner.Run(context.Background())

	require.NotNil(t, res)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, StateDisposed, runner.State())
	assert.Equal(t, 1, opts.Logger.Stats.GetInt(StatFailed))
}

func TestRunner_MalformedURLDeliversFailure(t *testing.T) {
	for _, url := range []string{"", "   ", "not a url"} {
		t.Run(fmt.Sprintf("%q", url), func(t *testing.T) {
			var calls atomic.Int32
			var got *httpc.Result
			req := build(t, httpc.New(url).SetFormData(map[string]string{"a": "b"}).SetCallback(func(res *httpc.Result) {
				calls.Add(1)
				got = res
			}))

			opts := testRunnerOptions(false)
			runner := NewRequestRunner(req, opts)
			runner.Run(context.Background())

			assert.Equal(t, int32(1), calls.Load())
			require.NotNil(t, got)
			assert.False(t, got.OK())
			assert.Error(t, got.Err)
			assert.Equal(t, StateDisposed, runner.State())
			assert.Equal(t, 1, opts.Logger.Stats.GetInt(StatFailed))
		})
	}
}

func TestRunner_HTTPErrorStatusIsFailureResult(t *testing.T) {
	server, _ := captureServer(t, http.StatusBadRequest, `{"error":{"message":"bad token"}}`)

	var msg string
	req := build(t, httpc.New(server.URL).SetCallback(func(res *httpc.Result) {
		msg = res.Error()
	}))
	NewRequestRunner(req, testRunnerOptions(false)).Run(context.Background())
	assert.Equal(t, "bad token", msg)
}

func TestRunner_WithoutCallback(t *testing.T) {
	server, seen := captureServer(t, http.StatusOK, `{}`)
	req := build(t, httpc.New(server.URL))

	opts := testRunnerOptions(false)
	runner := NewRequestRunner(req, opts)
	res := runner.Run(context.Background())
	<-seen

	require.NotNil(t, res)
	assert.True(t, res.OK())
	assert.Equal(t, StateDisposed, runner.State())
	assert.Equal(t, 1, opts.Logger.Stats.GetInt(StatDelivered))
}

func TestRunner_CallbackPanicStillDisposes(t *testing.T) {
	server, _ := captureServer(t, http.StatusOK, `{}`)
	req := build(t, httpc.New(server.URL).SetCallback(func(*httpc.Result) {
		panic("boom")
	}))

	opts := testRunnerOptions(false)
	runner := NewRequestRunner(req, opts)
	assert.NotPanics(t, func() { runner.Run(context.Background()) })
	assert.Equal(t, StateDisposed, runner.State())
	assert.Equal(t, 1, opts.Logger.Stats.GetInt(StatCallbackPanics))
}

func TestRunner_RunsOnlyOnce(t *testing.T) {
	server, _ := captureServer(t, http.StatusOK, `{}`)

	var calls atomic.Int32
	req := build(t, httpc.New(server.URL).SetCallback(func(*httpc.Result) { calls.Add(1) }))
	runner := NewRequestRunner(req, testRunnerOptions(false))

	require.NotNil(t, runner.Run(context.Background()))
	assert.Nil(t, runner.Run(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunner_StateWhileAwaitingTransport(t *testing.T) {
	var current atomic.Pointer[RequestRunner]
	stateSeen := make(chan State, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 给 Run 一点时间进入等待
		time.Sleep(20 * time.Millisecond)
		stateSeen <- current.Load().State()
	}))
	defer server.Close()

	runner := NewRequestRunner(build(t, httpc.New(server.URL)), testRunnerOptions(false))
	current.Store(runner)
	runner.Run(context.Background())

	assert.Equal(t, StateAwaitingTransport, <-stateSeen)
	assert.Equal(t, StateDisposed, runner.State())
}

func TestRunner_HostCancellationSkipsCallback(t *testing.T) {
	release := make(chan struct{})
	arrived := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(arrived)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	var calls atomic.Int32
	req := build(t, httpc.New(server.URL).SetCallback(func(*httpc.Result) { calls.Add(1) }))

	opts := testRunnerOptions(false)
	runner := NewRequestRunner(req, opts)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-arrived
		cancel()
	}()

	assert.Nil(t, runner.Run(ctx))
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, StateDisposed, runner.State())
	assert.Equal(t, 1, opts.Logger.Stats.GetInt(StatDropped))
}

type failResults struct{}

func (failResults) ProcessResult(*httpc.Result) error { return errors.New("rejected") }

func TestRunner_ResultMiddlewareErrorBecomesFailure(t *testing.T) {
	server, _ := captureServer(t, http.StatusOK, `{}`)

	mm := middleware.NewMiddlewareManager()
	require.NoError(t, mm.Register(failResults{}))

	var ok bool
	req := build(t, httpc.New(server.URL).SetCallback(func(res *httpc.Result) { ok = res.OK() }))
	opts := testRunnerOptions(false)
	opts.Middlewares = mm

	res := NewRequestRunner(req, opts).Run(context.Background())
	assert.False(t, ok)
	assert.Contains(t, res.Error(), "rejected")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "awaiting_transport", StateAwaitingTransport.String())
	assert.Equal(t, "state(42)", State(42).String())
}
