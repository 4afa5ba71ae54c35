package graph

import (
	"context"

	"github.com/djskncxm/graphreq/internal/core"
	"github.com/djskncxm/graphreq/internal/download"
	"github.com/djskncxm/graphreq/internal/setting"
	"github.com/djskncxm/graphreq/pkg/httpc"
	"github.com/djskncxm/graphreq/pkg/logger"
	"github.com/djskncxm/graphreq/pkg/middleware"
)

type (
	Task     = core.Task
	Callback = func(*httpc.Result)
)

type Client struct {
	Engine *core.Engine
	Config *setting.SettingsManager
	logger *logger.Logger
}

// NewFromFile 从 YAML 配置文件创建
func NewFromFile(path string, opts ...download.Option) (*Client, error) {
	cfg, err := setting.Load(path)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

func New(cfg *setting.Setting, opts ...download.Option) (*Client, error) {
	if cfg == nil {
		cfg = setting.Default()
	}
	cfg.ApplyDefaults()

	log, err := logger.NewLogger(&logger.LogConfig{
		AppName:       cfg.Log.AppName,
		LogLevel:      cfg.Log.LogLevel,
		LogFormat:     cfg.Log.LogFormat,
		EnableConsole: cfg.Log.Console,
		FilePath:      cfg.Log.LogFile,
		MaxSize:       cfg.Log.MaxSize,
		MaxBackups:    cfg.Log.MaxBackups,
		MaxAge:        cfg.Log.MaxAge,
		Compress:      cfg.Log.Compress,
	})
	if err != nil {
		return nil, err
	}

	sm := setting.NewSettingsManager()
	sm.LoadFromSetting(cfg)

	return &Client{
		Engine: core.InitEngine(cfg, log, opts...),
		Config: sm,
		logger: log,
	}, nil
}

func (c *Client) Start(ctx context.Context) error {
	return c.Engine.Start(ctx)
}

// Shutdown 等待已提交的请求完成后关闭日志文件
func (c *Client) Shutdown(ctx context.Context) error {
	err := c.Engine.Shutdown(ctx)
	if cerr := c.logger.Close(); err == nil {
		err = cerr
	}
	return err
}

func (c *Client) Use(mw interface{}, cfg ...middleware.MiddlewareConfig) error {
	return c.Engine.Middlewares().Register(mw, cfg...)
}

func (c *Client) Stats() *logger.Stats {
	return c.logger.Stats
}

// SetLogLevel 运行时调整日志级别，无法识别时为 info
func (c *Client) SetLogLevel(level string) {
	c.logger.SetLevel(level)
}

func (c *Client) LogLevel() string {
	return c.logger.GetLevel().String()
}

func (c *Client) Get(url string, formData map[string]string, cb Callback) (*Task, error) {
	return c.Request(url, httpc.MethodGet, formData, cb)
}

func (c *Client) Post(url string, formData map[string]string, cb Callback) (*Task, error) {
	return c.Request(url, httpc.MethodPost, formData, cb)
}

func (c *Client) Delete(url string, formData map[string]string, cb Callback) (*Task, error) {
	return c.Request(url, httpc.MethodDelete, formData, cb)
}

func (c *Client) Request(url string, method httpc.Method, formData map[string]string, cb Callback) (*Task, error) {
	req, err := httpc.New(url).
		SetMethod(method).
		SetFormData(formData).
		SetCallback(cb).
		Build()
	if err != nil {
		return nil, err
	}
	return c.Submit(req)
}

// RequestForm 使用预先构建好的表单，GET 不允许
func (c *Client) RequestForm(url string, method httpc.Method, query *httpc.Form, cb Callback) (*Task, error) {
	req, err := httpc.New(url).
		SetMethod(method).
		SetQuery(query).
		SetCallback(cb).
		Build()
	if err != nil {
		return nil, err
	}
	return c.Submit(req)
}

func (c *Client) Submit(req *httpc.Request) (*Task, error) {
	return c.Engine.Submit(req)
}
