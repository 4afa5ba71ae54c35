package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/djskncxm/graphreq/internal/download"
	"github.com/djskncxm/graphreq/internal/setting"
	"github.com/djskncxm/graphreq/pkg/httpc"
	"github.com/djskncxm/graphreq/pkg/logger"
	"github.com/djskncxm/graphreq/pkg/middleware"
)

var ErrEngineClosed = errors.New("core: engine is shut down")

// Engine 持有任务队列和 worker。worker 只负责分发，
// 每个任务在自己的 goroutine 里由一个 RequestRunner 执行，互不阻塞
type Engine struct {
	download    *download.Download
	scheduler   *Scheduler
	middlewares *middleware.MiddlewareManager
	Config      *setting.Setting
	Logger      *logger.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	pending sync.WaitGroup
}

func InitEngine(cfg *setting.Setting, log *logger.Logger, opts ...download.Option) *Engine {
	if cfg == nil {
		cfg = setting.Default()
	}
	if log == nil {
		log = logger.Discard()
	}

	mm := middleware.NewMiddlewareManager()
	if len(cfg.Client.Headers) > 0 {
		_ = mm.Register(middleware.StaticHeaders(cfg.Client.Headers), middleware.MiddlewareConfig{
			Name:     "static-headers",
			Priority: middleware.PriorityLast,
		})
	}

	opts = append([]download.Option{download.WithMiddlewares(mm)}, opts...)
	timeout := time.Duration(cfg.Client.Timeout) * time.Second

	return &Engine{
		download:    download.InitDownload(timeout, opts...),
		scheduler:   NewScheduler(),
		middlewares: mm,
		Config:      cfg,
		Logger:      log,
	}
}

func (e *Engine) Middlewares() *middleware.MiddlewareManager {
	return e.middlewares
}

// Start 启动 worker，ctx 结束时进行中的请求会被取消
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if e.started {
		return nil
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(ctx)

	concurrency := e.Config.Engine.Worker
	if concurrency <= 0 {
		concurrency = 1
	}
	e.Logger.Infof("引擎启动，worker 数量 %d", concurrency)

	for i := 0; i < concurrency; i++ {
		e.workers.Add(1)
		go e.worker()
	}
	return nil
}

// Submit 入队，不阻塞
func (e *Engine) Submit(req *httpc.Request) (*Task, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	task := newTask(req)
	e.pending.Add(1)
	e.mu.Unlock()

	e.Logger.Stats.Increment(StatSubmitted)
	e.scheduler.EnqueueTask(task)
	return task, nil
}

// Shutdown 停止接收新任务并等待已提交的任务完成。
// ctx 结束后取消剩余任务，这些任务的回调不会执行。
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	started := e.started
	e.mu.Unlock()

	if !started {
		for _, task := range e.scheduler.Drain() {
			e.drop(task)
		}
		return nil
	}

	idle := make(chan struct{})
	go func() {
		e.pending.Wait()
		close(idle)
	}()

	var err error
	select {
	case <-idle:
	case <-e.ctx.Done():
	case <-ctx.Done():
		err = ctx.Err()
		e.Logger.Warn("关闭超时，取消剩余任务")
	}

	e.cancel()
	e.workers.Wait()
	for _, task := range e.scheduler.Drain() {
		e.drop(task)
	}
	<-idle

	e.Logger.Debug("引擎关闭")
	return err
}

func (e *Engine) worker() {
	defer e.workers.Done()
	for {
		task := e.scheduler.NextTask()
		if task == nil {
			select {
			case <-e.scheduler.Wake():
				continue
			case <-e.ctx.Done():
				return
			}
		}

		if e.ctx.Err() != nil {
			e.drop(task)
			continue
		}
		go e.run(task)
	}
}

func (e *Engine) run(task *Task) {
	defer e.pending.Done()

	runner := NewRequestRunner(task.req, RunnerOptions{
		IsWeb:       e.Config.Client.IsWeb,
		UserAgent:   e.Config.Client.UserAgent,
		Transport:   e.download,
		Middlewares: e.middlewares,
		Logger:      e.Logger.WithField("task", task.id),
	})
	task.finish(runner.Run(e.ctx))
}

func (e *Engine) drop(task *Task) {
	defer e.pending.Done()
	e.Logger.Stats.Increment(StatDropped)
	task.finish(nil)
}
