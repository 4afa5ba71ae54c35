package middleware

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/djskncxm/graphreq/pkg/httpc"
)

// 中间件接口定义
type RequestProcessor interface {
	ProcessRequest(*http.Request) error
}

type ResultProcessor interface {
	ProcessResult(*httpc.Result) error
}

type ExceptionProcessor interface {
	ProcessException(error) (handled bool, newErr error)
}

type MiddlewarePriority int

const (
	PriorityFirst  MiddlewarePriority = 100
	PriorityHigh   MiddlewarePriority = 50
	PriorityNormal MiddlewarePriority = 0
	PriorityLow    MiddlewarePriority = -50
	PriorityLast   MiddlewarePriority = -100
)

type MiddlewareConfig struct {
	Name     string
	Priority MiddlewarePriority
	Group    string
	Disabled bool
}

type DecoratedMiddleware struct {
	ID         string
	Config     MiddlewareConfig
	Middleware interface{}
}

type MiddlewareManager struct {
	mu             sync.RWMutex
	requestChain   []DecoratedMiddleware
	resultChain    []DecoratedMiddleware
	exceptionChain []DecoratedMiddleware

	middlewareMap  map[string]DecoratedMiddleware
	disabledGroups map[string]bool
}

func NewMiddlewareManager() *MiddlewareManager {
	return &MiddlewareManager{
		middlewareMap:  make(map[string]DecoratedMiddleware),
		disabledGroups: make(map[string]bool),
	}
}

// 自动检测实现了哪些接口，一个都没实现时报错
func (mm *MiddlewareManager) Register(middleware interface{}, config ...MiddlewareConfig) error {
	cfg := MiddlewareConfig{}
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("%T", middleware)
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()

	id := generateID(cfg.Name)
	if _, exists := mm.middlewareMap[id]; exists {
		return fmt.Errorf("middleware %s already registered", cfg.Name)
	}

	dm := DecoratedMiddleware{
		ID:         id,
		Config:     cfg,
		Middleware: middleware,
	}

	matched := false
	if _, ok := middleware.(RequestProcessor); ok {
		mm.requestChain = append(mm.requestChain, dm)
		sortChain(mm.requestChain)
		matched = true
	}

	if _, ok := middleware.(ResultProcessor); ok {
		mm.resultChain = append(mm.resultChain, dm)
		sortChain(mm.resultChain)
		matched = true
	}

	if _, ok := middleware.(ExceptionProcessor); ok {
		mm.exceptionChain = append(mm.exceptionChain, dm)
		sortChain(mm.exceptionChain)
		matched = true
	}

	if !matched {
		return fmt.Errorf("middleware %s implements no processor interface", cfg.Name)
	}

	mm.middlewareMap[id] = dm
	return nil
}

// 按优先级从高到低
func (mm *MiddlewareManager) ProcessRequest(req *http.Request) error {
	for _, dm := range mm.enabled(&mm.requestChain) {
		if err := dm.Middleware.(RequestProcessor).ProcessRequest(req); err != nil {
			return fmt.Errorf("middleware %s failed: %w", dm.Config.Name, err)
		}
	}
	return nil
}

// 按优先级从低到高
func (mm *MiddlewareManager) ProcessResult(res *httpc.Result) error {
	enabled := mm.enabled(&mm.resultChain)
	for i := len(enabled) - 1; i >= 0; i-- {
		dm := enabled[i]
		if err := dm.Middleware.(ResultProcessor).ProcessResult(res); err != nil {
			return fmt.Errorf("middleware %s failed: %w", dm.Config.Name, err)
		}
	}
	return nil
}

// 第一个处理掉异常的中间件生效
func (mm *MiddlewareManager) ProcessException(err error) error {
	for _, dm := range mm.enabled(&mm.exceptionChain) {
		if handled, newErr := dm.Middleware.(ExceptionProcessor).ProcessException(err); handled {
			return newErr
		}
	}
	return err
}

func (mm *MiddlewareManager) enabled(chain *[]DecoratedMiddleware) []DecoratedMiddleware {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	result := make([]DecoratedMiddleware, 0, len(*chain))
	for _, dm := range *chain {
		if !dm.Config.Disabled && !mm.disabledGroups[dm.Config.Group] {
			result = append(result, dm)
		}
	}
	return result
}

func (mm *MiddlewareManager) EnableGroup(group string) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	delete(mm.disabledGroups, group)
}

func (mm *MiddlewareManager) DisableGroup(group string) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.disabledGroups[group] = true
}

func sortChain(chain []DecoratedMiddleware) {
	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].Config.Priority > chain[j].Config.Priority
	})
}

func generateID(name string) string {
	return fmt.Sprintf("mw-%s", name)
}
