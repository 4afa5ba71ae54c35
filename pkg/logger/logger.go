package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig 日志配置结构体
type LogConfig struct {
	AppName   string
	LogLevel  string
	LogFormat string // "text" 或 "json"

	// 控制台输出
	EnableConsole bool
	ConsoleColor  bool

	// 文件输出，FilePath 为空时不写文件
	FilePath   string
	MaxSize    int  // MB
	MaxBackups int  // 最大备份数
	MaxAge     int  // 保留天数
	Compress   bool // 是否压缩备份

	// 额外输出，测试时使用
	Output io.Writer
}

// Stats 线程安全的统计信息收集器
type Stats struct {
	mu        sync.RWMutex
	counters  map[string]interface{}
	startTime time.Time
}

func NewStats() *Stats {
	return &Stats{
		counters:  make(map[string]interface{}),
		startTime: time.Now(),
	}
}

func (s *Stats) AddInt(key string, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.counters[key].(int); ok {
		s.counters[key] = current + value
	} else {
		s.counters[key] = value
	}
}

func (s *Stats) Increment(key string) {
	s.AddInt(key, 1)
}

func (s *Stats) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] = value
}

func (s *Stats) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.counters[key]
	return val, ok
}

// GetInt 不存在时返回 0
func (s *Stats) GetInt(key string) int {
	val, ok := s.Get(key)
	if !ok {
		return 0
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (s *Stats) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// WriteTable 以表格形式输出统计信息，按 key 排序
func (s *Stats) WriteTable(writer io.Writer) error {
	uptime := s.Uptime()

	s.mu.RLock()
	keys := make([]string, 0, len(s.counters))
	for k := range s.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys)+1)
	rows = append(rows, []string{"uptime", uptime.Round(time.Millisecond).String()})
	for _, k := range keys {
		rows = append(rows, []string{k, formatValue(s.counters[k])})
	}
	s.mu.RUnlock()

	table := tablewriter.NewWriter(writer)
	table.Header([]string{"stat", "value"})
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	case time.Duration:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Logger 带字段上下文和统计的日志记录器
type Logger struct {
	name     string
	logger   *logrus.Logger
	fileHook *lumberjack.Logger
	fields   logrus.Fields
	Stats    *Stats
}

func NewLogger(config *LogConfig) (*Logger, error) {
	if config == nil {
		config = &LogConfig{
			AppName:       "graphreq",
			LogLevel:      "info",
			LogFormat:     "text",
			EnableConsole: true,
		}
	}

	logger := logrus.New()
	logger.SetLevel(ParseLogLevel(config.LogLevel))

	if strings.ToLower(config.LogFormat) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
			ForceColors:     config.ConsoleColor,
			PadLevelText:    true,
		})
	}

	l := &Logger{
		name:   config.AppName,
		logger: logger,
		fields: logrus.Fields{},
		Stats:  NewStats(),
	}
	l.Stats.Set("app_name", config.AppName)

	var writers []io.Writer
	if config.EnableConsole {
		writers = append(writers, os.Stderr)
	}
	if config.Output != nil {
		writers = append(writers, config.Output)
	}
	if config.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("初始化文件输出失败: %w", err)
		}
		l.fileHook = &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
			LocalTime:  true,
		}
		writers = append(writers, l.fileHook)
		l.Stats.Set("log_file", config.FilePath)
	}

	switch len(writers) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}

	return l, nil
}

// Discard 不输出任何内容，统计照常
func Discard() *Logger {
	l, _ := NewLogger(&LogConfig{AppName: "discard", LogLevel: "panic"})
	return l
}

// ParseLogLevel 解析日志级别，无法识别时为 info
func ParseLogLevel(levelStr string) logrus.Level {
	level, err := logrus.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields 返回新的 Logger，共享底层输出和统计
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	merged := make(logrus.Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{
		name:     l.name,
		logger:   l.logger,
		fileHook: l.fileHook,
		fields:   merged,
		Stats:    l.Stats,
	}
}

func (l *Logger) entry() *logrus.Entry {
	return l.logger.WithField("app", l.name).WithFields(l.fields)
}

func (l *Logger) WithError(err error) *logrus.Entry {
	return l.entry().WithError(err)
}

func (l *Logger) Debug(args ...interface{}) { l.entry().Debug(args...) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry().Debugf(format, args...) }

func (l *Logger) Info(args ...interface{}) { l.entry().Info(args...) }

func (l *Logger) Infof(format string, args ...interface{}) { l.entry().Infof(format, args...) }

func (l *Logger) Warn(args ...interface{}) { l.entry().Warn(args...) }

func (l *Logger) Warnf(format string, args ...interface{}) { l.entry().Warnf(format, args...) }

func (l *Logger) Error(args ...interface{}) { l.entry().Error(args...) }

func (l *Logger) Errorf(format string, args ...interface{}) { l.entry().Errorf(format, args...) }

func (l *Logger) SetLevel(level string) {
	l.logger.SetLevel(ParseLogLevel(level))
}

func (l *Logger) GetLevel() logrus.Level {
	return l.logger.GetLevel()
}

// 关闭日志文件
func (l *Logger) Close() error {
	if l.fileHook != nil {
		return l.fileHook.Close()
	}
	return nil
}

// 旋转日志文件（手动触发）
func (l *Logger) Rotate() error {
	if l.fileHook != nil {
		return l.fileHook.Rotate()
	}
	return nil
}
