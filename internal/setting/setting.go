package setting

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	SDKName    = "GraphReqGo"
	SDKVersion = "1.0.0"
)

// DefaultUserAgent 非浏览器环境下附加到每个请求
var DefaultUserAgent = SDKName + "/" + SDKVersion

type Setting struct {
	Client struct {
		IsWeb     bool              `yaml:"IsWeb"`
		UserAgent string            `yaml:"UserAgent"`
		Timeout   int               `yaml:"Timeout"` // 秒，0 表示不限
		Headers   map[string]string `yaml:"Headers"`
	} `yaml:"Client"`
	Engine struct {
		Worker int `yaml:"Worker"`
	} `yaml:"Engine"`
	Log struct {
		AppName    string `yaml:"AppName"`
		LogLevel   string `yaml:"LogLevel"`
		LogFormat  string `yaml:"LogFormat"`
		Console    bool   `yaml:"Console"`
		LogFile    string `yaml:"LogFile"`
		MaxSize    int    `yaml:"MaxSize"`
		MaxBackups int    `yaml:"MaxBackups"`
		MaxAge     int    `yaml:"MaxAge"`
		Compress   bool   `yaml:"Compress"`
	} `yaml:"Log"`
}

func Default() *Setting {
	s := &Setting{}
	s.ApplyDefaults()
	return s
}

// ApplyDefaults 只填充零值字段
func (s *Setting) ApplyDefaults() {
	if s.Client.UserAgent == "" {
		s.Client.UserAgent = DefaultUserAgent
	}
	if s.Client.Timeout < 0 {
		s.Client.Timeout = 0
	}
	if s.Engine.Worker <= 0 {
		s.Engine.Worker = 3
	}
	if s.Log.AppName == "" {
		s.Log.AppName = "graphreq"
	}
	if s.Log.LogLevel == "" {
		s.Log.LogLevel = "info"
	}
	if s.Log.LogFormat == "" {
		s.Log.LogFormat = "text"
	}
	if s.Log.MaxSize <= 0 {
		s.Log.MaxSize = 100
	}
}

func Load(path string) (*Setting, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Setting, error) {
	var s Setting
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	s.ApplyDefaults()
	return &s, nil
}

type SettingsManager struct {
	mu       sync.RWMutex
	Settings map[string]string
}

func NewSettingsManager() *SettingsManager {
	return &SettingsManager{
		Settings: make(map[string]string),
	}
}

func (sm *SettingsManager) GetSetting(key string) (string, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	val, ok := sm.Settings[key]
	return val, ok
}

func (sm *SettingsManager) SetSetting(key, value string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.Settings[key] = value
}

func (sm *SettingsManager) GetString(key, defaultVal string) string {
	val, ok := sm.GetSetting(key)
	if !ok {
		return defaultVal
	}
	return val
}

func (sm *SettingsManager) GetInt(key string, defaultVal int) int {
	val, ok := sm.GetSetting(key)
	if !ok {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

func (sm *SettingsManager) GetBool(key string, defaultVal bool) bool {
	val, ok := sm.GetSetting(key)
	if !ok {
		return defaultVal
	}
	boolVal, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return boolVal
}

// 递归加载结构体到 map[string]string，map 字段展开为 prefix.key
func (sm *SettingsManager) LoadFromSetting(s interface{}) {
	sm.loadStruct(reflect.ValueOf(s), "")
}

func (sm *SettingsManager) loadStruct(v reflect.Value, prefix string) {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		val := v.Field(i)

		key := field.Name
		if prefix != "" {
			key = prefix + "." + key
		}

		switch val.Kind() {
		case reflect.Struct:
			sm.loadStruct(val, key) // 递归
		case reflect.Map:
			iter := val.MapRange()
			for iter.Next() {
				sm.SetSetting(key+"."+fmt.Sprintf("%v", iter.Key().Interface()), fmt.Sprintf("%v", iter.Value().Interface()))
			}
		case reflect.String:
			sm.SetSetting(key, val.String())
		case reflect.Bool:
			sm.SetSetting(key, strconv.FormatBool(val.Bool()))
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			sm.SetSetting(key, strconv.FormatInt(val.Int(), 10))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			sm.SetSetting(key, strconv.FormatUint(val.Uint(), 10))
		default:
			sm.SetSetting(key, fmt.Sprintf("%v", val.Interface()))
		}
	}
}
