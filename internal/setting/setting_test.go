package setting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	s := Default()
	assert.False(t, s.Client.IsWeb)
	assert.Equal(t, DefaultUserAgent, s.Client.UserAgent)
	assert.Equal(t, "GraphReqGo/1.0.0", s.Client.UserAgent)
	assert.Equal(t, 3, s.Engine.Worker)
	assert.Equal(t, "info", s.Log.LogLevel)
	assert.Equal(t, "text", s.Log.LogFormat)
}

func TestLoad(t *testing.T) {
	s, err := Load("testdata/config.yaml")
	require.NoError(t, err)

	assert.True(t, s.Client.IsWeb)
	assert.Equal(t, 12, s.Client.Timeout)
	assert.Equal(t, map[string]string{"X-App": "graphreq"}, s.Client.Headers)
	assert.Equal(t, 8, s.Engine.Worker)
	assert.Equal(t, "debug", s.Log.LogLevel)
	assert.Equal(t, "json", s.Log.LogFormat)
	// 未配置的字段使用默认值
	assert.Equal(t, DefaultUserAgent, s.Client.UserAgent)
	assert.Equal(t, "graphreq", s.Log.AppName)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("testdata/nope.yaml")
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("Engine: [unterminated"))
	assert.Error(t, err)
}

func TestParse_NegativeValuesFallBack(t *testing.T) {
	s, err := Parse([]byte("Client:\n  Timeout: -5\nEngine:\n  Worker: -1\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Client.Timeout)
	assert.Equal(t, 3, s.Engine.Worker)
}

func TestSettingsManager_LoadFromSetting(t *testing.T) {
	s, err := Load("testdata/config.yaml")
	require.NoError(t, err)

	sm := NewSettingsManager()
	sm.LoadFromSetting(s)

	assert.Equal(t, 8, sm.GetInt("Engine.Worker", 0))
	assert.True(t, sm.GetBool("Client.IsWeb", false))
	assert.Equal(t, "graphreq", sm.GetString("Client.Headers.X-App", ""))
	assert.Equal(t, DefaultUserAgent, sm.GetString("Client.UserAgent", ""))

	assert.Equal(t, 7, sm.GetInt("Missing.Key", 7))
	assert.Equal(t, 7, sm.GetInt("Log.LogLevel", 7))
	assert.True(t, sm.GetBool("Log.LogLevel", true))
	assert.Equal(t, "x", sm.GetString("Missing.Key", "x"))
}
