package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "default is valid", mutate: func(c *Config) {}},
		{name: "level is case-insensitive", mutate: func(c *Config) { c.Level = "DEBUG" }},
		{name: "unknown level", mutate: func(c *Config) { c.Level = "verbose" }, wantErr: "invalid log level"},
		{name: "unknown component level", mutate: func(c *Config) {
			c.ComponentLevels = map[string]LogLevel{"scan.runner": "loud"}
		}, wantErr: "invalid log level for component scan.runner"},
		{name: "unknown format", mutate: func(c *Config) { c.Format = "xml" }, wantErr: "invalid log format"},
		{name: "unknown output", mutate: func(c *Config) { c.Output = "syslog" }, wantErr: "invalid log output"},
		{name: "file output without path", mutate: func(c *Config) { c.Output = LogOutputFile }, wantErr: "filePath required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetLevelForComponent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ComponentLevels = map[string]LogLevel{"detector": LogLevelDebug}

	assert.Equal(t, LogLevelDebug, cfg.GetLevelForComponent("detector"))
	assert.Equal(t, LogLevelInfo, cfg.GetLevelForComponent("storage.memory"))
}

func TestDevelopmentConfig(t *testing.T) {
	cfg := DevelopmentConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, LogLevelDebug, cfg.Level)
	assert.Equal(t, LogFormatText, cfg.Format)
}
