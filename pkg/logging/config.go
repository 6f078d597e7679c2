package logging

import (
	"fmt"
	"strings"
)

// LogFormat represents the output format for logs
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// LogOutput represents the destination for logs
type LogOutput string

const (
	LogOutputStdout LogOutput = "stdout"
	LogOutputStderr LogOutput = "stderr"
	LogOutputFile   LogOutput = "file"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Config represents the complete logging configuration
type Config struct {
	Level  LogLevel  `yaml:"level" json:"level" env:"TIMELINE_LOG_LEVEL"`
	Format LogFormat `yaml:"format" json:"format" env:"TIMELINE_LOG_FORMAT"`
	Output LogOutput `yaml:"output" json:"output" env:"TIMELINE_LOG_OUTPUT"`

	FilePath string `yaml:"filePath,omitempty" json:"filePath,omitempty" env:"TIMELINE_LOG_FILE"`

	// Component-specific log levels, e.g. "scan.runner": debug
	ComponentLevels map[string]LogLevel `yaml:"componentLevels,omitempty" json:"componentLevels,omitempty"`

	EnableRequestID bool `yaml:"enableRequestId" json:"enableRequestId"`
	EnableCaller    bool `yaml:"enableCaller" json:"enableCaller"`
}

// DefaultConfig returns a default logging configuration.
// Output goes to stderr so the stdio tool server keeps stdout for responses.
func DefaultConfig() *Config {
	return &Config{
		Level:           LogLevelInfo,
		Format:          LogFormatJSON,
		Output:          LogOutputStderr,
		EnableRequestID: true,
	}
}

// DevelopmentConfig returns a configuration suitable for development
func DevelopmentConfig() *Config {
	config := DefaultConfig()
	config.Level = LogLevelDebug
	config.Format = LogFormatText
	config.EnableCaller = true
	return config
}

// Validate validates the logging configuration
func (c *Config) Validate() error {
	validLevels := map[LogLevel]bool{
		LogLevelDebug: true,
		LogLevelInfo:  true,
		LogLevelWarn:  true,
		LogLevelError: true,
	}
	c.Level = LogLevel(strings.ToLower(string(c.Level)))
	if !validLevels[c.Level] {
		return fmt.Errorf("invalid log level: %s", c.Level)
	}

	for component, level := range c.ComponentLevels {
		if !validLevels[level] {
			return fmt.Errorf("invalid log level for component %s: %s", component, level)
		}
	}

	validFormats := map[LogFormat]bool{
		LogFormatJSON: true,
		LogFormatText: true,
	}
	if !validFormats[c.Format] {
		return fmt.Errorf("invalid log format: %s", c.Format)
	}

	validOutputs := map[LogOutput]bool{
		LogOutputStdout: true,
		LogOutputStderr: true,
		LogOutputFile:   true,
	}
	if !validOutputs[c.Output] {
		return fmt.Errorf("invalid log output: %s", c.Output)
	}

	if c.Output == LogOutputFile && strings.TrimSpace(c.FilePath) == "" {
		return fmt.Errorf("filePath required when output is 'file'")
	}

	return nil
}

// GetLevelForComponent returns the log level for a specific component
func (c *Config) GetLevelForComponent(component string) LogLevel {
	if level, ok := c.ComponentLevels[component]; ok {
		return level
	}
	return c.Level
}
