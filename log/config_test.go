/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-throttlekit/config"
)

type AppConfig struct {
	Log *Config `mapstructure:"log" json:"log" yaml:"log"`
}

func TestConfig(t *testing.T) {
	expectedCfg := func() *Config {
		cfg := NewDefaultConfig()
		cfg.Level = LevelWarn
		cfg.Format = FormatText
		cfg.Output = OutputFile
		cfg.File.Path = "my-service.log"
		cfg.File.Rotation.MaxSize = 100 * 1024 * 1024
		cfg.File.Rotation.MaxBackups = 42
		cfg.File.Rotation.Compress = true
		cfg.AddCaller = true
		return cfg
	}

	tests := []struct {
		name        string
		cfgDataType config.DataType
		cfgData     string
	}{
		{
			name:        "yaml config",
			cfgDataType: config.DataTypeYAML,
			cfgData: `
log:
  level: warn
  format: text
  output: file
  file:
    path: my-service.log
    rotation:
      compress: true
      maxSize: 100M
      maxBackups: 42
  addCaller: true
`,
		},
		{
			name:        "json config",
			cfgDataType: config.DataTypeJSON,
			cfgData: `
{
	"log": {
		"level": "warn",
		"format": "text",
		"output": "file",
		"file": {
			"path": "my-service.log",
			"rotation": {"compress": true, "maxSize": "100M", "maxBackups": 42}
		},
		"addCaller": true
	}
}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Load config using config.Loader.
			appCfg := AppConfig{Log: NewDefaultConfig()}
			cfgLoader := config.NewLoader(config.NewViperAdapter())
			err := cfgLoader.LoadFromReader(bytes.NewBufferString(tt.cfgData), tt.cfgDataType, appCfg.Log)
			require.NoError(t, err)
			require.Equal(t, AppConfig{Log: expectedCfg()}, appCfg)

			// Load config using yaml/json unmarshal.
			appCfg = AppConfig{Log: NewDefaultConfig()}
			switch tt.cfgDataType {
			case config.DataTypeYAML:
				require.NoError(t, yaml.Unmarshal([]byte(tt.cfgData), &appCfg))
			case config.DataTypeJSON:
				require.NoError(t, json.Unmarshal([]byte(tt.cfgData), &appCfg))
			}
			require.Equal(t, AppConfig{Log: expectedCfg()}, appCfg)
		})
	}
}

func TestNewDefaultConfig(t *testing.T) {
	// Empty config, all defaults for the data provider should be used
	cfg := NewConfig()
	require.NoError(t, config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer(nil), config.DataTypeYAML, cfg))
	require.Equal(t, NewDefaultConfig(), cfg)

	cfg = NewDefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(""), cfg))
	require.Equal(t, NewDefaultConfig(), cfg)

	cfg = NewDefaultConfig()
	require.NoError(t, json.Unmarshal([]byte("{}"), cfg))
	require.Equal(t, NewDefaultConfig(), cfg)
}

func TestConfigWithKeyPrefix(t *testing.T) {
	cfgData := `
dispatcherLog:
  level: debug
  format: text
`
	expectedCfg := NewDefaultConfig(WithKeyPrefix("dispatcherLog"))
	expectedCfg.Level = LevelDebug
	expectedCfg.Format = FormatText

	cfg := NewConfig(WithKeyPrefix("dispatcherLog"))
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, expectedCfg, cfg)
}

func TestConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name           string
		yamlData       string
		expectedErrMsg string
	}{
		{
			name: "error, unknown log level",
			yamlData: `
log:
  level: invalid-level
`,
			expectedErrMsg: `log.level: unknown value "invalid-level", should be one of [error warn info debug]`,
		},
		{
			name: "error, unknown log format",
			yamlData: `
log:
  format: invalid-format
`,
			expectedErrMsg: `log.format: unknown value "invalid-format", should be one of [json text]`,
		},
		{
			name: "error, file output without path",
			yamlData: `
log:
  output: file
`,
			expectedErrMsg: `log.file.path: cannot be empty when "file" output is used`,
		},
		{
			name: "error, too small rotation size",
			yamlData: `
log:
  file:
    rotation:
      maxSize: 1K
`,
			expectedErrMsg: `log.file.rotation.maxSize: should be >= 1M`,
		},
		{
			name:           "error, no rotation backups",
			yamlData:       "log: {file: {rotation: {maxBackups: 0}}}",
			expectedErrMsg: `log.file.rotation.maxBackups: should be >= 1`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(tt.yamlData), config.DataTypeYAML, cfg)
			require.EqualError(t, err, tt.expectedErrMsg)
		})
	}
}
