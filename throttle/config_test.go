/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-throttlekit/admission"
	"github.com/acronis/go-throttlekit/config"
	"github.com/acronis/go-throttlekit/retry"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfig(t *testing.T) {
	suite.Run(t, &ConfigTestSuite{})
}

func (s *ConfigTestSuite) TestLoad() {
	expectedCfg := func() *Config {
		cfg := NewDefaultConfig()
		cfg.Rate = RateValue{Count: 5, Duration: time.Second}
		cfg.Backlog = 50
		cfg.Algorithm = admission.AlgorithmTokenBucket
		cfg.Burst = 2
		cfg.Retry.Policy = RetryPolicyExponential
		cfg.Retry.MaxInterval = config.TimeDuration(10 * time.Second)
		cfg.ErrorsBufferSize = 16
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
throttle:
  rate: 5/s
  backlog: 50
  algorithm: token_bucket
  burst: 2
  retry:
    policy: exponential
    maxInterval: 10s
  errorsBufferSize: 16
`,
		},
		{
			name:        "json config",
			cfgDataType: config.DataTypeJSON,
			cfgData: `
{
	"throttle": {
		"rate": "5/s",
		"backlog": 50,
		"algorithm": "token_bucket",
		"burst": 2,
		"retry": {"policy": "exponential", "maxInterval": "10s"},
		"errorsBufferSize": 16
	}
}`,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			// Load config using config.Loader.
			cfg := NewConfig()
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.cfgData), tt.cfgDataType, cfg)
			s.Require().NoError(err)
			s.Require().Equal(expectedCfg(), cfg)

			// Load config using yaml/json unmarshal.
			appCfg := struct {
				Throttle *Config `json:"throttle" yaml:"throttle"`
			}{Throttle: NewDefaultConfig()}
			switch tt.cfgDataType {
			case config.DataTypeYAML:
				s.Require().NoError(yaml.Unmarshal([]byte(tt.cfgData), &appCfg))
			case config.DataTypeJSON:
				s.Require().NoError(json.Unmarshal([]byte(tt.cfgData), &appCfg))
			}
			s.Require().Equal(expectedCfg(), appCfg.Throttle)
		})
	}
}

func (s *ConfigTestSuite) TestDefaults() {
	cfg := NewConfig()
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer(nil), config.DataTypeYAML, cfg)
	s.Require().NoError(err)
	s.Require().Equal(NewDefaultConfig(), cfg)
}

func (s *ConfigTestSuite) TestKeyPrefix() {
	cfgData := `
services:
  orders:
    rate: 100/m
`
	cfg := NewConfig(WithKeyPrefix("services.orders"))
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg)
	s.Require().NoError(err)
	s.Require().Equal(RateValue{Count: 100, Duration: time.Minute}, cfg.Rate)
	s.Require().Equal("services.orders", cfg.KeyPrefix())
}

func (s *ConfigTestSuite) TestValidationErrors() {
	tests := []struct {
		name           string
		yamlData       string
		expectedErrMsg string
	}{
		{
			name:     "invalid rate",
			yamlData: "throttle: {rate: 5 per second}",
			expectedErrMsg: `throttle.rate: incorrect format for rate "5 per second", should be N/(s|m|h) or N/<duration>, ` +
				`for example 10/s, 100/m, 5/250ms`,
		},
		{
			name:           "negative backlog",
			yamlData:       "throttle: {backlog: -1}",
			expectedErrMsg: "throttle.backlog: should be >= 0",
		},
		{
			name:           "zero rate with backlog",
			yamlData:       "throttle: {rate: 0/s, backlog: 10}",
			expectedErrMsg: "throttle.rate: should allow at least one admission when backlog is enabled",
		},
		{
			name:     "unknown algorithm",
			yamlData: "throttle: {algorithm: fixed_window}",
			expectedErrMsg: `throttle.algorithm: unknown value "fixed_window", ` +
				`should be one of [sliding_log sliding_window leaky_bucket token_bucket]`,
		},
		{
			name:           "negative burst",
			yamlData:       "throttle: {burst: -3}",
			expectedErrMsg: "throttle.burst: should be >= 0",
		},
		{
			name:           "unknown retry policy",
			yamlData:       "throttle: {retry: {policy: linear}}",
			expectedErrMsg: `throttle.retry.policy: unknown value "linear", should be one of [constant exponential]`,
		},
		{
			name:           "negative retry max interval",
			yamlData:       "throttle: {retry: {maxInterval: -1s}}",
			expectedErrMsg: "throttle.retry.maxInterval: should not be negative",
		},
		{
			name:           "negative errors buffer size",
			yamlData:       "throttle: {errorsBufferSize: -1}",
			expectedErrMsg: "throttle.errorsBufferSize: should be >= 0",
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(tt.yamlData), config.DataTypeYAML, cfg)
			s.Require().EqualError(err, tt.expectedErrMsg)
		})
	}
}

func (s *ConfigTestSuite) TestMapstructureDecodeHook() {
	input := map[string]interface{}{
		"rate":    " 10/500ms ",
		"backlog": 20,
		"retry":   map[string]interface{}{"policy": "exponential", "maxInterval": "1m"},
	}
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: MapstructureDecodeHook(),
		Result:     &cfg,
	})
	s.Require().NoError(err)
	s.Require().NoError(decoder.Decode(input))

	s.Require().Equal(RateValue{Count: 10, Duration: 500 * time.Millisecond}, cfg.Rate)
	s.Require().Equal(20, cfg.Backlog)
	s.Require().Equal(RetryPolicyExponential, cfg.Retry.Policy)
	s.Require().Equal(config.TimeDuration(time.Minute), cfg.Retry.MaxInterval)
}

func TestRateValue(t *testing.T) {
	tests := []struct {
		text     string
		want     RateValue
		wantStr  string
		wantFail bool
	}{
		{text: "10/s", want: RateValue{10, time.Second}, wantStr: "10/s"},
		{text: "100/M", want: RateValue{100, time.Minute}, wantStr: "100/m"},
		{text: "1000/h", want: RateValue{1000, time.Hour}, wantStr: "1000/h"},
		{text: "5/250ms", want: RateValue{5, 250 * time.Millisecond}, wantStr: "5/250ms"},
		{text: "0/s", want: RateValue{0, time.Second}, wantStr: "0/s"},
		{text: "", want: RateValue{}, wantStr: ""},
		{text: "10", wantFail: true},
		{text: "-1/s", wantFail: true},
		{text: "x/s", wantFail: true},
		{text: "10/d", wantFail: true},
		{text: "10/-1s", wantFail: true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			var rv RateValue
			err := rv.UnmarshalText([]byte(tt.text))
			if tt.wantFail {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, rv)
			require.Equal(t, tt.wantStr, rv.String())

			data, err := json.Marshal(rv)
			require.NoError(t, err)
			var fromJSON RateValue
			require.NoError(t, json.Unmarshal(data, &fromJSON))
			require.Equal(t, tt.want, fromJSON)
		})
	}
}

func TestNewFromConfig(t *testing.T) {
	downstream := func(string) error { return nil }

	t.Run("every algorithm", func(t *testing.T) {
		for _, alg := range admission.Algorithms {
			cfg := NewDefaultConfig()
			cfg.Algorithm = alg
			cfg.Rate = RateValue{Count: 2, Duration: time.Minute}
			d, err := NewFromConfig[string](cfg, downstream, Opts[string]{})
			require.NoError(t, err, string(alg))
			d.Accept("a")
			d.Accept("b")
			d.Accept("c")
			stats := d.Stats()
			require.Equal(t, int64(2), stats.Dispatched, string(alg))
			require.Equal(t, 1, stats.BacklogLen, string(alg))
			closeDispatcher(t, d)
		}
	})

	t.Run("exponential retry policy", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Retry.Policy = RetryPolicyExponential
		policy, err := cfg.Retry.newPolicy(cfg.Rate.Duration)
		require.NoError(t, err)
		require.IsType(t, retry.ExponentialBackoffPolicy{}, policy)

		cfg.Retry.Policy = "linear"
		_, err = cfg.Retry.newPolicy(cfg.Rate.Duration)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Rate = RateValue{Count: 0, Duration: time.Second}
		_, err := NewFromConfig[string](cfg, downstream, Opts[string]{})
		require.ErrorIs(t, err, ErrInvalidConfig)

		cfg = NewDefaultConfig()
		cfg.Algorithm = "fixed_window"
		_, err = NewFromConfig[string](cfg, downstream, Opts[string]{})
		require.ErrorIs(t, err, ErrInvalidConfig)
		require.ErrorContains(t, err, `unknown admission algorithm "fixed_window"`)
	})
}
