/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-throttlekit/admission"
	"github.com/acronis/go-throttlekit/config"
	"github.com/acronis/go-throttlekit/retry"
)

const cfgDefaultKeyPrefix = "throttle"

const (
	cfgKeyRate             = "rate"
	cfgKeyBacklog          = "backlog"
	cfgKeyAlgorithm        = "algorithm"
	cfgKeyBurst            = "burst"
	cfgKeyRetryPolicy      = "retry.policy"
	cfgKeyRetryMaxInterval = "retry.maxInterval"
	cfgKeyErrorsBufferSize = "errorsBufferSize"
)

// Default values.
const (
	DefaultBacklog          = 100
	DefaultRetryMaxInterval = 30 * time.Second
)

// DefaultRate is used when no rate is configured.
var DefaultRate = RateValue{Count: 10, Duration: time.Second}

// RetryPolicyName defines possible values for the retry policy.
type RetryPolicyName string

// Retry policies.
const (
	RetryPolicyConstant    RetryPolicyName = "constant"
	RetryPolicyExponential RetryPolicyName = "exponential"
)

// Config represents a set of configuration parameters for Dispatcher.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, with viper's unmarshal
// (see MapstructureDecodeHook) or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// Rate is the maximum number of admissions per rolling period, e.g. "5/s", "100/m", "10/500ms".
	Rate RateValue `mapstructure:"rate" yaml:"rate" json:"rate"`

	// Backlog is the capacity of the queue for not admitted items. Zero disables buffering.
	Backlog int `mapstructure:"backlog" yaml:"backlog" json:"backlog"`

	Algorithm admission.Algorithm `mapstructure:"algorithm" yaml:"algorithm" json:"algorithm"`

	// Burst matters only for the leaky_bucket and token_bucket algorithms.
	Burst int `mapstructure:"burst" yaml:"burst" json:"burst"`

	Retry RetryConfig `mapstructure:"retry" yaml:"retry" json:"retry"`

	ErrorsBufferSize int `mapstructure:"errorsBufferSize" yaml:"errorsBufferSize" json:"errorsBufferSize"`

	keyPrefix string
}

// RetryConfig represents configuration of delays between retries of the backlog head.
type RetryConfig struct {
	Policy RetryPolicyName `mapstructure:"policy" yaml:"policy" json:"policy"`

	// MaxInterval caps delays of the exponential policy.
	MaxInterval config.TimeDuration `mapstructure:"maxInterval" yaml:"maxInterval" json:"maxInterval"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Rate = DefaultRate
	cfg.Backlog = DefaultBacklog
	cfg.Algorithm = admission.AlgorithmSlidingLog
	cfg.Retry.Policy = RetryPolicyConstant
	cfg.Retry.MaxInterval = config.TimeDuration(DefaultRetryMaxInterval)
	cfg.ErrorsBufferSize = DefaultErrorsBufferSize
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for Dispatcher in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyRate, DefaultRate.String())
	dp.SetDefault(cfgKeyBacklog, DefaultBacklog)
	dp.SetDefault(cfgKeyAlgorithm, string(admission.AlgorithmSlidingLog))
	dp.SetDefault(cfgKeyRetryPolicy, string(RetryPolicyConstant))
	dp.SetDefault(cfgKeyRetryMaxInterval, DefaultRetryMaxInterval.String())
	dp.SetDefault(cfgKeyErrorsBufferSize, DefaultErrorsBufferSize)
}

var availableRetryPolicies = []string{string(RetryPolicyConstant), string(RetryPolicyExponential)}

func availableAlgorithms() []string {
	res := make([]string, 0, len(admission.Algorithms))
	for _, alg := range admission.Algorithms {
		res = append(res, string(alg))
	}
	return res
}

// Set sets Dispatcher configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	rateStr, err := dp.GetString(cfgKeyRate)
	if err != nil {
		return err
	}
	if err = c.Rate.UnmarshalText([]byte(rateStr)); err != nil {
		return dp.WrapKeyErr(cfgKeyRate, err)
	}

	if c.Backlog, err = dp.GetInt(cfgKeyBacklog); err != nil {
		return err
	}
	if c.Backlog < 0 {
		return dp.WrapKeyErr(cfgKeyBacklog, fmt.Errorf("should be >= 0"))
	}
	if c.Rate.Count == 0 && c.Backlog > 0 {
		return dp.WrapKeyErr(cfgKeyRate, fmt.Errorf("should allow at least one admission when backlog is enabled"))
	}

	var algStr string
	if algStr, err = dp.GetStringFromSet(cfgKeyAlgorithm, availableAlgorithms(), true); err != nil {
		return err
	}
	c.Algorithm = admission.Algorithm(strings.ToLower(algStr))

	if c.Burst, err = dp.GetInt(cfgKeyBurst); err != nil {
		return err
	}
	if c.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyBurst, fmt.Errorf("should be >= 0"))
	}

	var policyStr string
	if policyStr, err = dp.GetStringFromSet(cfgKeyRetryPolicy, availableRetryPolicies, true); err != nil {
		return err
	}
	c.Retry.Policy = RetryPolicyName(strings.ToLower(policyStr))

	var maxInterval time.Duration
	if maxInterval, err = dp.GetDuration(cfgKeyRetryMaxInterval); err != nil {
		return err
	}
	if maxInterval < 0 {
		return dp.WrapKeyErr(cfgKeyRetryMaxInterval, fmt.Errorf("should not be negative"))
	}
	c.Retry.MaxInterval = config.TimeDuration(maxInterval)

	if c.ErrorsBufferSize, err = dp.GetInt(cfgKeyErrorsBufferSize); err != nil {
		return err
	}
	if c.ErrorsBufferSize < 0 {
		return dp.WrapKeyErr(cfgKeyErrorsBufferSize, fmt.Errorf("should be >= 0"))
	}
	return nil
}

// NewFromConfig creates a new Dispatcher using the configuration.
// Opts.Admitter, Opts.RetryPolicy and Opts.ErrorsBufferSize, if set, take precedence over the configuration.
func NewFromConfig[T any](cfg *Config, downstream Downstream[T], opts Opts[T]) (*Dispatcher[T], error) {
	if err := validateParams(cfg.Rate.Count, cfg.Rate.Duration, cfg.Backlog); err != nil {
		return nil, err
	}
	if opts.Admitter == nil {
		admitter, err := admission.NewAdmitter(cfg.Algorithm,
			admission.Rate{Count: cfg.Rate.Count, Duration: cfg.Rate.Duration}, cfg.Burst)
		if err != nil {
			return nil, invalidConfigError("%v", err)
		}
		opts.Admitter = admitter
	}
	if opts.RetryPolicy == nil {
		policy, err := cfg.Retry.newPolicy(cfg.Rate.Duration)
		if err != nil {
			return nil, err
		}
		opts.RetryPolicy = policy
	}
	if opts.ErrorsBufferSize == 0 {
		opts.ErrorsBufferSize = cfg.ErrorsBufferSize
	}
	return NewWithOpts[T](cfg.Rate.Count, cfg.Rate.Duration, cfg.Backlog, downstream, opts)
}

func (rc RetryConfig) newPolicy(period time.Duration) (retry.Policy, error) {
	switch rc.Policy {
	case "", RetryPolicyConstant:
		return retry.NewConstantBackoffPolicy(period, 0), nil
	case RetryPolicyExponential:
		maxInterval := time.Duration(rc.MaxInterval)
		if maxInterval == 0 {
			maxInterval = DefaultRetryMaxInterval
		}
		return retry.NewExponentialBackoffPolicy(period, 0).WithMaxInterval(maxInterval), nil
	default:
		return nil, invalidConfigError("unknown retry policy %q", rc.Policy)
	}
}

// RateValue represents the maximum number of admissions per period.
// Its text form is "N/(s|m|h)" or "N/<duration>", e.g. "10/s", "100/m", "1000/h", "5/250ms".
type RateValue struct {
	Count    int
	Duration time.Duration
}

// String returns a string representation of the rate value.
// Implements fmt.Stringer interface.
func (rv RateValue) String() string {
	if rv.Duration == 0 && rv.Count == 0 {
		return ""
	}
	var d string
	switch rv.Duration {
	case time.Second:
		d = "s"
	case time.Minute:
		d = "m"
	case time.Hour:
		d = "h"
	default:
		d = rv.Duration.String()
	}
	return fmt.Sprintf("%d/%s", rv.Count, d)
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (rv *RateValue) UnmarshalText(text []byte) error {
	return rv.unmarshal(string(text))
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (rv *RateValue) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	return rv.unmarshal(text)
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (rv *RateValue) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err != nil {
		return err
	}
	return rv.unmarshal(text)
}

func (rv *RateValue) unmarshal(rate string) error {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		*rv = RateValue{}
		return nil
	}
	incorrectFormatErr := fmt.Errorf(
		"incorrect format for rate %q, should be N/(s|m|h) or N/<duration>, for example 10/s, 100/m, 5/250ms", rate)
	parts := strings.SplitN(rate, "/", 2)
	if len(parts) != 2 {
		return incorrectFormatErr
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || count < 0 {
		return incorrectFormatErr
	}
	var dur time.Duration
	switch unit := strings.TrimSpace(parts[1]); strings.ToLower(unit) {
	case "s":
		dur = time.Second
	case "m":
		dur = time.Minute
	case "h":
		dur = time.Hour
	default:
		if dur, err = time.ParseDuration(unit); err != nil || dur <= 0 {
			return incorrectFormatErr
		}
	}
	*rv = RateValue{Count: count, Duration: dur}
	return nil
}

// MarshalText implements the encoding.TextMarshaler interface.
func (rv RateValue) MarshalText() ([]byte, error) {
	return []byte(rv.String()), nil
}

// MarshalJSON implements the json.Marshaler interface.
func (rv RateValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(rv.String())
}

// MarshalYAML implements the yaml.Marshaler interface.
func (rv RateValue) MarshalYAML() (interface{}, error) {
	return rv.String(), nil
}

// MapstructureDecodeHook returns a DecodeHookFunc for mapstructure to handle custom types of Config
// (RateValue, config.TimeDuration) when it's decoded with viper's Unmarshal/UnmarshalKey.
func MapstructureDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructureTrimSpaceStringsHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

func mapstructureTrimSpaceStringsHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if s, ok := data.(string); ok {
			return strings.TrimSpace(s), nil
		}
		return data, nil
	}
}
