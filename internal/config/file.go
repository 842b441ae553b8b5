package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig 는 YAML 파일 구조.
// duration 은 문자열로 받아 ParseDuration 규칙(숫자만 있으면 초)을 그대로 적용한다.
type fileConfig struct {
	URL                 string            `yaml:"url"`
	LicenseKey          string            `yaml:"license_key"`
	APIKey              string            `yaml:"api_key"`
	Attributes          map[string]string `yaml:"attributes"`
	BufferSize          *int              `yaml:"buffer_size"`
	BufferInterval      string            `yaml:"buffer_interval"`
	QueueCapacity       *int              `yaml:"queue_capacity"`
	DiscardingThreshold *int              `yaml:"discarding_threshold"`
	NeverBlock          *bool             `yaml:"never_block"`
	Workers             *int              `yaml:"workers"`
	MaxPendingBatches   *int              `yaml:"max_pending_batches"`
	RequestTimeout      string            `yaml:"request_timeout"`
	MaxFlushTime        string            `yaml:"max_flush_time"`
	HTTPAddr            string            `yaml:"http_addr"`
	MaxBodySize         *int64            `yaml:"max_body_size"`
	ServiceName         string            `yaml:"service_name"`
	LogLevel            string            `yaml:"log_level"`
	LogPretty           *bool             `yaml:"log_pretty"`
	LogSampleN          *uint32           `yaml:"log_sample_n"`
}

// LoadFile 은 YAML 설정 파일을 Default() 위에 덮어쓴다.
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse 는 YAML 바이트를 Config 로 변환한다.
func Parse(raw []byte) (Config, error) {
	var f fileConfig
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Config{}, fmt.Errorf("%w: yaml: %v", ErrInvalid, err)
	}

	c := Default()
	setStr(&c.URL, f.URL)
	setStr(&c.LicenseKey, f.LicenseKey)
	setStr(&c.APIKey, f.APIKey)
	if len(f.Attributes) > 0 {
		c.Attributes = f.Attributes
	}

	setPtr(&c.BufferSize, f.BufferSize)
	setPtr(&c.QueueCapacity, f.QueueCapacity)
	setPtr(&c.DiscardingThreshold, f.DiscardingThreshold)
	setPtr(&c.NeverBlock, f.NeverBlock)
	setPtr(&c.Workers, f.Workers)
	setPtr(&c.MaxPendingBatches, f.MaxPendingBatches)
	setPtr(&c.MaxBodySize, f.MaxBodySize)
	setPtr(&c.LogPretty, f.LogPretty)
	setPtr(&c.LogSampleN, f.LogSampleN)

	setStr(&c.HTTPAddr, f.HTTPAddr)
	setStr(&c.ServiceName, f.ServiceName)
	setStr(&c.LogLevel, f.LogLevel)

	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"buffer_interval", f.BufferInterval, &c.BufferInterval},
		{"request_timeout", f.RequestTimeout, &c.RequestTimeout},
		{"max_flush_time", f.MaxFlushTime, &c.MaxFlushTime},
	} {
		if d.raw == "" {
			continue
		}
		v, err := ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s=%q: %v", ErrInvalid, d.name, d.raw, err)
		}
		*d.dst = v
	}

	return c, nil
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
