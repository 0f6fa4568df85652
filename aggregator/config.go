package aggregator

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/raymondelooff/amqp-measurement-sampler/sampler"
	"gopkg.in/yaml.v2"
)

// Config is the main configuration
type Config struct {
	Env     string        `yaml:"env"`
	AMQP    AMQPConfig    `yaml:"amqp"`
	MySQL   MySQLConfig   `yaml:"mysql"`
	Writer  WriterConfig  `yaml:"writer"`
	Sampler SamplerConfig `yaml:"sampler"`
	Retry   RetryConfig   `yaml:"retry"`
	Topics  []string      `yaml:"topics"`
}

// SamplerConfig represents the sampling schedule of the Aggregator
type SamplerConfig struct {
	sampler.Config `yaml:",inline"`

	FlushPeriod     time.Duration `yaml:"flush_period"`
	StartOfSampling time.Time     `yaml:"start_of_sampling"`
}

// RetryConfig represents the retry policy for the broker and database
type RetryConfig struct {
	Attempts uint          `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

func (c *Config) setDefaults() {
	if c.Sampler.Interval <= 0 {
		c.Sampler.Interval = sampler.DefaultInterval
	}

	if c.Sampler.FlushPeriod <= 0 {
		c.Sampler.FlushPeriod = time.Minute
	}

	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = 5
	}

	if c.Retry.Delay <= 0 {
		c.Retry.Delay = time.Second
	}
}

// LoadConfig reads the YAML config file at the given path
func LoadConfig(path string) (Config, error) {
	c := Config{}

	f, err := ioutil.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("Config: %w", err)
	}

	if err := yaml.Unmarshal(f, &c); err != nil {
		return c, fmt.Errorf("Config: %w", err)
	}

	if len(c.Topics) == 0 {
		return c, fmt.Errorf("Config: no topics configured")
	}

	c.setDefaults()

	return c, nil
}
