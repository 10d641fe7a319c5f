package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-yaml/yaml"

	"github.com/coopvest/coopvest/internal/domain"
)

type Config struct {
	Server    Server    `yaml:"server"`
	Guarantor Guarantor `yaml:"guarantor"`
}

type Server struct {
	Listen        string `yaml:"listen"`
	PostgresDsn   string `yaml:"postgresDsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

type Guarantor struct {
	SigningSecret        string `yaml:"signingSecret"`
	TokenSecret          string `yaml:"tokenSecret"`
	ValidityDays         int    `yaml:"validityDays"`
	ProbeIntervalSeconds int    `yaml:"probeIntervalSeconds"`
	GuarantorsRequired   int    `yaml:"guarantorsRequired"`
}

func Load(path string) (Config, error) {

	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, err
	}

	if config.Guarantor.SigningSecret == "" {
		return Config{}, fmt.Errorf("guarantor.signingSecret must be set")
	}

	if config.Server.Listen == "" {
		config.Server.Listen = ":8000"
	}
	if config.Guarantor.ValidityDays == 0 {
		config.Guarantor.ValidityDays = 7
	}
	if config.Guarantor.ProbeIntervalSeconds == 0 {
		config.Guarantor.ProbeIntervalSeconds = 30
	}
	if config.Guarantor.GuarantorsRequired == 0 {
		config.Guarantor.GuarantorsRequired = 3
	}

	return config, nil
}

// Domain flattens the file layout into the runtime config handed to services.
func (c Config) Domain() domain.Config {
	return domain.Config{
		Listen:             c.Server.Listen,
		SigningSecret:      c.Guarantor.SigningSecret,
		TokenSecret:        c.Guarantor.TokenSecret,
		ValidityWindow:     time.Duration(c.Guarantor.ValidityDays) * 24 * time.Hour,
		ProbeInterval:      time.Duration(c.Guarantor.ProbeIntervalSeconds) * time.Second,
		GuarantorsRequired: c.Guarantor.GuarantorsRequired,
	}
}
