package elastic

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

type Config struct {
	URL      string
	OCRIndex string
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL ConfigErrorCode = "invalid_url"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid elastic config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "ELASTIC_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf(
			"invalid ELASTIC_URL=%q; expected absolute URL like http://elasticsearch:9200",
			e.Value,
		)
	default:
		return "invalid elastic config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:      strings.TrimSpace(os.Getenv("ELASTIC_URL")),
		OCRIndex: strings.TrimSpace(os.Getenv("ELASTIC_OCR_INDEX")),
	}
	if cfg.OCRIndex == "" {
		cfg.OCRIndex = "clipiq_ocr"
	}

	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if cfg.URL == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return &ConfigError{
			Code:  ConfigErrorInvalidURL,
			Value: cfg.URL,
			Cause: err,
		}
	}
	return nil
}
