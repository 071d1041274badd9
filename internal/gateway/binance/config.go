package binance

import (
	"strings"
	"time"
)

const (
	defaultRESTBaseURL    = "https://fapi.binance.com"
	defaultTestnetBaseURL = "https://testnet.binancefuture.com"
)

type Config struct {
	APIKey    string
	APISecret string

	UseTestnet     bool
	RESTBaseURL    string
	TestnetBaseURL string
	HTTPTimeout    time.Duration

	ProxyEnabled bool
	ProxyURL     string

	// RateLimit 单位为请求/秒，<=0 表示不限速。
	RateLimit float64
	Burst     int
}

func (c *Config) withDefaults() Config {
	out := *c
	out.APIKey = strings.TrimSpace(out.APIKey)
	out.APISecret = strings.TrimSpace(out.APISecret)
	out.RESTBaseURL = strings.TrimRight(strings.TrimSpace(out.RESTBaseURL), "/")
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = defaultRESTBaseURL
	}
	out.TestnetBaseURL = strings.TrimRight(strings.TrimSpace(out.TestnetBaseURL), "/")
	if out.TestnetBaseURL == "" {
		out.TestnetBaseURL = defaultTestnetBaseURL
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.ProxyURL = strings.TrimSpace(out.ProxyURL)
	if out.Burst <= 0 {
		out.Burst = 1
	}
	return out
}

// BaseURL returns the REST endpoint selected by UseTestnet.
func (c Config) BaseURL() string {
	if c.UseTestnet {
		return c.TestnetBaseURL
	}
	return c.RESTBaseURL
}
