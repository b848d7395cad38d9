// Package e2e drives a running chat server over HTTP and websockets.
// Suites are skipped unless CHAT_URL points to a server.
package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ChatURL string `envconfig:"CHAT_URL"`
	// E2E_DEBUG_JSON dumps full request and response bodies
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
