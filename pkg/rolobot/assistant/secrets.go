// Package assistant – secrets.go resolves the provider API key at startup.
//
// Priority:
//  1. OS keyring (Linux: Secret Service, macOS: Keychain, Windows: Credential Manager)
//  2. Environment variables (ROLOBOT_API_KEY, OPENROUTER_API_KEY, OPENAI_API_KEY)
//  3. config.yaml value (least secure — plaintext on disk)
package assistant

import (
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "rolobot"

	// keyringAPIKey is the key name for the LLM API key.
	keyringAPIKey = "api_key"
)

// apiKeyEnvVars are checked in order.
var apiKeyEnvVars = []string{"ROLOBOT_API_KEY", "OPENROUTER_API_KEY", "OPENAI_API_KEY"}

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring.
// Returns empty string if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// ResolveAPIKey resolves the API key using the priority chain and updates the
// config in place.
func ResolveAPIKey(cfg *Config, logger *slog.Logger) {
	if val := GetKeyring(keyringAPIKey); val != "" {
		cfg.API.APIKey = val
		logger.Debug("API key loaded from OS keyring")
		return
	}

	for _, name := range apiKeyEnvVars {
		if val := os.Getenv(name); val != "" {
			cfg.API.APIKey = val
			logger.Debug("API key loaded from environment", "var", name)
			return
		}
	}

	if cfg.API.APIKey != "" {
		logger.Warn("API key loaded from config file; prefer the keyring or environment")
	}
}
