// Package config loads TDX credentials and runtime tunables the way the
// teacher's CLI (yogirk-tgcp, internal/config/config.go) loads its own
// persisted settings: sensible defaults, then an optional file under the
// user's config directory, then environment overrides — except here env
// wins over the file, since TDX client secrets belong in the environment,
// not a committed config.json (spec.md §6.4).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tra-cli/tra/internal/model"
)

// maxCredentialSlots is the maximum number of TDX_CLIENT_ID_{n} slots
// recognized, per spec.md §6.4.
const maxCredentialSlots = 10

// Tunables holds the operator-overridable defaults for the lower layers.
// Zero values mean "use the component's own default".
type Tunables struct {
	RateLimitMaxTokens      int     `json:"rate_limit_max_tokens,omitempty"`
	RateLimitRefillPerSec   float64 `json:"rate_limit_refill_per_sec,omitempty"`
	RateLimitRetryAfterMs   int     `json:"rate_limit_retry_after_ms,omitempty"`
	RateLimitMaxRetries     int     `json:"rate_limit_max_retries,omitempty"`
	FailureThreshold        int     `json:"failure_threshold,omitempty"`
	FailureCooldownMs       int64   `json:"failure_cooldown_ms,omitempty"`
	BreakerSuccessThreshold int     `json:"breaker_success_threshold,omitempty"`
	BreakerOpenTimeoutMs    int64   `json:"breaker_open_timeout_ms,omitempty"`
	RetryMaxRetries         int     `json:"retry_max_retries,omitempty"`
	RetryBaseDelayMs        int64   `json:"retry_base_delay_ms,omitempty"`
	RetryMaxDelayMs         int64   `json:"retry_max_delay_ms,omitempty"`
	CacheDir                string  `json:"cache_dir,omitempty"`
}

// File is the shape of ~/.config/tra/config.json.
type File struct {
	Tunables Tunables `json:"tunables"`
}

// Config is the fully resolved runtime configuration: credentials loaded
// from the environment and tunables merged file-then-env.
type Config struct {
	Credentials []model.Credential
	Tunables    Tunables
}

// Load resolves configuration per spec.md §6.4: defaults, then the
// persisted file (if present), then environment overrides, with
// credentials sourced from the environment exclusively.
func Load() (*Config, error) {
	cfg := &Config{}

	if f, err := loadFile(); err == nil && f != nil {
		cfg.Tunables = f.Tunables
	} else if err != nil {
		return nil, fmt.Errorf("tra: reading config file: %w", err)
	}

	applyEnvTunables(&cfg.Tunables)

	creds, err := loadCredentials()
	if err != nil {
		return nil, err
	}
	cfg.Credentials = creds

	return cfg, nil
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tra", "config.json"), nil
}

func loadFile() (*File, error) {
	path, err := configPath()
	if err != nil {
		return nil, nil //nolint:nilerr // no home dir means no file to load
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &f, nil
}

func applyEnvTunables(t *Tunables) {
	if v, ok := envInt("TRA_RATE_LIMIT_MAX_TOKENS"); ok {
		t.RateLimitMaxTokens = v
	}
	if v, ok := envFloat("TRA_RATE_LIMIT_REFILL_PER_SEC"); ok {
		t.RateLimitRefillPerSec = v
	}
	if v, ok := os.LookupEnv("TRA_CACHE_DIR"); ok {
		t.CacheDir = v
	}
}

func envInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// loadCredentials reads TDX_CLIENT_ID[_n]/TDX_CLIENT_SECRET[_n] pairs from
// the environment. Slot 1 has no suffix; slots 2..10 do. Incomplete pairs
// are skipped silently, per spec.md §6.4.
func loadCredentials() ([]model.Credential, error) {
	var creds []model.Credential

	if c, ok := credentialFromEnv("", "1"); ok {
		creds = append(creds, c)
	}
	for n := 2; n <= maxCredentialSlots; n++ {
		suffix := fmt.Sprintf("_%d", n)
		if c, ok := credentialFromEnv(suffix, strconv.Itoa(n)); ok {
			creds = append(creds, c)
		}
	}

	return creds, nil
}

func credentialFromEnv(suffix, id string) (model.Credential, bool) {
	clientID := os.Getenv("TDX_CLIENT_ID" + suffix)
	clientSecret := os.Getenv("TDX_CLIENT_SECRET" + suffix)
	if clientID == "" || clientSecret == "" {
		return model.Credential{}, false
	}

	label := os.Getenv("TDX_KEY_LABEL" + suffix)
	if label == "" {
		label = "slot-" + id
	}

	return model.Credential{
		ID:           id,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Label:        label,
	}, true
}
