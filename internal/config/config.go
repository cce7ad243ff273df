// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keys are flat and snake_case so env vars map one-to-one (PEPAI_GENAI_API_KEY -> genai_api_key).
// - New() returns defaults; Load layers file and env on top of them.
package config

import (
	"fmt"
	"runtime"
)

// Store drivers accepted by StoreDriver.
const (
	StoreSQLite    = "sqlite"
	StoreFirestore = "firestore"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DevMode exposes underlying error messages to clients.
	DevMode bool `koanf:"dev_mode"`

	// PublicURL is the origin used when building share links.
	PublicURL string `koanf:"public_url"`

	// StaticDir is a built web client served at /. Empty serves the API only.
	StaticDir string `koanf:"static_dir"`

	// GenAIAPIKey authenticates against the Gemini API. GEMINI_API_KEY is honoured as a fallback.
	GenAIAPIKey string `koanf:"genai_api_key"`

	// GenerationModel backs the streaming generate/refine requesters.
	GenerationModel string `koanf:"generation_model"`

	// DrillsModel backs the one-shot POST /api/drills route.
	DrillsModel string `koanf:"drills_model"`

	// LiveModel and VoiceName configure the voice assistant.
	LiveModel string `koanf:"live_model"`
	VoiceName string `koanf:"voice_name"`

	// MaxAttempts bounds generation attempts on provider overload (one try plus retries).
	MaxAttempts int `koanf:"max_attempts"`

	// BackoffBaseMS and BackoffJitterMS shape the retry delay: base*2^retry + rand(jitter).
	BackoffBaseMS   int `koanf:"backoff_base_ms"`
	BackoffJitterMS int `koanf:"backoff_jitter_ms"`

	// MaxPromptLength caps the trimmed prompt length accepted by POST /api/drills.
	MaxPromptLength int `koanf:"max_prompt_length"`

	// StoreDriver selects the document store: sqlite or firestore.
	StoreDriver      string `koanf:"store_driver"`
	SQLitePath       string `koanf:"sqlite_path"`
	FirestoreProject string `koanf:"firestore_project"`

	// FirestoreCredentials is a service account key file. Empty means
	// application default credentials.
	FirestoreCredentials string `koanf:"firestore_credentials_file"`

	// DraftsDir holds encrypted session drafts; DraftsPassphrase enables encryption at rest.
	DraftsDir        string `koanf:"drafts_dir"`
	DraftsPassphrase string `koanf:"drafts_passphrase"`

	// AuthEnabled turns on Firebase ID token verification.
	AuthEnabled     bool   `koanf:"auth_enabled"`
	FirebaseProject string `koanf:"firebase_project"`
	JWKSURL         string `koanf:"jwks_url"`

	// MockUID authenticates every request as this user when auth is disabled.
	MockUID string `koanf:"mock_uid"`

	// BillingEnabled gates generation and saving behind balances and capabilities.
	BillingEnabled bool `koanf:"billing_enabled"`
	CreditCost     int  `koanf:"credit_cost"`
	PepPointCost   int  `koanf:"pep_point_cost"`
	DefaultCredits int  `koanf:"default_credits"`

	// WebhookSecret protects the payment-provider trigger endpoints.
	WebhookSecret string `koanf:"webhook_secret"`

	// CheckoutTimeoutMS bounds how long POST /api/checkout waits for a redirect URL.
	CheckoutTimeoutMS int `koanf:"checkout_timeout_ms"`

	// HistoryQueueSize bounds the asynchronous history-save queue.
	HistoryQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of history-save workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the idempotency-key cache.
	DedupeSize int `koanf:"dedupe_size"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":8080",
		PublicURL:         "http://localhost:8080",
		GenerationModel:   "gemini-3-flash-preview",
		DrillsModel:       "gemini-2.5-flash",
		LiveModel:         "gemini-2.5-flash-native-audio-preview-12-2025",
		VoiceName:         "Zephyr",
		MaxAttempts:       4,
		BackoffBaseMS:     1000,
		BackoffJitterMS:   1000,
		MaxPromptLength:   2000,
		StoreDriver:       StoreSQLite,
		SQLitePath:        "pepai.db",
		DraftsDir:         "data/drafts",
		JWKSURL:           "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com",
		CreditCost:        5,
		PepPointCost:      1,
		DefaultCredits:    10,
		CheckoutTimeoutMS: 30_000,
		HistoryQueueSize:  1024,
		WorkerCount:       runtime.NumCPU(),
		DedupeSize:        10_000,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreDriver != StoreSQLite && c.StoreDriver != StoreFirestore:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver == StoreFirestore && c.FirestoreProject == "":
		return fmt.Errorf("%w: firestore_project is required for the firestore driver", ErrInvalidConfig)
	case c.AuthEnabled && c.FirebaseProject == "":
		return fmt.Errorf("%w: firebase_project is required when auth is enabled", ErrInvalidConfig)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max_attempts must be at least 1", ErrInvalidConfig)
	case c.MaxPromptLength < 1:
		return fmt.Errorf("%w: max_prompt_length must be positive", ErrInvalidConfig)
	case c.CreditCost < 1:
		return fmt.Errorf("%w: credit_cost must be at least 1", ErrInvalidConfig)
	case c.PepPointCost < 1:
		return fmt.Errorf("%w: pep_point_cost must be at least 1", ErrInvalidConfig)
	case c.DefaultCredits < 0:
		return fmt.Errorf("%w: default_credits must not be negative", ErrInvalidConfig)
	}
	return nil
}
