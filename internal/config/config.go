package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "VOICENOTES"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "voicenotes.db"
	defaultLogLevel          = "info"
	defaultCookieName        = "app_session"
	defaultIssuer            = "tauth"
	defaultAICallTimeout     = 60
	defaultAudioDir          = "audio"
	defaultAudioBaseURL      = "/audio"
	defaultAudioMaxBytes     = 25 << 20
	defaultCloudinaryFolder  = "voicenotes"
	defaultWriterQueueSize   = 256
	defaultHeartbeatInterval = 25
)

// Backend selectors.
const (
	StoreSQLite            = "sqlite"
	StoreFirestore         = "firestore"
	ProviderGemini         = "gemini"
	ProviderOpenAI         = "openai"
	AudioStorageLocal      = "local"
	AudioStorageCloudinary = "cloudinary"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	LogLevel           string
	DatabasePath       string
	TAuthSigningKey    string
	TAuthCookieName    string
	TAuthIssuer        string
	CORSAllowedOrigins []string

	StoreDriver              string
	FirestoreProjectID       string
	FirestoreCredentialsFile string

	AIProvider    string
	AIAPIKey      string
	AIModel       string
	AIBaseURL     string
	AICallTimeout time.Duration

	AudioStorage       string
	AudioDir           string
	AudioPublicBaseURL string
	AudioMaxBytes      int64
	CloudinaryURL      string
	CloudinaryFolder   string

	WriterQueueSize   int
	HeartbeatInterval time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("tauth.cookie_name", defaultCookieName)
	configViper.SetDefault("tauth.issuer", defaultIssuer)
	configViper.SetDefault("cors.allowed_origins", "")
	configViper.SetDefault("store.driver", StoreSQLite)
	configViper.SetDefault("firestore.project_id", "")
	configViper.SetDefault("firestore.credentials_file", "")
	configViper.SetDefault("ai.provider", ProviderGemini)
	configViper.SetDefault("ai.api_key", "")
	configViper.SetDefault("ai.model", "")
	configViper.SetDefault("ai.base_url", "")
	configViper.SetDefault("ai.call_timeout_seconds", defaultAICallTimeout)
	configViper.SetDefault("audio.storage", AudioStorageLocal)
	configViper.SetDefault("audio.dir", defaultAudioDir)
	configViper.SetDefault("audio.public_base_url", defaultAudioBaseURL)
	configViper.SetDefault("audio.max_bytes", defaultAudioMaxBytes)
	configViper.SetDefault("cloudinary.url", "")
	configViper.SetDefault("cloudinary.folder", defaultCloudinaryFolder)
	configViper.SetDefault("writer.queue_size", defaultWriterQueueSize)
	configViper.SetDefault("realtime.heartbeat_seconds", defaultHeartbeatInterval)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:              configViper.GetString("http.address"),
		LogLevel:                 configViper.GetString("log.level"),
		DatabasePath:             configViper.GetString("database.path"),
		TAuthSigningKey:          configViper.GetString("tauth.signing_secret"),
		TAuthCookieName:          configViper.GetString("tauth.cookie_name"),
		TAuthIssuer:              configViper.GetString("tauth.issuer"),
		CORSAllowedOrigins:       splitList(configViper.GetString("cors.allowed_origins")),
		StoreDriver:              strings.ToLower(strings.TrimSpace(configViper.GetString("store.driver"))),
		FirestoreProjectID:       configViper.GetString("firestore.project_id"),
		FirestoreCredentialsFile: configViper.GetString("firestore.credentials_file"),
		AIProvider:               strings.ToLower(strings.TrimSpace(configViper.GetString("ai.provider"))),
		AIAPIKey:                 configViper.GetString("ai.api_key"),
		AIModel:                  configViper.GetString("ai.model"),
		AIBaseURL:                configViper.GetString("ai.base_url"),
		AICallTimeout:            time.Duration(configViper.GetInt("ai.call_timeout_seconds")) * time.Second,
		AudioStorage:             strings.ToLower(strings.TrimSpace(configViper.GetString("audio.storage"))),
		AudioDir:                 configViper.GetString("audio.dir"),
		AudioPublicBaseURL:       configViper.GetString("audio.public_base_url"),
		AudioMaxBytes:            configViper.GetInt64("audio.max_bytes"),
		CloudinaryURL:            configViper.GetString("cloudinary.url"),
		CloudinaryFolder:         configViper.GetString("cloudinary.folder"),
		WriterQueueSize:          configViper.GetInt("writer.queue_size"),
		HeartbeatInterval:        time.Duration(configViper.GetInt("realtime.heartbeat_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.TAuthSigningKey) == "" {
		return fmt.Errorf("tauth.signing_secret is required")
	}
	if strings.TrimSpace(c.TAuthCookieName) == "" {
		return fmt.Errorf("tauth.cookie_name is required")
	}
	switch c.StoreDriver {
	case StoreSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case StoreFirestore:
		if strings.TrimSpace(c.FirestoreProjectID) == "" {
			return fmt.Errorf("firestore.project_id is required for store.driver=firestore")
		}
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required for user identities")
		}
	default:
		return fmt.Errorf("store.driver must be %s or %s, got %q", StoreSQLite, StoreFirestore, c.StoreDriver)
	}
	switch c.AIProvider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("ai.provider must be %s or %s, got %q", ProviderGemini, ProviderOpenAI, c.AIProvider)
	}
	if strings.TrimSpace(c.AIAPIKey) == "" {
		return fmt.Errorf("ai.api_key is required")
	}
	if c.AICallTimeout <= 0 {
		return fmt.Errorf("ai.call_timeout_seconds must be positive")
	}
	switch c.AudioStorage {
	case AudioStorageLocal:
		if strings.TrimSpace(c.AudioDir) == "" {
			return fmt.Errorf("audio.dir is required for audio.storage=local")
		}
		if !strings.HasPrefix(c.AudioPublicBaseURL, "/") {
			return fmt.Errorf("audio.public_base_url must be an absolute path")
		}
	case AudioStorageCloudinary:
		if strings.TrimSpace(c.CloudinaryURL) == "" {
			return fmt.Errorf("cloudinary.url is required for audio.storage=cloudinary")
		}
	default:
		return fmt.Errorf("audio.storage must be %s or %s, got %q", AudioStorageLocal, AudioStorageCloudinary, c.AudioStorage)
	}
	if c.AudioMaxBytes <= 0 {
		return fmt.Errorf("audio.max_bytes must be positive")
	}
	if c.WriterQueueSize <= 0 {
		return fmt.Errorf("writer.queue_size must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("realtime.heartbeat_seconds must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	var values []string
	for _, value := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
