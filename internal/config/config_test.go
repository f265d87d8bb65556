package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("VOICENOTES_TAUTH_SIGNING_SECRET", "secret")
	t.Setenv("VOICENOTES_AI_API_KEY", "key")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress || cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
	if cfg.StoreDriver != StoreSQLite || cfg.AIProvider != ProviderGemini || cfg.AudioStorage != AudioStorageLocal {
		t.Fatalf("unexpected backend defaults: %#v", cfg)
	}
	if cfg.AICallTimeout != 60*time.Second || cfg.HeartbeatInterval != 25*time.Second {
		t.Fatalf("unexpected durations: %v %v", cfg.AICallTimeout, cfg.HeartbeatInterval)
	}
	if cfg.AudioMaxBytes != 25<<20 || cfg.WriterQueueSize != 256 {
		t.Fatalf("unexpected limits: %d %d", cfg.AudioMaxBytes, cfg.WriterQueueSize)
	}
	if cfg.TAuthIssuer != "tauth" || cfg.TAuthCookieName != "app_session" {
		t.Fatalf("unexpected session defaults: %#v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("expected no origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	t.Setenv("VOICENOTES_TAUTH_SIGNING_SECRET", "secret")
	t.Setenv("VOICENOTES_AI_API_KEY", "key")
	t.Setenv("VOICENOTES_AI_PROVIDER", "OpenAI")
	t.Setenv("VOICENOTES_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("VOICENOTES_STORE_DRIVER", "firestore")
	t.Setenv("VOICENOTES_FIRESTORE_PROJECT_ID", "demo-project")
	t.Setenv("VOICENOTES_AI_CALL_TIMEOUT_SECONDS", "5")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.AIProvider != ProviderOpenAI || cfg.StoreDriver != StoreFirestore {
		t.Fatalf("unexpected selectors: %#v", cfg)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.AICallTimeout != 5*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.AICallTimeout)
	}
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "missing-secret", env: map[string]string{"VOICENOTES_AI_API_KEY": "key"}, wantErr: "tauth.signing_secret"},
		{name: "missing-api-key", env: map[string]string{"VOICENOTES_TAUTH_SIGNING_SECRET": "s"}, wantErr: "ai.api_key"},
		{name: "unknown-provider", env: map[string]string{"VOICENOTES_TAUTH_SIGNING_SECRET": "s", "VOICENOTES_AI_API_KEY": "k", "VOICENOTES_AI_PROVIDER": "llama"}, wantErr: "ai.provider"},
		{name: "unknown-store", env: map[string]string{"VOICENOTES_TAUTH_SIGNING_SECRET": "s", "VOICENOTES_AI_API_KEY": "k", "VOICENOTES_STORE_DRIVER": "mongo"}, wantErr: "store.driver"},
		{name: "firestore-without-project", env: map[string]string{"VOICENOTES_TAUTH_SIGNING_SECRET": "s", "VOICENOTES_AI_API_KEY": "k", "VOICENOTES_STORE_DRIVER": "firestore"}, wantErr: "firestore.project_id"},
		{name: "cloudinary-without-url", env: map[string]string{"VOICENOTES_TAUTH_SIGNING_SECRET": "s", "VOICENOTES_AI_API_KEY": "k", "VOICENOTES_AUDIO_STORAGE": "cloudinary"}, wantErr: "cloudinary.url"},
		{name: "relative-audio-url", env: map[string]string{"VOICENOTES_TAUTH_SIGNING_SECRET": "s", "VOICENOTES_AI_API_KEY": "k", "VOICENOTES_AUDIO_PUBLIC_BASE_URL": "audio"}, wantErr: "audio.public_base_url"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			for key, value := range testCase.env {
				t.Setenv(key, value)
			}
			_, err := Load(NewViper())
			if err == nil || !strings.Contains(err.Error(), testCase.wantErr) {
				t.Fatalf("expected error mentioning %s, got %v", testCase.wantErr, err)
			}
		})
	}
}
