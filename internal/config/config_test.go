package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.SampleRate != 48000 {
		t.Fatalf("unexpected default sample rate: %d", cfg.SampleRate)
	}
	if cfg.MaxChannels != 6 {
		t.Fatalf("unexpected default max channels: %d", cfg.MaxChannels)
	}
	if cfg.CrossfadeWindowSeconds != 3.0 {
		t.Fatalf("unexpected default crossfade window: %v", cfg.CrossfadeWindowSeconds)
	}
}

func TestLoadReadsSonoriumEnvKeys(t *testing.T) {
	t.Setenv("SONORIUM_SAMPLE_RATE", "44100")
	t.Setenv("SONORIUM_MAX_CHANNELS", "4")
	t.Setenv("SONORIUM_JWT_SIGNING_KEY", "supersecret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.SampleRate != 44100 {
		t.Fatalf("unexpected sample rate: %d", cfg.SampleRate)
	}
	if cfg.MaxChannels != 4 {
		t.Fatalf("unexpected max channels: %d", cfg.MaxChannels)
	}
	if cfg.JWTSigningKey != "supersecret" {
		t.Fatalf("unexpected jwt signing key: %q", cfg.JWTSigningKey)
	}
}

func TestLoadRejectsMaxChannelsOutOfRange(t *testing.T) {
	t.Setenv("SONORIUM_MAX_CHANNELS", "11")
	if _, err := Load(); err == nil {
		t.Fatal("expected load to fail for out-of-range max channels")
	}
}

func TestLoadProductionRequiresJWTSigningKey(t *testing.T) {
	t.Setenv("SONORIUM_ENV", "production")
	t.Setenv("SONORIUM_JWT_SIGNING_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail without a JWT signing key")
	}

	t.Setenv("SONORIUM_JWT_SIGNING_KEY", "supersecret")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config load with signing key to succeed: %v", err)
	}
}
