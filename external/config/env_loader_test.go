package config

import (
	"testing"
	"time"

	internalconfig "github.com/foxseedlab/voicenote/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MATTERMOST_URL", "https://chat.example.com")
	t.Setenv("MATTERMOST_TOKEN", "token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MattermostPluginID != "com.mattermost.voice" {
		t.Errorf("plugin id = %q", cfg.MattermostPluginID)
	}
	if cfg.UploadMaxAttempts != 30 || cfg.UploadRetryDelay != 5*time.Second {
		t.Errorf("upload settings = %d / %s", cfg.UploadMaxAttempts, cfg.UploadRetryDelay)
	}
	if cfg.ResumeMaxClaims != 10 || cfg.ResumeHoldOff != time.Minute {
		t.Errorf("resume bounds = %d / %s", cfg.ResumeMaxClaims, cfg.ResumeHoldOff)
	}
	if cfg.DraftStoreDriver != internalconfig.DraftDriverSQLite {
		t.Errorf("draft driver = %q", cfg.DraftStoreDriver)
	}
	if cfg.MaxDuration() != 5*time.Minute || cfg.BitRate() != 64000 {
		t.Errorf("voice fallback = %s / %d", cfg.MaxDuration(), cfg.BitRate())
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MATTERMOST_URL", "https://chat.example.com")
	t.Setenv("MATTERMOST_TOKEN", "token")
	t.Setenv("DRAFT_STORE_DRIVER", "s3")
	t.Setenv("S3_BUCKET", "voice-drafts")
	t.Setenv("UPLOAD_RETRY_DELAY", "250ms")
	t.Setenv("DELIVERY_WEBHOOK_URL", "https://hooks.example.com/voice")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DraftStoreDriver != internalconfig.DraftDriverS3 || cfg.S3Bucket != "voice-drafts" || cfg.S3Region != "us-east-1" {
		t.Errorf("s3 settings = %q %q %q", cfg.DraftStoreDriver, cfg.S3Bucket, cfg.S3Region)
	}
	if cfg.UploadRetryDelay != 250*time.Millisecond {
		t.Errorf("retry delay = %s", cfg.UploadRetryDelay)
	}
	if cfg.DeliveryWebhookURL != "https://hooks.example.com/voice" {
		t.Errorf("webhook url = %q", cfg.DeliveryWebhookURL)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("MATTERMOST_URL", "")
	t.Setenv("MATTERMOST_TOKEN", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when required variables are missing")
	}
}
