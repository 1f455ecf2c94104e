package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DraftDriverSQLite   = "sqlite"
	DraftDriverPostgres = "postgres"
	DraftDriverRedis    = "redis"
	DraftDriverMemory   = "memory"
	DraftDriverS3       = "s3"

	maxUploadAttemptsLimit = 100
)

type Config struct {
	Env                 string
	MattermostURL       string
	MattermostToken     string
	MattermostPluginID  string
	VoiceMaxDurationSec int
	VoiceBitrateKbps    int
	EncoderFFmpegPath   string
	EncoderInputFormat  string
	EncoderInputDevice  string
	DraftStoreDriver    string
	DraftSQLitePath     string
	DatabaseURL         string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	DraftTTLHours       int
	S3Bucket            string
	S3Region            string
	S3Prefix            string
	S3Endpoint          string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	UploadMaxAttempts   int
	UploadRetryDelay    time.Duration
	ResumeSchedule      string
	ResumeMaxClaims     int
	ResumeHoldOff       time.Duration
	HTTPAddr            string
	DeliveryWebhookURL  string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	u, err := url.Parse(c.MattermostURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("MATTERMOST_URL must be an absolute url, got %q", c.MattermostURL)
	}
	if c.VoiceMaxDurationSec <= 0 {
		return fmt.Errorf("VOICE_MAX_DURATION_SEC must be positive, got %d", c.VoiceMaxDurationSec)
	}
	if c.VoiceBitrateKbps <= 0 {
		return fmt.Errorf("VOICE_BITRATE_KBPS must be positive, got %d", c.VoiceBitrateKbps)
	}
	if c.UploadMaxAttempts < 1 || c.UploadMaxAttempts > maxUploadAttemptsLimit {
		return fmt.Errorf("UPLOAD_MAX_ATTEMPTS must be between 1 and %d, got %d", maxUploadAttemptsLimit, c.UploadMaxAttempts)
	}
	if c.UploadRetryDelay < 0 {
		return fmt.Errorf("UPLOAD_RETRY_DELAY must not be negative, got %s", c.UploadRetryDelay)
	}
	if c.ResumeMaxClaims < 1 {
		return fmt.Errorf("RESUME_MAX_CLAIMS must be at least 1, got %d", c.ResumeMaxClaims)
	}
	if c.ResumeHoldOff < 0 {
		return fmt.Errorf("RESUME_HOLD_OFF must not be negative, got %s", c.ResumeHoldOff)
	}
	if c.DeliveryWebhookURL != "" {
		if u, err := url.Parse(c.DeliveryWebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("DELIVERY_WEBHOOK_URL must be an absolute url, got %q", c.DeliveryWebhookURL)
		}
	}
	switch c.DraftStoreDriver {
	case DraftDriverSQLite:
		if strings.TrimSpace(c.DraftSQLitePath) == "" {
			return fmt.Errorf("DRAFT_SQLITE_PATH is required when DRAFT_STORE_DRIVER=sqlite")
		}
	case DraftDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DRAFT_STORE_DRIVER=postgres")
		}
	case DraftDriverRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when DRAFT_STORE_DRIVER=redis")
		}
	case DraftDriverS3:
		if c.S3Bucket == "" || c.S3Region == "" {
			return fmt.Errorf("S3_BUCKET and S3_REGION are required when DRAFT_STORE_DRIVER=s3")
		}
	case DraftDriverMemory:
	default:
		return fmt.Errorf("DRAFT_STORE_DRIVER is invalid: %q", c.DraftStoreDriver)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "MATTERMOST_URL", value: c.MattermostURL},
		{name: "MATTERMOST_TOKEN", value: c.MattermostToken},
		{name: "MATTERMOST_PLUGIN_ID", value: c.MattermostPluginID},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// MaxDuration is the local fallback used when the plugin config endpoint is unreachable.
func (c *Config) MaxDuration() time.Duration {
	return time.Duration(c.VoiceMaxDurationSec) * time.Second
}

func (c *Config) BitRate() int {
	return c.VoiceBitrateKbps * 1000
}

func (c *Config) DraftTTL() time.Duration {
	if c.DraftTTLHours <= 0 {
		return 0
	}
	return time.Duration(c.DraftTTLHours) * time.Hour
}
