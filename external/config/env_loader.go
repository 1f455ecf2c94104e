package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/voicenote/internal/config"
	"github.com/joho/godotenv"
)

type envConfig struct {
	Env                 string        `env:"ENV" envDefault:"production"`
	MattermostURL       string        `env:"MATTERMOST_URL,required"`
	MattermostToken     string        `env:"MATTERMOST_TOKEN,required"`
	MattermostPluginID  string        `env:"MATTERMOST_PLUGIN_ID" envDefault:"com.mattermost.voice"`
	VoiceMaxDurationSec int           `env:"VOICE_MAX_DURATION_SEC" envDefault:"300"`
	VoiceBitrateKbps    int           `env:"VOICE_BITRATE_KBPS" envDefault:"64"`
	EncoderFFmpegPath   string        `env:"ENCODER_FFMPEG_PATH" envDefault:"ffmpeg"`
	EncoderInputFormat  string        `env:"ENCODER_INPUT_FORMAT" envDefault:"pulse"`
	EncoderInputDevice  string        `env:"ENCODER_INPUT_DEVICE" envDefault:"default"`
	DraftStoreDriver    string        `env:"DRAFT_STORE_DRIVER" envDefault:"sqlite"`
	DraftSQLitePath     string        `env:"DRAFT_SQLITE_PATH" envDefault:"voicenote-drafts.db"`
	DatabaseURL         string        `env:"DATABASE_URL"`
	RedisAddr           string        `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword       string        `env:"REDIS_PASSWORD"`
	RedisDB             int           `env:"REDIS_DB" envDefault:"0"`
	DraftTTLHours       int           `env:"DRAFT_TTL_HOURS" envDefault:"168"`
	S3Bucket            string        `env:"S3_BUCKET"`
	S3Region            string        `env:"S3_REGION" envDefault:"us-east-1"`
	S3Prefix            string        `env:"S3_PREFIX" envDefault:"voicenote/drafts"`
	S3Endpoint          string        `env:"S3_ENDPOINT"`
	AWSAccessKeyID      string        `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey  string        `env:"AWS_SECRET_ACCESS_KEY"`
	UploadMaxAttempts   int           `env:"UPLOAD_MAX_ATTEMPTS" envDefault:"30"`
	UploadRetryDelay    time.Duration `env:"UPLOAD_RETRY_DELAY" envDefault:"5s"`
	ResumeSchedule      string        `env:"RESUME_SCHEDULE" envDefault:"@every 1m"`
	ResumeMaxClaims     int           `env:"RESUME_MAX_CLAIMS" envDefault:"10"`
	ResumeHoldOff       time.Duration `env:"RESUME_HOLD_OFF" envDefault:"1m"`
	HTTPAddr            string        `env:"HTTP_ADDR" envDefault:"127.0.0.1:8765"`
	DeliveryWebhookURL  string        `env:"DELIVERY_WEBHOOK_URL"`
}

// Load reads the environment. Values in a .env file in the working
// directory fill variables that are not already set.
func Load() (*internalconfig.Config, error) {
	_ = godotenv.Load()

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                 raw.Env,
		MattermostURL:       raw.MattermostURL,
		MattermostToken:     raw.MattermostToken,
		MattermostPluginID:  raw.MattermostPluginID,
		VoiceMaxDurationSec: raw.VoiceMaxDurationSec,
		VoiceBitrateKbps:    raw.VoiceBitrateKbps,
		EncoderFFmpegPath:   raw.EncoderFFmpegPath,
		EncoderInputFormat:  raw.EncoderInputFormat,
		EncoderInputDevice:  raw.EncoderInputDevice,
		DraftStoreDriver:    raw.DraftStoreDriver,
		DraftSQLitePath:     raw.DraftSQLitePath,
		DatabaseURL:         raw.DatabaseURL,
		RedisAddr:           raw.RedisAddr,
		RedisPassword:       raw.RedisPassword,
		RedisDB:             raw.RedisDB,
		DraftTTLHours:       raw.DraftTTLHours,
		S3Bucket:            raw.S3Bucket,
		S3Region:            raw.S3Region,
		S3Prefix:            raw.S3Prefix,
		S3Endpoint:          raw.S3Endpoint,
		AWSAccessKeyID:      raw.AWSAccessKeyID,
		AWSSecretAccessKey:  raw.AWSSecretAccessKey,
		UploadMaxAttempts:   raw.UploadMaxAttempts,
		UploadRetryDelay:    raw.UploadRetryDelay,
		ResumeSchedule:      raw.ResumeSchedule,
		ResumeMaxClaims:     raw.ResumeMaxClaims,
		ResumeHoldOff:       raw.ResumeHoldOff,
		HTTPAddr:            raw.HTTPAddr,
		DeliveryWebhookURL:  raw.DeliveryWebhookURL,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
