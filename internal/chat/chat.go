package chat

import (
	"context"
	"io"
	"time"
)

const (
	VoicePostMessage = "Voice Message"
	VoicePostType    = "custom_voice"
)

// VoicePost is a message referencing an uploaded voice attachment.
type VoicePost struct {
	ChannelID      string
	RootID         string
	FileID         string
	DurationMillis int64
}

type VoiceConfig struct {
	MaxDuration time.Duration
	BitRate     int
}

// Client covers the remote endpoints a voice message needs.
type Client interface {
	UploadFile(ctx context.Context, channelID, filename string, data []byte) (string, error)
	CreatePost(ctx context.Context, post VoicePost) (string, error)
	VoiceConfig(ctx context.Context) (VoiceConfig, error)
	OpenRecording(ctx context.Context, postID string) (io.ReadCloser, error)
	// PostDuration returns the duration prop of a voice post in milliseconds.
	PostDuration(ctx context.Context, postID string) (int64, error)
}
