package voice

import (
	"fmt"
	"strings"
	"time"
)

const (
	ContentTypeMP3 = "audio/mpeg"

	draftKeyPrefix = "audioFile_"
)

// Artifact is the immutable result of a finished recording.
type Artifact struct {
	Payload     []byte
	Duration    time.Duration
	StartedAt   time.Time
	ContentType string
}

func (a Artifact) IsEmpty() bool {
	return len(a.Payload) == 0
}

func (a Artifact) DurationMillis() int64 {
	return a.Duration.Milliseconds()
}

func (a Artifact) EndedAt() time.Time {
	return a.StartedAt.Add(a.Duration)
}

// Filename is "<end unix millis><ext>", so staging the same artifact twice yields the same name.
func (a Artifact) Filename() string {
	return fmt.Sprintf("%d%s", a.EndedAt().UnixMilli(), extForContentType(a.ContentType))
}

func (a Artifact) DraftKey() string {
	return DraftKeyForFilename(a.Filename())
}

func DraftKeyForFilename(filename string) string {
	return draftKeyPrefix + filename
}

// Target is where a voice message is delivered. RootID is empty for a top-level post.
type Target struct {
	ChannelID string
	RootID    string
}

type Delivery struct {
	PostID   string
	FileID   string
	Attempts int
	DraftKey string
}

func extForContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if ct == "" {
		return ".mp3"
	}
	base := strings.TrimSpace(strings.Split(ct, ";")[0])
	switch base {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/webm":
		return ".webm"
	case "audio/ogg", "application/ogg":
		return ".ogg"
	case "audio/mp4":
		return ".m4a"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	default:
		return ".bin"
	}
}

// ContentTypeForFilename maps a staged filename back to its content type.
func ContentTypeForFilename(fn string) string {
	fn = strings.ToLower(fn)
	switch {
	case strings.HasSuffix(fn, ".mp3"):
		return ContentTypeMP3
	case strings.HasSuffix(fn, ".webm"):
		return "audio/webm"
	case strings.HasSuffix(fn, ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(fn, ".m4a"):
		return "audio/mp4"
	case strings.HasSuffix(fn, ".wav"):
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
