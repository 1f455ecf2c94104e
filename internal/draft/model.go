package draft

import (
	"time"

	"github.com/foxseedlab/voicenote/internal/voice"
)

// Draft is a staged recording that has not been confirmed as posted.
type Draft struct {
	Key            string
	Filename       string
	ChannelID      string
	RootID         string
	DurationMillis int64
	StartedAt      time.Time
	ContentType    string
	Payload        []byte
	CreatedAt      time.Time
}

func New(target voice.Target, a voice.Artifact, now time.Time) Draft {
	return Draft{
		Key:            a.DraftKey(),
		Filename:       a.Filename(),
		ChannelID:      target.ChannelID,
		RootID:         target.RootID,
		DurationMillis: a.DurationMillis(),
		StartedAt:      a.StartedAt,
		ContentType:    a.ContentType,
		Payload:        a.Payload,
		CreatedAt:      now,
	}
}

func (d Draft) Target() voice.Target {
	return voice.Target{ChannelID: d.ChannelID, RootID: d.RootID}
}

func (d Draft) Artifact() voice.Artifact {
	ct := d.ContentType
	if ct == "" {
		ct = voice.ContentTypeForFilename(d.Filename)
	}
	return voice.Artifact{
		Payload:     d.Payload,
		Duration:    time.Duration(d.DurationMillis) * time.Millisecond,
		StartedAt:   d.StartedAt,
		ContentType: ct,
	}
}
