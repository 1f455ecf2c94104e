package playback

type EventType string

const (
	EventPlay           EventType = "play"
	EventPlaying        EventType = "playing"
	EventPause          EventType = "pause"
	EventError          EventType = "error"
	EventEnded          EventType = "ended"
	EventTimeUpdate     EventType = "timeupdate"
	EventDurationChange EventType = "durationchange"
)

type Event struct {
	Type EventType
	// CurrentTime is the transport position in seconds when the event fired.
	CurrentTime float64
}

// Transport is one audio element's playback controls. Times are in seconds.
type Transport interface {
	Play() error
	Pause()
	CurrentTime() float64
	SetCurrentTime(seconds float64)
	// Duration is zero until the transport knows the length of the media.
	Duration() float64
	SetPlaybackRate(rate float64)
	Subscribe(fn func(Event)) (unsubscribe func())
}
