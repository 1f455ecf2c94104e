package playback

import "testing"

func TestFormatClock(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00"},
		{5, "0:05"},
		{59.6, "1:00"},
		{65, "1:05"},
		{125, "2:05"},
		{600, "10:00"},
		{99*60 + 59, "99:59"},
		{200 * 60, "99:00"},
		{-3, "0:00"},
	}
	for _, tt := range tests {
		if got := FormatClock(tt.seconds); got != tt.want {
			t.Errorf("FormatClock(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestProgressPercent(t *testing.T) {
	if got := progressPercent(65, 125); got != 52 {
		t.Errorf("progressPercent(65, 125) = %d, want 52", got)
	}
	if got := progressPercent(130, 125); got != 100 {
		t.Errorf("progress must clamp to 100, got %d", got)
	}
	if got := progressPercent(-1, 125); got != 0 {
		t.Errorf("progress must clamp to 0, got %d", got)
	}
	if got := progressPercent(10, 0); got != 0 {
		t.Errorf("zero duration must yield 0, got %d", got)
	}
}
