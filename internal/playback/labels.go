package playback

import (
	"math"
	"strconv"
)

const maxLabelField = 99

// FormatClock renders seconds as m:ss. Both fields are capped at 99.
func FormatClock(seconds float64) string {
	secs := int(math.Round(seconds))
	if secs < 0 {
		secs = 0
	}
	return padNoZero(secs/60) + ":" + pad2(secs%60)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(min(n, maxLabelField))
}

func padNoZero(n int) string {
	return strconv.Itoa(min(n, maxLabelField))
}

func progressPercent(current, duration float64) int {
	if duration <= 0 || math.IsNaN(current) {
		return 0
	}
	p := int(math.Round(current / duration * 100))
	return max(0, min(p, 100))
}
