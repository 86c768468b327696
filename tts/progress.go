package tts

import (
	"time"

	"github.com/civichero/civichero/tts/sentence"
)

// DefaultWordsPerMinute is the speaking rate assumed at Rate 1.0.
const DefaultWordsPerMinute = 150

// EstimateDuration guesses how long text takes to speak at the given rate.
// Engines do not report their position, so this is only an estimate and it
// drifts from the real audio, more so for long multi-chunk sessions since it
// is computed once per session.
func EstimateDuration(text string, wordsPerMinute, rate float64) time.Duration {
	if wordsPerMinute <= 0 {
		wordsPerMinute = DefaultWordsPerMinute
	}
	if rate <= 0 {
		rate = 1
	}
	words := sentence.WordCount(text)
	minutes := float64(words) / (wordsPerMinute * rate)
	return time.Duration(minutes * float64(time.Minute))
}

// playClock accumulates wall-clock time spent playing. Paused time is not
// counted.
type playClock struct {
	running bool
	started time.Time
	elapsed time.Duration
}

func (c *playClock) start(now time.Time) {
	if c.running {
		return
	}
	c.running = true
	c.started = now
}

func (c *playClock) pause(now time.Time) {
	if !c.running {
		return
	}
	c.elapsed += now.Sub(c.started)
	c.running = false
}

func (c *playClock) reset() {
	*c = playClock{}
}

func (c *playClock) read(now time.Time) time.Duration {
	if !c.running {
		return c.elapsed
	}
	if d := now.Sub(c.started); d > 0 {
		return c.elapsed + d
	}
	return c.elapsed
}

// progressPercent maps elapsed time onto [0, 100].
func progressPercent(elapsed, total time.Duration) float64 {
	if total <= 0 || elapsed <= 0 {
		return 0
	}
	p := float64(elapsed) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}
