package tts

import (
	"testing"
	"time"
)

func TestEstimateDuration(t *testing.T) {
	tests := []struct {
		name  string
		words int
		wpm   float64
		rate  float64
		want  time.Duration
	}{
		{"one minute", 150, 150, 1, time.Minute},
		{"slower rate", 120, 150, 0.8, time.Minute},
		{"defaults", 75, 0, 0, 30 * time.Second},
		{"empty", 0, 150, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := ""
			for i := 0; i < tt.words; i++ {
				text += "neno "
			}
			got := EstimateDuration(text, tt.wpm, tt.rate)
			if diff := got - tt.want; diff < -time.Millisecond || diff > time.Millisecond {
				t.Errorf("EstimateDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPlayClock(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(s int) time.Time { return base.Add(time.Duration(s) * time.Second) }

	var c playClock
	if got := c.read(at(5)); got != 0 {
		t.Errorf("idle clock read %v", got)
	}

	c.start(at(0))
	c.start(at(3)) // already running
	if got := c.read(at(10)); got != 10*time.Second {
		t.Errorf("read = %v, want 10s", got)
	}

	c.pause(at(10))
	if got := c.read(at(100)); got != 10*time.Second {
		t.Errorf("paused read = %v, want 10s", got)
	}

	c.start(at(100))
	if got := c.read(at(105)); got != 15*time.Second {
		t.Errorf("resumed read = %v, want 15s", got)
	}

	c.reset()
	if got := c.read(at(200)); got != 0 {
		t.Errorf("reset read = %v, want 0", got)
	}
}

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		elapsed, total time.Duration
		want           float64
	}{
		{0, time.Minute, 0},
		{30 * time.Second, time.Minute, 50},
		{time.Minute, time.Minute, 100},
		{time.Hour, time.Minute, 100},
		{time.Second, 0, 0},
		{-time.Second, time.Minute, 0},
	}

	for _, tt := range tests {
		if got := progressPercent(tt.elapsed, tt.total); got != tt.want {
			t.Errorf("progressPercent(%v, %v) = %v, want %v", tt.elapsed, tt.total, got, tt.want)
		}
	}
}
