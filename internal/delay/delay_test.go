package delay

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nextlevelbuilder/deskbot/internal/config"
)

// fixedRand always returns the same fraction of n.
type fixedRand struct{ pick func(n int) int }

func (f fixedRand) IntN(n int) int { return f.pick(n) }

var (
	lowest  = fixedRand{pick: func(int) int { return 0 }}
	highest = fixedRand{pick: func(n int) int { return n - 1 }}
)

func defaults() config.DelayConfig {
	return config.Default().Delays
}

func TestReading(t *testing.T) {
	s := New(defaults(), lowest)

	tests := []struct {
		name  string
		runes int
		want  time.Duration
	}{
		{"empty", 0, 2 * time.Second},
		{"exactly 200 adds nothing", 200, 2 * time.Second},
		{"201 adds one second", 201, 3 * time.Second},
		{"399 still one second", 399, 3 * time.Second},
		{"400 adds two seconds", 400, 4 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Reading(strings.Repeat("a", tt.runes)))
		})
	}

	assert.Equal(t, 5*time.Second, New(defaults(), highest).Reading("hola"))
}

func TestReading_CountsRunesNotBytes(t *testing.T) {
	s := New(defaults(), lowest)
	// 150 two-byte runes are 300 bytes but only 150 characters.
	assert.Equal(t, 2*time.Second, s.Reading(strings.Repeat("ñ", 150)))
}

func TestReading_ExtraPer200Chars(t *testing.T) {
	s := New(defaults(), lowest)
	for n := 201; n < 2000; n += 200 {
		a := s.Reading(strings.Repeat("x", n))
		b := s.Reading(strings.Repeat("x", n+200))
		assert.Equal(t, time.Second, b-a, "n=%d", n)
	}
}

func TestTyping(t *testing.T) {
	s := New(defaults(), lowest)

	assert.Zero(t, s.Typing(""))
	// 10 chars at 400 cpm is 1.5s, floored to 4s.
	assert.Equal(t, 4*time.Second, s.Typing(strings.Repeat("a", 10)))
	// 100 chars at 400 cpm is 15s.
	assert.Equal(t, 15*time.Second, s.Typing(strings.Repeat("a", 100)))

	withExtra := New(defaults(), highest)
	assert.Equal(t, 4*time.Second+6*time.Second, withExtra.Typing("hola"))
}

func TestTyping_Monotonic(t *testing.T) {
	s := New(defaults(), lowest)
	prev := time.Duration(0)
	for n := 1; n < 1000; n += 7 {
		d := s.Typing(strings.Repeat("a", n))
		assert.GreaterOrEqual(t, d, prev, "n=%d", n)
		prev = d
	}
}

func TestHuman(t *testing.T) {
	s := New(defaults(), lowest)
	got := s.Human(strings.Repeat("a", 250), strings.Repeat("b", 100))
	assert.Equal(t, 3*time.Second+15*time.Second, got)
	assert.Equal(t, got, got.Truncate(time.Millisecond))

	cfg := defaults()
	cfg.TypingCPM = 7
	odd := New(cfg, lowest).Human("", strings.Repeat("b", 100))
	assert.Equal(t, odd, odd.Truncate(time.Millisecond), "whole milliseconds")
}

func TestAutoReply(t *testing.T) {
	assert.Equal(t, 25*time.Second, New(defaults(), lowest).AutoReply())
	assert.Equal(t, 35*time.Second, New(defaults(), highest).AutoReply())

	cfg := defaults()
	cfg.AutoReply = config.Range{Min: 3, Max: 3}
	assert.Equal(t, 3*time.Second, New(cfg, nil).AutoReply())
}

func TestBoundsWithDefaultSource(t *testing.T) {
	s := New(defaults(), nil)
	for i := 0; i < 100; i++ {
		d := s.AutoReply()
		assert.GreaterOrEqual(t, d, 25*time.Second)
		assert.LessOrEqual(t, d, 35*time.Second)
	}
}
