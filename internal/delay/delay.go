// Package delay computes human-looking waits before replies are sent.
package delay

import (
	"math/rand/v2"
	"time"
	"unicode/utf8"

	"github.com/nextlevelbuilder/deskbot/internal/config"
)

// Long inbound texts add one second of reading time per this many characters.
const readingCharsPerSecond = 200

// Rand is the random source. *rand.Rand and the package-level source satisfy it.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Simulator derives delays from the configured rates. It keeps no state
// between calls.
type Simulator struct {
	cfg config.DelayConfig
	rnd Rand
}

// New creates a simulator. A nil r uses math/rand/v2.
func New(cfg config.DelayConfig, r Rand) *Simulator {
	if r == nil {
		r = globalRand{}
	}
	return &Simulator{cfg: cfg, rnd: r}
}

// uniformSec draws whole seconds uniformly from [r.Min, r.Max].
func (s *Simulator) uniformSec(r config.Range) time.Duration {
	n := r.Min
	if span := r.Max - r.Min; span > 0 {
		n += s.rnd.IntN(span + 1)
	}
	return time.Duration(n) * time.Second
}

// Reading models how long a person takes to read the inbound text.
func (s *Simulator) Reading(inbound string) time.Duration {
	d := s.uniformSec(s.cfg.Reading)
	if n := utf8.RuneCountInString(inbound); n > readingCharsPerSecond {
		d += time.Duration(n/readingCharsPerSecond) * time.Second
	}
	return d
}

// Typing models how long a person takes to type the outbound text. Empty
// text takes no time.
func (s *Simulator) Typing(outbound string) time.Duration {
	n := utf8.RuneCountInString(outbound)
	if n == 0 {
		return 0
	}

	var d time.Duration
	if s.cfg.TypingCPM > 0 {
		d = time.Duration(n) * time.Minute / time.Duration(s.cfg.TypingCPM)
	}
	d = max(d, time.Duration(s.cfg.MinTypingSec)*time.Second)

	if extraMs := s.cfg.MaxExtraSec * 1000; extraMs > 0 {
		d += time.Duration(s.rnd.IntN(extraMs+1)) * time.Millisecond
	}
	return d
}

// Human is the total wait before an AI reply: reading plus typing, truncated
// to whole milliseconds.
func (s *Simulator) Human(inbound, outbound string) time.Duration {
	return (s.Reading(inbound) + s.Typing(outbound)).Truncate(time.Millisecond)
}

// AutoReply is the wait before the out-of-hours notice.
func (s *Simulator) AutoReply() time.Duration {
	return s.uniformSec(s.cfg.AutoReply)
}
