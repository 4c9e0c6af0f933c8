package config

import (
	"errors"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/nextlevelbuilder/deskbot/internal/sessions"
)

// Minimum lengths for operator-supplied texts, in characters.
const (
	MinSystemPromptLen      = 10
	MinOutOfHoursMessageLen = 20
)

// ErrInvalidRange is wrapped by every validation failure on numeric ranges.
var ErrInvalidRange = errors.New("invalid range")

// ValidationError describes a rejected policy change. No state is mutated
// when one is returned.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func validateHours(start, end int) error {
	if start < 0 || end > 24 || start >= end {
		return &ValidationError{
			Field:  "hours",
			Reason: fmt.Sprintf("need 0 <= start < end <= 24, got %d-%d", start, end),
			Err:    ErrInvalidRange,
		}
	}
	return nil
}

func validateDays(days []int) error {
	if len(days) == 0 {
		return &ValidationError{Field: "days", Reason: "at least one business day is required", Err: ErrInvalidRange}
	}
	for _, d := range days {
		if d < 0 || d > 6 {
			return &ValidationError{
				Field:  "days",
				Reason: fmt.Sprintf("day %d outside 0..6", d),
				Err:    ErrInvalidRange,
			}
		}
	}
	return nil
}

func validateTemperature(t float64) error {
	if !(t >= 0 && t <= 1) {
		return &ValidationError{
			Field:  "temperature",
			Reason: fmt.Sprintf("need 0 <= t <= 1, got %g", t),
			Err:    ErrInvalidRange,
		}
	}
	return nil
}

// Enabled reports whether the bot answers regular customers.
func (c *Config) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.BotEnabled
}

// SetEnabled flips global processing on or off.
func (c *Config) SetEnabled(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BotEnabled = on
}

// Hours returns the configured [start, end) business hours.
func (c *Config) Hours() (start, end int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Schedule.Start, c.Schedule.End
}

// SetHours replaces the business hours after validating 0 <= start < end <= 24.
func (c *Config) SetHours(start, end int) error {
	if err := validateHours(start, end); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Schedule.Start, c.Schedule.End = start, end
	return nil
}

// BusinessDays returns a copy of the business weekdays (0=Sunday).
func (c *Config) BusinessDays() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.Schedule.Days)
}

// SetBusinessDays replaces the business weekdays; duplicates are collapsed.
func (c *Config) SetBusinessDays(days []int) error {
	if err := validateDays(days); err != nil {
		return err
	}
	sorted := slices.Clone(days)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Schedule.Days = sorted
	return nil
}

// AISettings returns a snapshot of the model parameters.
func (c *Config) AISettings() AIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AI
}

// SystemPrompt returns the prompt new conversations are seeded with.
func (c *Config) SystemPrompt() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AI.SystemPrompt
}

// SetTemperature validates 0 <= t <= 1 and stores it.
func (c *Config) SetTemperature(t float64) error {
	if err := validateTemperature(t); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AI.Temperature = t
	return nil
}

// SetSystemPrompt replaces the system prompt for conversations created from now on.
func (c *Config) SetSystemPrompt(prompt string) error {
	if n := utf8.RuneCountInString(prompt); n < MinSystemPromptLen {
		return &ValidationError{
			Field:  "system_prompt",
			Reason: fmt.Sprintf("must be at least %d characters, got %d", MinSystemPromptLen, n),
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AI.SystemPrompt = prompt
	return nil
}

// OutOfHoursMessage returns the deflection notice.
func (c *Config) OutOfHoursMessage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Schedule.OutOfHoursMessage
}

// SetOutOfHoursMessage replaces the deflection notice.
func (c *Config) SetOutOfHoursMessage(msg string) error {
	if n := utf8.RuneCountInString(msg); n < MinOutOfHoursMessageLen {
		return &ValidationError{
			Field:  "out_of_hours_message",
			Reason: fmt.Sprintf("must be at least %d characters, got %d", MinOutOfHoursMessageLen, n),
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Schedule.OutOfHoursMessage = msg
	return nil
}

// DelaySettings returns a snapshot of the timing parameters.
func (c *Config) DelaySettings() DelayConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Delays
}

// SessionSettings returns a snapshot of the session bounds.
func (c *Config) SessionSettings() SessionsConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Sessions
}

// IsOperator reports whether id belongs to an authorized operator. IDs match
// by phone number, so "34600111222", "+34 600 111 222" and
// "34600111222@c.us" name the same operator.
func (c *Config) IsOperator(id string) bool {
	number := sessions.Number(sessions.ChatID(id))
	if number == "" {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.ContainsFunc(c.Operators.IDs, func(op string) bool {
		return sessions.Number(sessions.ChatID(op)) == number
	})
}

// OperatorSettings returns a snapshot of the operator identities.
func (c *Config) OperatorSettings() OperatorsConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o := c.Operators
	o.IDs = slices.Clone(o.IDs)
	return o
}
