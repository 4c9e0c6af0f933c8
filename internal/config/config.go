package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
// Phone numbers are often written as bare numbers in hand-edited configs.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the deskbot gateway.
//
// One instance is shared by every component. Fields that operators can change
// at runtime (see policy.go) must be read through the accessor methods, which
// take the read lock and return copies.
type Config struct {
	BotEnabled bool            `json:"bot_enabled"`
	Channels   ChannelsConfig  `json:"channels"`
	Providers  ProvidersConfig `json:"providers"`
	AI         AIConfig        `json:"ai"`
	Operators  OperatorsConfig `json:"operators"`
	Schedule   ScheduleConfig  `json:"schedule"`
	Delays     DelayConfig     `json:"delays"`
	Sessions   SessionsConfig  `json:"sessions"`
	Company    CompanyProfile  `json:"company,omitempty"`
	Cron       CronConfig      `json:"cron,omitempty"`
	Telemetry  TelemetryConfig `json:"telemetry,omitempty"`

	loc *time.Location
	mu  sync.RWMutex
}

// ProvidersConfig holds credentials for the completion provider.
type ProvidersConfig struct {
	OpenAI ProviderConfig `json:"openai"`
}

// ProviderConfig configures an OpenAI-compatible endpoint.
type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base,omitempty"`
}

// AIConfig holds the model parameters sent with every completion.
type AIConfig struct {
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	SystemPrompt   string  `json:"system_prompt"`
	ApologyMessage string  `json:"apology_message"`
}

// OperatorsConfig identifies who may issue commands and where.
type OperatorsConfig struct {
	IDs          FlexibleStringSlice `json:"ids"`
	TestNumber   string              `json:"test_number,omitempty"`  // always served, even when the bot is paused
	CommandGroup string              `json:"command_group,omitempty"` // group chat ID where commands are accepted
}

// ScheduleConfig is the business-hours policy.
type ScheduleConfig struct {
	Start             int            `json:"start"` // hour of day, inclusive
	End               int            `json:"end"`   // hour of day, exclusive
	Days              []int          `json:"days"`  // 0=Sunday .. 6=Saturday
	TimeZone          string         `json:"timezone,omitempty"`
	OutOfHoursMessage string         `json:"out_of_hours_message"`
	Airtable          AirtableConfig `json:"airtable"`
}

// AirtableConfig points at the holiday table.
// APIKey is never read from config.json, only from env DESKBOT_AIRTABLE_API_KEY.
type AirtableConfig struct {
	APIKey  string `json:"-"`
	BaseID  string `json:"base_id,omitempty"`
	Table   string `json:"table"`
	View    string `json:"view"`
	APIBase string `json:"api_base,omitempty"`
}

// Range is an inclusive range of whole seconds.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// DelayConfig tunes the simulated human response timing.
type DelayConfig struct {
	AutoReply      Range `json:"auto_reply"`       // out-of-hours notice, seconds
	Reading        Range `json:"reading"`          // seconds
	TypingCPM      int   `json:"typing_cpm"`       // characters per minute
	MinTypingSec   int   `json:"min_typing_sec"`   // typing floor
	MaxExtraSec    int   `json:"max_extra_sec"`    // random extra on top of typing
	GroupingSec    int   `json:"grouping_sec"`     // debounce quiet period
	ApologyDelayMs int   `json:"apology_delay_ms"` // wait before the error reply
}

// SessionsConfig bounds the in-memory conversation state.
type SessionsConfig struct {
	MaxTurns         int `json:"max_turns"`
	IdleHours        int `json:"idle_hours"`
	NotifiedHours    int `json:"notified_hours"`
	MaxMessageAgeSec int `json:"max_message_age_sec"`
}

// CompanyProfile fills the placeholders of the system prompt template.
type CompanyProfile struct {
	Name         string `json:"name,omitempty"`
	Products     string `json:"products,omitempty"`
	Website      string `json:"website,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Address      string `json:"address,omitempty"`
	ReturnPolicy string `json:"return_policy,omitempty"`
}

// CronConfig holds cron expressions for maintenance jobs.
type CronConfig struct {
	Sweep          string `json:"sweep,omitempty"`
	HolidayRefresh string `json:"holiday_refresh,omitempty"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	Protocol    string `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool   `json:"insecure,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
}

// IdleTimeout returns the idle threshold for conversation contexts.
func (s SessionsConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleHours) * time.Hour
}

// NotifiedTimeout returns how long an out-of-hours record is kept.
func (s SessionsConfig) NotifiedTimeout() time.Duration {
	return time.Duration(s.NotifiedHours) * time.Hour
}

// MaxMessageAge returns the age after which inbound messages are ignored.
func (s SessionsConfig) MaxMessageAge() time.Duration {
	return time.Duration(s.MaxMessageAgeSec) * time.Second
}

// HasProvider reports whether a provider key is configured.
func (c *Config) HasProvider() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Providers.OpenAI.APIKey != ""
}

// HasHolidaySource reports whether Airtable credentials are present.
func (c *Config) HasHolidaySource() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Schedule.Airtable.APIKey != "" && c.Schedule.Airtable.BaseID != ""
}

// RenderSystemPrompt fills the company placeholders of the system prompt
// template. Placeholders without a configured value are left untouched.
func (c *Config) RenderSystemPrompt() {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.Company
	replacements := []struct{ placeholder, value string }{
		{"[Nombre de tu empresa]", p.Name},
		{"[Descripción de productos/servicios]", p.Products},
		{"[URL de tu sitio]", p.Website},
		{"[email]", p.Email},
		{"[teléfono]", p.Phone},
		{"[dirección]", p.Address},
		{"[Resumen de política]", p.ReturnPolicy},
	}

	prompt := c.AI.SystemPrompt
	for _, r := range replacements {
		if r.value == "" {
			continue
		}
		prompt = strings.ReplaceAll(prompt, r.placeholder, r.value)
	}
	c.AI.SystemPrompt = prompt
}

// Location returns the time zone used for business-hours evaluation.
func (c *Config) Location() *time.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}
