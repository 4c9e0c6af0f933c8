package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

const defaultSystemPrompt = `Eres un asistente amable y profesional que trabaja para [Nombre de tu empresa]. Debes simular ser un agente humano.

Información de la empresa:
- Nombre: [Nombre de tu empresa]
- Productos/Servicios: [Descripción de productos/servicios]
- Horario de atención: lunes a viernes de 8:00 a 16:00
- Sitio web: [URL de tu sitio]
- Correo de contacto: [email]
- Teléfono: [teléfono]
- Dirección: [dirección]
- Política de devoluciones: [Resumen de política]

Cuando respondas:
1. Divide las respuestas largas en varios párrafos
2. Si el cliente menciona múltiples preguntas o temas, abórdalos por separado y en orden
3. Para consultas de productos específicos, ofrece información sobre características, precio y disponibilidad
4. Para solicitudes de presupuesto, pide detalles específicos como cantidad, modelo y fecha requerida
5. Para solicitudes de facturas, pide el número de pedido o fecha de compra
6. No menciones que eres una IA
7. Usa un tono conversacional y amigable`

const defaultOutOfHoursMessage = `Gracias por contactarnos. Nuestro horario de atención es de lunes a viernes de 8:00 a 16:00 horas.

En este momento nos encontramos fuera de horario comercial, pero nos pondremos en contacto contigo tan pronto como regresemos.

¡Gracias por tu comprensión!`

const defaultApologyMessage = "Lo siento, tuve un problema al procesar tu mensaje. ¿Podrías intentarlo de nuevo más tarde?"

// Default returns a Config with the values the bot was originally deployed with.
func Default() *Config {
	return &Config{
		BotEnabled: false,
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				Enabled:   true,
				BridgeURL: "ws://127.0.0.1:3001",
			},
		},
		AI: AIConfig{
			Model:          "gpt-3.5-turbo",
			Temperature:    0.7,
			MaxTokens:      150,
			SystemPrompt:   defaultSystemPrompt,
			ApologyMessage: defaultApologyMessage,
		},
		Schedule: ScheduleConfig{
			Start:             8,
			End:               16,
			Days:              []int{1, 2, 3, 4, 5},
			OutOfHoursMessage: defaultOutOfHoursMessage,
			Airtable: AirtableConfig{
				Table: "Festivos",
				View:  "Grid view",
			},
		},
		Delays: DelayConfig{
			AutoReply:      Range{Min: 25, Max: 35},
			Reading:        Range{Min: 2, Max: 5},
			TypingCPM:      400,
			MinTypingSec:   4,
			MaxExtraSec:    6,
			GroupingSec:    10,
			ApologyDelayMs: 1000,
		},
		Sessions: SessionsConfig{
			MaxTurns:         15,
			IdleHours:        6,
			NotifiedHours:    12,
			MaxMessageAgeSec: 60,
		},
		Cron: CronConfig{
			Sweep:          "*/30 * * * *",
			HolidayRefresh: "0 6 * * *",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "deskbot",
		},
	}
}

// Load reads config from a JSON5 file, then overlays .env and env vars.
// A missing file is not an error: defaults plus env are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	// .env next to the config file; existing process env wins.
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load %s: %w", envPath, err)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	loc, err := loadLocation(cfg.Schedule.TimeZone)
	if err != nil {
		return nil, err
	}
	cfg.loc = loc

	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("DESKBOT_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("DESKBOT_OPENAI_API_BASE", &c.Providers.OpenAI.APIBase)
	envStr("DESKBOT_MODEL", &c.AI.Model)
	envStr("DESKBOT_BRIDGE_URL", &c.Channels.WhatsApp.BridgeURL)
	envStr("DESKBOT_TEST_NUMBER", &c.Operators.TestNumber)
	envStr("DESKBOT_COMMAND_GROUP", &c.Operators.CommandGroup)
	envStr("DESKBOT_TIMEZONE", &c.Schedule.TimeZone)

	// Airtable
	envStr("DESKBOT_AIRTABLE_API_KEY", &c.Schedule.Airtable.APIKey)
	envStr("DESKBOT_AIRTABLE_BASE_ID", &c.Schedule.Airtable.BaseID)

	// Operator IDs from env (comma-separated)
	if v := os.Getenv("DESKBOT_OPERATORS"); v != "" {
		ids := make([]string, 0)
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		c.Operators.IDs = ids
	}

	if v := os.Getenv("DESKBOT_BOT_ENABLED"); v != "" {
		c.BotEnabled = v == "true" || v == "1"
	}

	// Telemetry
	envStr("DESKBOT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("DESKBOT_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("DESKBOT_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("DESKBOT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("DESKBOT_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}

	if v := os.Getenv("DESKBOT_GROUPING_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			c.Delays.GroupingSec = sec
		}
	}
}

// validate rejects file values that the runtime setters would also reject.
func (c *Config) validate() error {
	if err := validateHours(c.Schedule.Start, c.Schedule.End); err != nil {
		return fmt.Errorf("config schedule: %w", err)
	}
	if err := validateDays(c.Schedule.Days); err != nil {
		return fmt.Errorf("config schedule: %w", err)
	}
	if err := validateTemperature(c.AI.Temperature); err != nil {
		return fmt.Errorf("config ai: %w", err)
	}
	if c.Sessions.MaxTurns < 2 {
		return fmt.Errorf("config sessions: max_turns must be at least 2, got %d", c.Sessions.MaxTurns)
	}
	if c.Delays.TypingCPM <= 0 {
		return fmt.Errorf("config delays: typing_cpm must be positive, got %d", c.Delays.TypingCPM)
	}
	if c.Delays.Reading.Min > c.Delays.Reading.Max || c.Delays.AutoReply.Min > c.Delays.AutoReply.Max {
		return fmt.Errorf("config delays: min must not exceed max")
	}
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config schedule timezone %q: %w", name, err)
	}
	return loc, nil
}

// Save writes the config to a JSON file. Secrets tagged `json:"-"` never persist.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
