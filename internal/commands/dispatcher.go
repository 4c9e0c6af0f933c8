// Package commands implements the "!" operator commands accepted in the
// command group.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nextlevelbuilder/deskbot/internal/config"
	"github.com/nextlevelbuilder/deskbot/internal/hours"
	"github.com/nextlevelbuilder/deskbot/internal/sessions"
)

// Prefix marks a message as an operator command.
const Prefix = "!"

// Gate is the business-hours gate. *hours.Gate satisfies it.
type Gate interface {
	Evaluate(ctx context.Context) hours.Decision
	SetHours(start, end int) error
	SetBusinessDays(days []int) error
	Invalidate()
}

// Holidays forces a reload of the holiday list. *cache.TTL[[]string] satisfies it.
type Holidays interface {
	Refresh(ctx context.Context) ([]string, error)
}

// Chats resets per-chat state. *agent.Orchestrator satisfies it.
type Chats interface {
	ResetChat(chatID string)
	PendingBatches() int
}

// Options wires a Dispatcher. Holidays may be nil when no holiday source is configured.
type Options struct {
	Config   *config.Config
	Gate     Gate
	Holidays Holidays
	Chats    Chats
	Sessions *sessions.Store
	Notified *sessions.NotifiedStore
}

// Dispatcher parses operator commands and applies them to the live policy.
type Dispatcher struct {
	cfg      *config.Config
	gate     Gate
	holidays Holidays
	chats    Chats
	sessions *sessions.Store
	notified *sessions.NotifiedStore
	now      func() time.Time
}

type handlerFunc func(ctx context.Context, operatorID, args string) (string, error)

func New(o Options) *Dispatcher {
	return &Dispatcher{
		cfg:      o.Config,
		gate:     o.Gate,
		holidays: o.Holidays,
		chats:    o.Chats,
		sessions: o.Sessions,
		notified: o.Notified,
		now:      time.Now,
	}
}

// WithClock replaces the time source shown in status reports. Intended for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// IsCommand reports whether text is addressed to the dispatcher.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), Prefix)
}

// Handle runs one command and returns the reply for the command group.
// Unknown commands get the help text. Rejected input mutates nothing.
func (d *Dispatcher) Handle(ctx context.Context, operatorID, text string) string {
	name, args, _ := strings.Cut(strings.TrimSpace(text), " ")
	name = strings.ToLower(name)
	args = strings.TrimSpace(args)

	slog.Info("operator command", "command", name, "operator", operatorID)

	h := d.lookup(name)
	reply, err := h(ctx, operatorID, args)
	if err != nil {
		slog.Error("operator command failed", "command", name, "operator", operatorID, "error", err)
		return "❌ Error: " + err.Error()
	}
	return reply
}

func (d *Dispatcher) lookup(name string) handlerFunc {
	switch name {
	case "!activar":
		return d.activate
	case "!pausar":
		return d.pause
	case "!estado":
		return d.status
	case "!temp":
		return d.temperature
	case "!prompt":
		return d.prompt
	case "!reset":
		return d.reset
	case "!mensaje":
		return d.outOfHoursMessage
	case "!horario":
		return d.businessHours
	case "!dias":
		return d.businessDays
	case "!festivos":
		return d.refreshHolidays
	default:
		return d.help
	}
}

func (d *Dispatcher) activate(_ context.Context, operatorID, _ string) (string, error) {
	d.cfg.SetEnabled(true)
	slog.Info("bot enabled", "operator", operatorID)
	return "🤖 Bot activado globalmente por operador " + operatorID, nil
}

func (d *Dispatcher) pause(_ context.Context, operatorID, _ string) (string, error) {
	d.cfg.SetEnabled(false)
	slog.Info("bot paused", "operator", operatorID)
	return "🤖 Bot pausado globalmente por operador " + operatorID, nil
}

func (d *Dispatcher) temperature(_ context.Context, _, args string) (string, error) {
	const usage = "❌ Valor incorrecto. Usa !temp [0-1], ejemplo: !temp 0.7"

	t, err := strconv.ParseFloat(firstField(args), 64)
	if err != nil {
		return usage, nil
	}
	if err := d.cfg.SetTemperature(t); err != nil {
		if errors.Is(err, config.ErrInvalidRange) {
			return usage, nil
		}
		return "", err
	}
	return "🔧 Temperatura de IA ajustada a " + strconv.FormatFloat(t, 'f', -1, 64), nil
}

func (d *Dispatcher) prompt(_ context.Context, _, args string) (string, error) {
	var verr *config.ValidationError
	if err := d.cfg.SetSystemPrompt(args); errors.As(err, &verr) {
		return fmt.Sprintf("❌ Prompt demasiado corto. Debe tener al menos %d caracteres.", config.MinSystemPromptLen), nil
	} else if err != nil {
		return "", err
	}
	return "✅ Prompt del sistema actualizado. Se aplicará a las conversaciones nuevas.", nil
}

func (d *Dispatcher) reset(_ context.Context, operatorID, args string) (string, error) {
	target := firstField(args)
	if target == "" {
		return "❌ Formato incorrecto. Usa !reset [número], ejemplo: !reset 1234567890", nil
	}
	chatID := sessions.ChatID(target)
	d.chats.ResetChat(chatID)
	slog.Info("chat context reset", "chat_id", chatID, "operator", operatorID)
	return "🔄 Contexto reseteado para " + chatID, nil
}

func (d *Dispatcher) outOfHoursMessage(_ context.Context, _, args string) (string, error) {
	var verr *config.ValidationError
	if err := d.cfg.SetOutOfHoursMessage(args); errors.As(err, &verr) {
		return fmt.Sprintf("❌ Mensaje demasiado corto. Debe tener al menos %d caracteres.", config.MinOutOfHoursMessageLen), nil
	} else if err != nil {
		return "", err
	}
	return "✅ Mensaje fuera de horario actualizado.", nil
}

func (d *Dispatcher) businessHours(_ context.Context, _, args string) (string, error) {
	const invalid = "❌ Horario inválido. Inicio y fin deben ser horas válidas (0-24) y fin debe ser mayor que inicio. Ejemplo: !horario 9 18"

	fields := strings.Fields(args)
	if len(fields) != 2 {
		return invalid, nil
	}
	start, err1 := strconv.Atoi(fields[0])
	end, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil {
		return invalid, nil
	}
	if err := d.gate.SetHours(start, end); err != nil {
		if errors.Is(err, config.ErrInvalidRange) {
			return invalid, nil
		}
		return "", err
	}
	return fmt.Sprintf("⏰ Horario comercial actualizado: %d:00 a %d:00", start, end), nil
}

func (d *Dispatcher) businessDays(_ context.Context, _, args string) (string, error) {
	const invalid = "❌ Días inválidos. Usa números 0-6 separados por comas (0=domingo), ejemplo: !dias 1,2,3,4,5"

	days, ok := parseDays(args)
	if !ok {
		return invalid, nil
	}
	if err := d.gate.SetBusinessDays(days); err != nil {
		if errors.Is(err, config.ErrInvalidRange) {
			return invalid, nil
		}
		return "", err
	}
	return "📅 Días comerciales actualizados: " + formatDays(d.cfg.BusinessDays()), nil
}

func (d *Dispatcher) refreshHolidays(ctx context.Context, _, _ string) (string, error) {
	if d.holidays == nil {
		return "⚠️ Airtable no configurado, no hay festivos que actualizar.", nil
	}
	days, err := d.holidays.Refresh(ctx)
	d.gate.Invalidate()
	if err != nil {
		return "", fmt.Errorf("actualizando festivos: %w", err)
	}
	return fmt.Sprintf("🗓️ Festivos actualizados: %d días cargados", len(days)), nil
}

func (d *Dispatcher) status(ctx context.Context, _, _ string) (string, error) {
	decision := d.gate.Evaluate(ctx)
	start, end := d.cfg.Hours()
	ops := d.cfg.OperatorSettings()
	ai := d.cfg.AISettings()

	bot := "❌ Pausado"
	if d.cfg.Enabled() {
		bot = "✅ Activado"
	}
	inside := "❌ Fuera"
	if decision.IsOpen() {
		inside = "✅ Dentro"
	}
	test := ops.TestNumber
	if test == "" {
		test = "(ninguno)"
	}

	var b strings.Builder
	b.WriteString("📊 Estado del sistema:\n")
	fmt.Fprintf(&b, "- Bot: %s\n", bot)
	fmt.Fprintf(&b, "- Horario comercial: %s (%s)\n", inside, decision)
	fmt.Fprintf(&b, "- Horario: %d:00 a %d:00\n", start, end)
	fmt.Fprintf(&b, "- Días: %s\n", formatDays(d.cfg.BusinessDays()))
	fmt.Fprintf(&b, "- Modo pruebas: %s\n", test)
	fmt.Fprintf(&b, "- Operadores: %s\n", strings.Join(ops.IDs, ", "))
	fmt.Fprintf(&b, "- Modelo IA: %s\n", ai.Model)
	fmt.Fprintf(&b, "- Temperatura: %s\n", strconv.FormatFloat(ai.Temperature, 'f', -1, 64))
	fmt.Fprintf(&b, "- Chats activos: %d\n", d.sessions.Len())
	fmt.Fprintf(&b, "- Chats pendientes: %d\n", d.sessions.PendingCount())
	fmt.Fprintf(&b, "- Lotes en espera: %d\n", d.chats.PendingBatches())
	fmt.Fprintf(&b, "- Notificados fuera horario: %d\n", d.notified.Len())
	fmt.Fprintf(&b, "- Hora del servidor: %s", d.now().In(d.cfg.Location()).Format("02/01/2006 15:04:05"))
	return b.String(), nil
}

func (d *Dispatcher) help(context.Context, string, string) (string, error) {
	return helpText, nil
}

const helpText = `📝 Comandos disponibles:

!activar - Activa el bot globalmente
!pausar - Pausa el bot globalmente
!estado - Muestra estado del sistema
!temp [0-1] - Ajusta temperatura de IA
!prompt [texto] - Actualiza el prompt del sistema
!reset [número] - Resetea el contexto de un número
!mensaje [texto] - Actualiza mensaje fuera de horario
!horario [inicio] [fin] - Actualiza horario comercial (horas)
!dias [d,d,...] - Actualiza días comerciales (0=domingo)
!festivos - Actualiza caché de festivos
!ayuda - Muestra esta ayuda`

func firstField(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

// parseDays accepts "1,2,3", "1 2 3" or a mix of both.
func parseDays(s string) ([]int, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) == 0 {
		return nil, false
	}
	days := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, false
		}
		days = append(days, n)
	}
	return days, true
}

var dayNames = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}

func formatDays(days []int) string {
	names := make([]string, 0, len(days))
	for _, d := range days {
		if d >= 0 && d < len(dayNames) {
			names = append(names, dayNames[d])
		}
	}
	return strings.Join(names, ", ")
}
