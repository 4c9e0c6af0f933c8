package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/deskbot/internal/providers"
)

var errEmptyReply = errors.New("provider returned an empty reply")

// replyCycle answers one batch: record the user turn, ask the provider, wait
// a human-looking delay and send. Failures end in an apology.
func (o *Orchestrator) replyCycle(ctx context.Context, chatID string, texts []string) {
	runID := uuid.NewString()
	joined := strings.Join(texts, "\n")

	ctx, span := o.tracer.Start(ctx, "reply_cycle", trace.WithAttributes(
		attribute.String("chat_id", chatID),
		attribute.String("run_id", runID),
		attribute.Int("batch_size", len(texts)),
	))
	defer span.End()

	slog.Info("reply cycle started",
		"chat_id", chatID,
		"run_id", runID,
		"messages", len(texts),
		"multiple_questions", len(texts) > 1 || HasMultipleQuestions(joined),
	)

	o.sessions.Append(chatID, providers.RoleUser, joined)

	reply, err := o.complete(ctx, chatID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.handleFailure(ctx, chatID, runID, err)
		return
	}

	o.sessions.Append(chatID, providers.RoleAssistant, reply)

	wait := o.delays.Human(joined, reply)
	slog.Info("reply generated", "chat_id", chatID, "run_id", runID, "delay", wait)
	if err := o.sleep(ctx, wait); err != nil {
		return
	}

	if err := o.send(ctx, chatID, reply); err != nil {
		span.RecordError(err)
		slog.Error("reply send failed", "chat_id", chatID, "run_id", runID, "error", err)
		return
	}
	slog.Info("reply sent", "chat_id", chatID, "run_id", runID)
}

func (o *Orchestrator) complete(ctx context.Context, chatID string) (string, error) {
	ai := o.cfg.AISettings()

	ctx, span := o.tracer.Start(ctx, "llm_call", trace.WithAttributes(
		attribute.String("provider", o.provider.Name()),
		attribute.String("model", ai.Model),
	))
	defer span.End()

	start := time.Now()
	resp, err := o.provider.Chat(ctx, providers.ChatRequest{
		Messages: o.sessions.Turns(chatID),
		Model:    ai.Model,
		Options: map[string]interface{}{
			providers.OptTemperature: ai.Temperature,
			providers.OptMaxTokens:   ai.MaxTokens,
		},
	})
	slog.Debug("llm call finished", "chat_id", chatID, "duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		return "", err
	}
	if resp.Usage != nil {
		span.SetAttributes(attribute.Int("tokens.total", resp.Usage.TotalTokens))
	}
	reply := cleanReply(resp.Content)
	if reply == "" {
		return "", errEmptyReply
	}
	return reply, nil
}

// handleFailure apologizes to the customer after a short pause and, when the
// provider answered with an HTTP status, tells the operators.
func (o *Orchestrator) handleFailure(ctx context.Context, chatID, runID string, cause error) {
	slog.Error("reply generation failed", "chat_id", chatID, "run_id", runID, "error", cause)

	pause := time.Duration(o.cfg.DelaySettings().ApologyDelayMs) * time.Millisecond
	if err := o.sleep(ctx, pause); err != nil {
		return
	}
	if err := o.send(ctx, chatID, o.cfg.AISettings().ApologyMessage); err != nil {
		slog.Error("apology send failed", "chat_id", chatID, "error", err)
	}

	var httpErr *providers.HTTPError
	if !errors.As(cause, &httpErr) {
		return
	}
	group := o.cfg.OperatorSettings().CommandGroup
	if group == "" {
		return
	}
	notice := fmt.Sprintf("⚠️ Error al procesar mensaje de %s:\nCódigo: %d\nMensaje: %s", chatID, httpErr.Status, httpErr.Body)
	if err := o.send(ctx, group, notice); err != nil {
		slog.Error("operator notice failed", "chat_id", chatID, "error", err)
	}
}
