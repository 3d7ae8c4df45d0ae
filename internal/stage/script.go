package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"reelforge/internal/adapters"
	"reelforge/internal/models"
)

const wordsPerSecond = 2.5

const scriptSystemPrompt = `You write narration scripts for short online videos.
Return only the narration text. Separate scenes with a blank line.
Do not include stage directions, headings or speaker labels.`

type ScriptWorker struct {
	deps   Deps
	logger *zap.Logger
}

func (w *ScriptWorker) Topic() models.Topic { return models.TopicScript }

func (w *ScriptWorker) Process(ctx context.Context, job *models.Job) (json.RawMessage, error) {
	p, err := Decode[ScriptPayload](job.Payload)
	if err != nil {
		return nil, err
	}
	script, err := loadScript(ctx, w.deps.Scripts, p.ScriptID)
	if err != nil {
		return nil, err
	}

	switch script.Status {
	case models.ScriptGenerated:
		w.logger.Info("Script already generated, skipping", zap.Stringer("script_id", script.ID))
		return encode(ScriptOutput{Title: script.Title, Content: script.Content})
	case models.ScriptFailed:
		return nil, Permanent(fmt.Errorf("%w: script %s already failed", models.ErrInvalidState, script.ID))
	}

	text, err := call(ctx, w.deps.Timeouts.Text, func(ctx context.Context) (string, error) {
		return w.deps.Text.Generate(ctx, scriptSystemPrompt, scriptPrompt(p))
	})
	if err != nil {
		return nil, fmt.Errorf("generate script %s: %w", script.ID, err)
	}
	content := strings.TrimSpace(text)

	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = models.DefaultScriptTitle(p.Niche)
	}
	w.logger.Info("Script generated",
		zap.Stringer("script_id", script.ID),
		zap.Int("words", len(strings.Fields(content))),
		zap.Int("tokens", adapters.CountTokens(w.deps.TextModel, content)),
	)
	return encode(ScriptOutput{Title: title, Content: content})
}

func scriptPrompt(p ScriptPayload) string {
	words := int(float64(p.Length) * wordsPerSecond)
	var b strings.Builder
	fmt.Fprintf(&b, "Write a video script about %s.\n", p.Niche)
	fmt.Fprintf(&b, "Keywords: %s.\n", strings.Join(p.Keywords, ", "))
	fmt.Fprintf(&b, "Target length: %d seconds, about %d words.\n", p.Length, words)
	if p.Title != "" {
		fmt.Fprintf(&b, "Working title: %s.\n", p.Title)
	}
	return b.String()
}
