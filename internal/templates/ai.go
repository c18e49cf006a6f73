package templates

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

// AssistedRenderer wraps a base Renderer and, for self-documents only,
// asks a small Anthropic model to turn the rendered template into fuller
// prose. It is optional: self-document rendering falls back to the base
// renderer's plain output whenever no API key is configured or the call
// fails, matching the teacher's internal/compact.haikuClient pattern of
// "AI assist with a deterministic fallback" rather than a hard dependency.
type AssistedRenderer struct {
	base      Renderer
	client    anthropic.Client
	enabled   bool
	model     anthropic.Model
	log       *zap.Logger
}

// selfDocumentTemplates names the templates eligible for AI-assisted
// rendering; ordinary content bodies are never rewritten by a model.
var selfDocumentTemplates = map[string]bool{
	"self_identity.md.tmpl":    true,
	"self_methodology.md.tmpl": true,
}

// NewAssistedRenderer wraps base with optional AI assist using apiKey. An
// empty apiKey yields a renderer that always falls back to base.
func NewAssistedRenderer(base Renderer, apiKey string, log *zap.Logger) *AssistedRenderer {
	if log == nil {
		log = zap.NewNop()
	}
	var client anthropic.Client
	if apiKey != "" {
		client = anthropic.NewClient(option.WithAPIKey(apiKey))
	}
	return &AssistedRenderer{base: base, client: client, enabled: apiKey != "", model: anthropic.ModelClaude3_5HaikuLatest, log: log}
}

// Render renders through base, then, for self-documents with an API key
// configured, asks the model to expand the draft into prose. Any failure
// degrades silently to the base rendering.
func (r *AssistedRenderer) Render(templateName string, vars map[string]any) (string, error) {
	draft, err := r.base.Render(templateName, vars)
	if err != nil {
		return "", err
	}
	if !selfDocumentTemplates[templateName] || !r.enabled {
		return draft, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	prose, err := r.expand(ctx, draft)
	if err != nil {
		r.log.Warn("self-document AI assist failed, using template draft", zap.String("template", templateName), zap.Error(err))
		return draft, nil
	}
	return prose, nil
}

func (r *AssistedRenderer) expand(ctx context.Context, draft string) (string, error) {
	msg, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     r.model,
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(
				fmt.Sprintf("Expand this vault self-document draft into a few warm, concrete sentences, keeping all facts:\n\n%s", draft))),
		},
	})
	if err != nil {
		return "", err
	}
	if len(msg.Content) == 0 {
		return "", fmt.Errorf("empty response")
	}
	return msg.Content[0].Text, nil
}
