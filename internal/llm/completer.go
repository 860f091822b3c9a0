// Package llm — опциональная языковая модель для реплик агента.
//
// Оркестратор диалога формирует содержание ответа сам (вопросы,
// сводки, альтернативы); Completer лишь переформулирует черновик
// живым языком. Без ANTHROPIC_API_KEY черновик уходит пользователю
// как есть — вся логика диалога детерминирована и от модели
// не зависит.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Completer переформулирует черновик реплики агента.
type Completer interface {
	Complete(ctx context.Context, system, draft string) (string, error)
}

// defaultMaxTokens — потолок длины реплики.
const defaultMaxTokens = 1024

// AnthropicCompleter — Completer поверх Anthropic Messages API.
type AnthropicCompleter struct {
	client anthropic.Client
	model  anthropic.Model
	logger *slog.Logger
}

// New создаёт Completer, если в окружении задан ANTHROPIC_API_KEY.
// Возвращает nil без ключа — вызывающий работает с черновиками.
func New(logger *slog.Logger) Completer {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		logger.Info("ANTHROPIC_API_KEY is not set, agent replies are template-only")
		return nil
	}

	model := anthropic.Model(os.Getenv("ANTHROPIC_MODEL"))
	if model == "" {
		model = anthropic.ModelClaude3_5Haiku20241022
	}

	return &AnthropicCompleter{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		logger: logger,
	}
}

// Complete отправляет черновик модели и возвращает переформулировку.
func (c *AnthropicCompleter) Complete(ctx context.Context, system, draft string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: defaultMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(draft)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return sb.String(), nil
}
