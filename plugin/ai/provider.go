// Package ai wraps the OpenAI-compatible model endpoint behind a small
// provider, and resolves per-capability model configuration.
package ai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/wsu2059q/qvqchat/internal/errors"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// Helper constructors for prompt assembly.

func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// Provider calls one resolved capability's model endpoint.
type Provider struct {
	client     *openai.Client
	config     CapabilityConfig
	maxRetries int
	timeout    time.Duration
}

// Option configures a Provider.
type Option func(*Provider)

// WithMaxRetries sets the number of attempts for transient failures.
// The dialogue capability uses a single attempt: retries of a failed
// reply are the transport adapter's concern, not the core's.
func WithMaxRetries(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.maxRetries = n
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewProvider creates a provider for one resolved capability config.
func NewProvider(cfg CapabilityConfig, opts ...Option) *Provider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	p := &Provider{
		client:     openai.NewClientWithConfig(clientConfig),
		config:     cfg,
		maxRetries: 1,
		timeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the resolved capability config the provider was built from.
func (p *Provider) Config() CapabilityConfig {
	return p.config
}

// Chat performs a chat completion with the capability's sampling settings.
func (p *Provider) Chat(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var result string
	err := p.doWithRetry(ctx, func() error {
		req := openai.ChatCompletionRequest{
			Model:       p.config.Model,
			Messages:    convertMessages(messages),
			Temperature: p.config.Temperature,
			MaxTokens:   p.config.MaxTokens,
		}

		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty chat response")
		}
		result = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", errors.ModelInvocation("chat completion failed", err).WithContext("scope", string(p.config.Scope))
	}

	return result, nil
}

// ChatJSON performs a chat completion constrained to a strict JSON
// schema, with temperature pinned to zero for deterministic output.
func (p *Provider) ChatJSON(ctx context.Context, messages []Message, schemaName string, schema *JSONSchema) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var result string
	err := p.doWithRetry(ctx, func() error {
		req := openai.ChatCompletionRequest{
			Model:       p.config.Model,
			Messages:    convertMessages(messages),
			Temperature: 0,
			MaxTokens:   p.config.MaxTokens,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:   schemaName,
					Strict: true,
					Schema: schema,
				},
			},
		}

		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty chat response")
		}
		result = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", errors.ModelInvocation("structured completion failed", err).WithContext("scope", string(p.config.Scope))
	}

	return result, nil
}

// DescribeImage asks the vision capability to describe an image for
// prompt injection. imageURL may be an https URL or a data URI.
func (p *Provider) DescribeImage(ctx context.Context, imageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var result string
	err := p.doWithRetry(ctx, func() error {
		req := openai.ChatCompletionRequest{
			Model:     p.config.Model,
			MaxTokens: p.config.MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{
					Role: openai.ChatMessageRoleUser,
					MultiContent: []openai.ChatMessagePart{
						{
							Type: openai.ChatMessagePartTypeText,
							Text: "用一两句话描述这张图片的内容。",
						},
						{
							Type:     openai.ChatMessagePartTypeImageURL,
							ImageURL: &openai.ChatMessageImageURL{URL: imageURL},
						},
					},
				},
			},
		}

		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty vision response")
		}
		result = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", errors.ModelInvocation("image description failed", err).WithContext("scope", string(p.config.Scope))
	}

	return result, nil
}

// Speech synthesizes spoken audio for a reply segment. The input joins
// the style description and the content with the endpoint's
// <|endofprompt|> convention, e.g. "用撒娇的语气说<|endofprompt|>你好呀".
func (p *Provider) Speech(ctx context.Context, style, content, voice string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	input := content
	if style != "" {
		input = style + "<|endofprompt|>" + content
	}

	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.config.Model),
		Input:          input,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, errors.ModelInvocation("speech synthesis failed", err).WithContext("scope", string(p.config.Scope))
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, errors.ModelInvocation("failed to read speech response", err)
	}
	return audio, nil
}

// doWithRetry executes fn with exponential backoff.
func (p *Provider) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			if attempt < p.maxRetries-1 {
				waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				slog.Debug("model request failed, retrying",
					"scope", p.config.Scope,
					"attempt", attempt+1,
					"wait_time", waitTime,
					"error", err)
				select {
				case <-time.After(waitTime):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return lastErr
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}
	return out
}
