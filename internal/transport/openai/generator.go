// Package openai generates drill content through an OpenAI-compatible chat API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/domain"
	"github.com/kailas-cloud/lexdrill/internal/metrics"
)

const promptVersion = "batch-v1"

// Generator produces drills with a chat completion in JSON mode.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	user        string
	timeout     time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// Config holds the generator settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	User        string
	Timeout     time.Duration
	Logger      *zap.Logger
}

// NewGenerator creates an OpenAI-compatible drill generator.
func NewGenerator(cfg *Config) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	temp := cfg.Temperature
	if temp <= 0 {
		temp = 0.3
	}

	return &Generator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: temp,
		user:        cfg.User,
		timeout:     cfg.Timeout,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

type promptItem struct {
	TargetWord   string   `json:"targetWord"`
	Meaning      string   `json:"meaning"`
	PartOfSpeech string   `json:"partOfSpeech,omitempty"`
	Collocations []string `json:"collocations,omitempty"`
}

type completion struct {
	Drills []json.RawMessage `json:"drills"`
}

// Generate requests one drill per item. Drills are aligned by index with items;
// the model may return fewer.
func (g *Generator) Generate(
	ctx context.Context, mode domain.Mode, items []domain.LearningItem,
) (domain.Generation, error) {
	if len(items) == 0 {
		return domain.Generation{}, nil
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	user, err := userPrompt(items)
	if err != nil {
		return domain.Generation{}, fmt.Errorf("build prompt: %w", err)
	}
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		User:        g.user,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(mode)},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.GeneratorRequestsTotal.WithLabelValues(g.model, "error").Inc()
		return domain.Generation{}, parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		metrics.GeneratorRequestsTotal.WithLabelValues(g.model, "error").Inc()
		return domain.Generation{}, fmt.Errorf("empty completion: %w", domain.ErrGeneratorFailed)
	}

	var out completion
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &out); err != nil {
		metrics.GeneratorRequestsTotal.WithLabelValues(g.model, "invalid_json").Inc()
		return domain.Generation{}, fmt.Errorf("decode completion: %w: %w", err, domain.ErrGeneratorFailed)
	}

	metrics.GeneratorRequestsTotal.WithLabelValues(g.model, "success").Inc()
	metrics.GeneratorRequestDuration.WithLabelValues(g.model).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.GeneratorTokensTotal.WithLabelValues(g.model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.GeneratorTokensTotal.WithLabelValues(g.model, "completion").Add(float64(resp.Usage.CompletionTokens))
	}

	n := min(len(out.Drills), len(items))
	now := g.now()
	drills := make([]domain.Drill, 0, n)
	for i := range n {
		drills = append(drills, domain.Drill{
			Meta: domain.DrillMeta{
				Mode:      mode,
				ItemID:    items[i].ID,
				Word:      items[i].Word,
				Source:    domain.SourceGenerator,
				CreatedAt: now,
			},
			Payload: out.Drills[i],
		})
	}
	g.logger.Debug("drills generated",
		zap.String("mode", string(mode)),
		zap.Int("requested", len(items)),
		zap.Int("returned", len(drills)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", duration),
	)
	return domain.Generation{
		Drills:           drills,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels.
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func userPrompt(items []domain.LearningItem) (string, error) {
	in := make([]promptItem, len(items))
	for i, it := range items {
		in[i] = promptItem{
			TargetWord:   it.Word,
			Meaning:      it.Definition,
			PartOfSpeech: it.PartOfSpeech,
			Collocations: it.Collocations,
		}
	}
	data, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var modeInstructions = map[domain.Mode]string{
	domain.ModeSyntax:   "Build one minimal S-V-O sentence per word and gap the target word.",
	domain.ModePhrase:   "Build one sentence around a common collocation of the word and gap the target word.",
	domain.ModeBlitz:    "Produce a rapid recognition card: the word, three distractors and the meaning.",
	domain.ModeAudio:    "Write one short spoken line using the word for listening recall.",
	domain.ModeChunking: "Split one business sentence using the word into meaningful chunks.",
	domain.ModeContext:  "Write a two-line business email excerpt where the word fits the context.",
	domain.ModeNuance:   "Contrast the word with a near-synonym in two sentences.",
}

func systemPrompt(mode domain.Mode) string {
	instr, ok := modeInstructions[mode]
	if !ok {
		instr = "Build one practice sentence per word and gap the target word."
	}
	var b strings.Builder
	b.WriteString("You generate vocabulary drills for business English learners.\n")
	b.WriteString(instr)
	b.WriteString("\nProcess the input array strictly 1:1 and keep its order.\n")
	b.WriteString(`Reply with a JSON object {"drills": [...]}. Each drill has "format": "chat", `)
	b.WriteString(`"sys_prompt_version": "` + promptVersion + `", "target_word" equal to the input targetWord, `)
	b.WriteString(`and "segments": a "text" segment with "content_markdown" and an "interaction" segment `)
	b.WriteString(`with "question_markdown", "options" and "answer_key".`)
	return b.String()
}

// parseAPIError wraps every failure with domain.ErrGeneratorFailed.
func parseAPIError(err error) error {
	wrap := domain.ErrGeneratorFailed

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("generator API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("generator API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("generator API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("generator request failed: %v: %w", err, wrap)
}

// extractDetail reads the "detail" field some compatible providers use for errors.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
