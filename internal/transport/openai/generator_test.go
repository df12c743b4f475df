package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/domain"
	"github.com/kailas-cloud/lexdrill/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

// chatResponse mirrors the OpenAI-compatible chat completion response.
type chatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func completionServer(t *testing.T, content string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		resp := chatResponse{ID: "c1", Object: "chat.completion", Model: "test-model"}
		resp.Choices = append(resp.Choices, struct {
			Index   int `json:"index"`
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		}{FinishReason: "stop"})
		resp.Choices[0].Message.Role = "assistant"
		resp.Choices[0].Message.Content = content
		resp.Usage.PromptTokens = 30
		resp.Usage.CompletionTokens = 12
		resp.Usage.TotalTokens = 42

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestGenerator(url string) *Generator {
	return NewGenerator(&Config{
		APIKey:  "test-key",
		BaseURL: url,
		Model:   "test-model",
		Logger:  zap.NewNop(),
	})
}

var testItems = []domain.LearningItem{
	{ID: 1, Word: "negotiate", Definition: "discuss terms", PartOfSpeech: "verb"},
	{ID: 2, Word: "invoice", Definition: "bill", PartOfSpeech: "noun"},
}

func TestGenerator_Generate(t *testing.T) {
	server := completionServer(t, `{"drills":[{"target_word":"negotiate"},{"target_word":"invoice"}]}`,
		func(r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if r.Header.Get("Authorization") != "Bearer test-key" {
				t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
			}
			var body struct {
				Model          string `json:"model"`
				ResponseFormat struct {
					Type string `json:"type"`
				} `json:"response_format"`
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode request: %v", err)
				return
			}
			if body.ResponseFormat.Type != "json_object" {
				t.Errorf("response_format = %q, expected json_object", body.ResponseFormat.Type)
			}
			if len(body.Messages) != 2 || !strings.Contains(body.Messages[1].Content, "negotiate") {
				t.Errorf("user prompt does not list target words: %+v", body.Messages)
			}
		})
	defer server.Close()

	gen, err := newTestGenerator(server.URL).Generate(context.Background(), domain.ModeSyntax, testItems)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if gen.PromptTokens != 30 || gen.CompletionTokens != 12 || gen.TotalTokens() != 42 {
		t.Errorf("usage = %d/%d", gen.PromptTokens, gen.CompletionTokens)
	}
	drills := gen.Drills
	if len(drills) != 2 {
		t.Fatalf("expected 2 drills, got %d", len(drills))
	}
	if drills[1].Meta.ItemID != 2 || drills[1].Meta.Word != "invoice" {
		t.Errorf("drill not aligned with item: %+v", drills[1].Meta)
	}
	if drills[0].Meta.Source != domain.SourceGenerator {
		t.Errorf("source = %q, expected generator", drills[0].Meta.Source)
	}
	if drills[0].Meta.Mode != domain.ModeSyntax {
		t.Errorf("mode = %q", drills[0].Meta.Mode)
	}
	if string(drills[0].Payload) != `{"target_word":"negotiate"}` {
		t.Errorf("payload = %s", drills[0].Payload)
	}
}

func TestGenerator_FewerDrillsThanItems(t *testing.T) {
	server := completionServer(t, `{"drills":[{"target_word":"negotiate"}]}`, nil)
	defer server.Close()

	gen, err := newTestGenerator(server.URL).Generate(context.Background(), domain.ModePhrase, testItems)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(gen.Drills) != 1 {
		t.Fatalf("expected 1 drill, got %d", len(gen.Drills))
	}
}

func TestGenerator_Empty(t *testing.T) {
	gen, err := newTestGenerator("http://unused").Generate(context.Background(), domain.ModeSyntax, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.Drills != nil || gen.TotalTokens() != 0 {
		t.Errorf("expected empty generation, got %+v", gen)
	}
}

func TestGenerator_InvalidJSON(t *testing.T) {
	server := completionServer(t, `not json`, nil)
	defer server.Close()

	_, err := newTestGenerator(server.URL).Generate(context.Background(), domain.ModeSyntax, testItems)
	if !errors.Is(err, domain.ErrGeneratorFailed) {
		t.Fatalf("expected ErrGeneratorFailed, got %v", err)
	}
}

func TestGenerator_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer server.Close()

	_, err := newTestGenerator(server.URL).Generate(context.Background(), domain.ModeSyntax, testItems)
	if !errors.Is(err, domain.ErrGeneratorFailed) {
		t.Fatalf("expected ErrGeneratorFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error should carry API message, got %v", err)
	}
}

func TestGenerator_DetailError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"model not found"}`))
	}))
	defer server.Close()

	_, err := newTestGenerator(server.URL).Generate(context.Background(), domain.ModeSyntax, testItems)
	if !errors.Is(err, domain.ErrGeneratorFailed) {
		t.Fatalf("expected ErrGeneratorFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Errorf("error should carry detail, got %v", err)
	}
}

func TestSystemPrompt_PerMode(t *testing.T) {
	if systemPrompt(domain.ModeSyntax) == systemPrompt(domain.ModeNuance) {
		t.Error("expected mode-specific instructions")
	}
	if !strings.Contains(systemPrompt(domain.ModeReading), promptVersion) {
		t.Error("prompt must pin the prompt version")
	}
}
