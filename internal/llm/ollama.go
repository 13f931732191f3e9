package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// OllamaProvider is a local Ollama LLM provider.
type OllamaProvider struct {
	Model   string
	BaseURL string
	client  *http.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(model, baseURL string) *OllamaProvider {
	return &OllamaProvider{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

func (o *OllamaProvider) Name() string { return "ollama" }

// IsConfigured checks if Ollama is running and the model is available.
func (o *OllamaProvider) IsConfigured() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	modelBase := strings.SplitN(o.Model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	log.Warn().Str("model", o.Model).Msg("Ollama model not found")
	return false
}

type ollamaChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

func (o *OllamaProvider) post(ctx context.Context, c Completion, stream bool) (*http.Response, error) {
	body := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "system", "content": c.System},
			{"role": "user", "content": c.User},
		},
		"stream": stream,
		"options": map[string]any{
			"num_predict": c.MaxTokens,
			"temperature": c.Temperature,
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, classify(o.Name(), err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, statusError(o.Name(), resp.StatusCode, fmt.Errorf("ollama API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}
	return resp, nil
}

// Generate sends the completion to Ollama and returns the response.
func (o *OllamaProvider) Generate(ctx context.Context, c Completion) (string, error) {
	resp, err := o.post(ctx, c, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result ollamaChunk
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if ctx.Err() != nil {
			return "", classify(o.Name(), ctx.Err())
		}
		return "", malformed(o.Name(), fmt.Errorf("decoding response: %w", err))
	}
	if result.Error != "" {
		return "", &GenerationError{Kind: Unavailable, Provider: o.Name(), Err: errors.New(result.Error)}
	}
	if strings.TrimSpace(result.Message.Content) == "" {
		return "", malformed(o.Name(), errors.New("empty completion"))
	}
	return result.Message.Content, nil
}

// Stream starts a streaming chat. Ollama answers with one JSON object per line.
func (o *OllamaProvider) Stream(ctx context.Context, c Completion) (ChunkStream, error) {
	resp, err := o.post(ctx, c, true)
	if err != nil {
		return nil, err
	}
	return &ollamaStream{ctx: ctx, body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

type ollamaStream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
	cur     string
	err     error
	done    bool
}

func (s *ollamaStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			s.err = malformed("ollama", fmt.Errorf("decoding stream chunk: %w", err))
			return false
		}
		if chunk.Error != "" {
			s.err = &GenerationError{Kind: Unavailable, Provider: "ollama", Err: errors.New(chunk.Error)}
			return false
		}
		if chunk.Message.Content != "" {
			s.cur = chunk.Message.Content
			if chunk.Done {
				s.done = true
			}
			return true
		}
		if chunk.Done {
			s.done = true
			return false
		}
	}
	if err := s.scanner.Err(); err != nil {
		if s.ctx.Err() != nil {
			err = s.ctx.Err()
		}
		s.err = classify("ollama", err)
	}
	s.done = true
	return false
}

func (s *ollamaStream) Current() string { return s.cur }

func (s *ollamaStream) Err() error { return s.err }

func (s *ollamaStream) Close() error {
	s.done = true
	return s.body.Close()
}
