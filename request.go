package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// requestBuilder turns prompt items into batch requests. Correlation IDs are
// sequential ("request_0", "request_1", ...) and unique within the batch;
// the side map from ID to title is what names the output files later.
type requestBuilder struct {
	system      string
	model       string
	maxTokens   int
	temperature float64

	reqs   []batchRequest
	titles map[string]string
}

func newRequestBuilder(system string, cfg Config) *requestBuilder {
	return &requestBuilder{
		system:      system,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		titles:      make(map[string]string),
	}
}

func (b *requestBuilder) Add(item promptItem) {
	id := fmt.Sprintf("request_%d", len(b.reqs))
	b.titles[id] = item.Title

	b.reqs = append(b.reqs, batchRequest{
		CustomID: id,
		Params: messageParams{
			Model:       b.model,
			MaxTokens:   b.maxTokens,
			Temperature: b.temperature,
			System: []systemBlock{{
				Type: "text",
				Text: b.system,
				// Caching hint for the shared prompt; the service is free
				// to ignore it.
				CacheControl: &cacheControl{Type: "ephemeral"},
			}},
			Messages: []chatMessage{{Role: "user", Content: item.Prompt}},
		},
	})
}

func (b *requestBuilder) Requests() []batchRequest {
	return b.reqs
}

func (b *requestBuilder) Titles() map[string]string {
	return b.titles
}

// saveIDMap persists the correlation map so a later `results` run can name
// its output files.
func saveIDMap(path string, titles map[string]string) error {
	data, err := json.MarshalIndent(titles, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding id map: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing id map: %w", err)
	}
	return nil
}

func loadIDMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading id map: %w", err)
	}
	titles := make(map[string]string)
	if err := json.Unmarshal(data, &titles); err != nil {
		return nil, fmt.Errorf("parsing id map %s: %w", path, err)
	}
	return titles, nil
}
