package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const anthropicVersion = "2023-06-01"

const statusEnded = "ended"

// Wire types for the message batches API. Only the fields this tool touches
// are modeled; everything else in the service responses is ignored.

type batchRequest struct {
	CustomID string        `json:"custom_id"`
	Params   messageParams `json:"params"`
}

type messageParams struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      []systemBlock `json:"system"`
	Messages    []chatMessage `json:"messages"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type batchJob struct {
	ID               string        `json:"id"`
	ProcessingStatus string        `json:"processing_status"`
	RequestCounts    requestCounts `json:"request_counts"`
	ResultsURL       string        `json:"results_url"`
}

func (j *batchJob) Ended() bool {
	return j.ProcessingStatus == statusEnded
}

type requestCounts struct {
	Processing int `json:"processing"`
	Succeeded  int `json:"succeeded"`
	Errored    int `json:"errored"`
	Canceled   int `json:"canceled"`
	Expired    int `json:"expired"`
}

func (c requestCounts) String() string {
	return fmt.Sprintf("processing=%d succeeded=%d errored=%d canceled=%d expired=%d",
		c.Processing, c.Succeeded, c.Errored, c.Canceled, c.Expired)
}

// batchOutcome is the per-request result. LegacyID covers result listings
// that key entries by "id" instead of "custom_id".
type batchOutcome struct {
	CustomID string        `json:"custom_id"`
	LegacyID string        `json:"id"`
	Result   outcomeResult `json:"result"`
}

func (o batchOutcome) ID() string {
	if o.CustomID != "" {
		return o.CustomID
	}
	return o.LegacyID
}

type outcomeResult struct {
	Type    string          `json:"type"` // succeeded, errored, canceled, expired
	Message *outcomeMessage `json:"message,omitempty"`
	Error   *outcomeError   `json:"error,omitempty"`
}

type outcomeMessage struct {
	Content []contentBlock `json:"content"`
}

type outcomeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// anthropicClient is a minimal hand-rolled client for the three batch
// endpoints this tool needs.
type anthropicClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

func newAnthropicClient(apiKey, baseURL string) *anthropicClient {
	return &anthropicClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		hc:      &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *anthropicClient) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}
	return req, nil
}

// CreateBatch submits the full request set as one batch job.
func (c *anthropicClient) CreateBatch(ctx context.Context, reqs []batchRequest) (*batchJob, error) {
	payload, err := json.Marshal(struct {
		Requests []batchRequest `json:"requests"`
	}{Requests: reqs})
	if err != nil {
		return nil, fmt.Errorf("encoding batch request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/v1/messages/batches", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building submit request: %w", err)
	}

	var job batchJob
	if err := c.doJSON(req, &job); err != nil {
		return nil, fmt.Errorf("submitting batch: %w", err)
	}
	return &job, nil
}

// GetBatch fetches the current status of a batch job.
func (c *anthropicClient) GetBatch(ctx context.Context, batchID string) (*batchJob, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.baseURL+"/v1/messages/batches/"+batchID, nil)
	if err != nil {
		return nil, fmt.Errorf("building status request: %w", err)
	}

	var job batchJob
	if err := c.doJSON(req, &job); err != nil {
		return nil, fmt.Errorf("fetching batch status: %w", err)
	}
	return &job, nil
}

func (c *anthropicClient) doJSON(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return httpStatusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func httpStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
}

// outcomeSource produces the per-request outcomes of an ended batch job.
// The two implementations must yield equivalent outcomes so the files on
// disk come out identical whichever one ran.
type outcomeSource interface {
	ForEach(ctx context.Context, job *batchJob, yield func(batchOutcome) error) error
}

// streamSource is the primary path: the results endpoint, decoded
// incrementally as a JSON-lines stream.
type streamSource struct {
	client *anthropicClient
}

func (s *streamSource) ForEach(ctx context.Context, job *batchJob, yield func(batchOutcome) error) error {
	url := s.client.baseURL + "/v1/messages/batches/" + job.ID + "/results"
	req, err := s.client.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building results request: %w", err)
	}

	resp, err := s.client.hc.Do(req)
	if err != nil {
		return fmt.Errorf("fetching results: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching results: %w", httpStatusError(resp))
	}

	dec := json.NewDecoder(resp.Body)
	for {
		var outcome batchOutcome
		if err := dec.Decode(&outcome); err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("decoding result stream: %w", err)
		}
		if err := yield(outcome); err != nil {
			return err
		}
	}
}

// fallbackSource is the defensive path: download the whole result listing
// from the job's results URL and parse it line by line. Strictly worse than
// streaming, kept because the structured endpoint has changed shape across
// service versions.
type fallbackSource struct {
	client *anthropicClient
}

func (s *fallbackSource) ForEach(ctx context.Context, job *batchJob, yield func(batchOutcome) error) error {
	if job.ResultsURL == "" {
		return fmt.Errorf("no results URL available")
	}

	req, err := s.client.newRequest(ctx, http.MethodGet, job.ResultsURL, nil)
	if err != nil {
		return fmt.Errorf("building download request: %w", err)
	}

	resp, err := s.client.hc.Do(req)
	if err != nil {
		return fmt.Errorf("downloading results: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading results: %w", httpStatusError(resp))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("downloading results: %w", err)
	}

	for i, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var outcome batchOutcome
		if err := json.Unmarshal([]byte(line), &outcome); err != nil {
			return fmt.Errorf("parsing result line %d: %w", i+1, err)
		}
		if err := yield(outcome); err != nil {
			return err
		}
	}
	return nil
}
