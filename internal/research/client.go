package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultEndpoint = "https://generativelanguage.googleapis.com"
	defaultModel    = "gemini-2.0-flash"
)

// Sentinel errors the UI can classify with errors.Is.
var (
	ErrMissingInput     = errors.New("topic and API key are both required")
	ErrEmptyResponse    = errors.New("model returned no answer")
	ErrMalformedContent = errors.New("model answer is not valid JSON")
)

// HTTPError reports a non-success status from the model endpoint.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("search endpoint error: %s", e.Status)
}

// Source is one web citation grounding the generated summary.
type Source struct {
	Title string
	URI   string
}

// Result is a fully-parsed research answer. It is only produced from a
// well-formed response; a partial parse fails the whole call instead.
type Result struct {
	Topic   string
	Summary string
	Sources []Source
}

// Config describes how to build a research client.
type Config struct {
	Endpoint   string
	Model      string
	HTTPClient *http.Client
}

// Client issues search-grounded generation requests against the Gemini API.
type Client struct {
	endpoint string
	model    string
	client   *http.Client
}

// New builds a Client, filling unset fields with defaults. The zero Config
// targets the hosted endpoint with the default model and http.DefaultClient's
// transport behavior (no explicit timeout; callers cancel via context).
func New(cfg Config) *Client {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Client{endpoint: endpoint, model: model, client: client}
}

type generateRequest struct {
	Contents []requestContent `json:"contents"`
	Tools    []requestTool    `json:"tools"`
}

type requestContent struct {
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text string `json:"text"`
}

type requestTool struct {
	GoogleSearch struct{} `json:"google_search"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		GroundingMetadata struct {
			GroundingAttributions []struct {
				Web struct {
					Title string `json:"title"`
					URI   string `json:"uri"`
				} `json:"web"`
			} `json:"groundingAttributions"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
}

// Research performs exactly one generateContent call for the topic. Every
// invocation is a fresh network call; there is no cache and no retry.
func (c *Client) Research(ctx context.Context, topic, credential string) (*Result, error) {
	topic = strings.TrimSpace(topic)
	credential = strings.TrimSpace(credential)
	if topic == "" || credential == "" {
		return nil, ErrMissingInput
	}

	payload := generateRequest{
		Contents: []requestContent{{Parts: []requestPart{{Text: buildPrompt(topic)}}}},
		Tools:    []requestTool{{}},
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.endpoint, c.model, url.QueryEscape(credential))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}
	answer := strings.TrimSpace(parsed.Candidates[0].Content.Parts[0].Text)
	if answer == "" {
		return nil, ErrEmptyResponse
	}

	parsedTopic, summary, err := decodeAnswer(stripFence(answer))
	if err != nil {
		return nil, err
	}
	if parsedTopic == "" {
		parsedTopic = topic
	}

	sources := make([]Source, 0, len(parsed.Candidates[0].GroundingMetadata.GroundingAttributions))
	for _, attribution := range parsed.Candidates[0].GroundingMetadata.GroundingAttributions {
		title := strings.TrimSpace(attribution.Web.Title)
		uri := strings.TrimSpace(attribution.Web.URI)
		if title == "" || uri == "" {
			continue
		}
		sources = append(sources, Source{Title: title, URI: uri})
	}

	return &Result{Topic: parsedTopic, Summary: summary, Sources: sources}, nil
}

func buildPrompt(topic string) string {
	return "You are a meticulous research assistant. Perform a web search on the topic below " +
		"and write a dense, factual summary of the findings in 4-6 sentences.\n" +
		"Respond with STRICTLY a JSON object of the form {\"topic\":\"...\",\"summary\":\"...\"} and nothing else.\n\n" +
		"Topic: " + topic
}

// stripFence removes a wrapping markdown code fence (```json … ```) when the
// model ignores the plain-JSON instruction.
func stripFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if idx := strings.IndexByte(raw, '\n'); idx >= 0 {
			raw = raw[idx+1:]
		} else {
			raw = strings.TrimPrefix(raw, "```json")
			raw = strings.TrimPrefix(raw, "```")
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}

func decodeAnswer(raw string) (topic, summary string, err error) {
	if raw == "" {
		return "", "", fmt.Errorf("%w: empty answer", ErrMalformedContent)
	}
	candidates := []string{raw}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			candidates = append(candidates, raw[start:end+1])
		}
	}
	var lastErr error
	for _, candidate := range candidates {
		var answer struct {
			Topic   string `json:"topic"`
			Summary string `json:"summary"`
		}
		if unmarshalErr := json.Unmarshal([]byte(candidate), &answer); unmarshalErr != nil {
			lastErr = unmarshalErr
			continue
		}
		if strings.TrimSpace(answer.Summary) == "" {
			lastErr = errors.New("answer object has no summary")
			continue
		}
		return strings.TrimSpace(answer.Topic), strings.TrimSpace(answer.Summary), nil
	}
	return "", "", fmt.Errorf("%w: %v", ErrMalformedContent, lastErr)
}
