package research

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResearchRejectsBlankInputsWithoutNetwork(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := New(Config{Endpoint: server.URL, HTTPClient: server.Client()})

	_, err := client.Research(context.Background(), "", "key-123")
	require.ErrorIs(t, err, ErrMissingInput)

	_, err = client.Research(context.Background(), "quantum batteries", "   ")
	require.ErrorIs(t, err, ErrMissingInput)

	require.False(t, called, "blank inputs must not issue a network call")
}

func TestResearchParsesFencedAnswerAndFiltersAttributions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Contains(t, r.URL.Path, ":generateContent")
		require.Equal(t, "key-123", r.URL.Query().Get("key"))

		var payload generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload.Tools, 1, "search tool directive missing")
		require.Len(t, payload.Contents, 1)
		require.Contains(t, payload.Contents[0].Parts[0].Text, "quantum batteries")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [{
				"content": {"parts": [{"text": "` + "```json\\n" +
			`{\"topic\":\"Quantum Batteries\",\"summary\":\"They charge fast.\"}` + "\\n```" + `"}]},
				"groundingMetadata": {"groundingAttributions": [
					{"web": {"title": "Nature", "uri": "https://nature.example/qb"}},
					{"web": {"title": "No Link"}}
				]}
			}]
		}`))
	}))
	defer server.Close()

	client := New(Config{Endpoint: server.URL, HTTPClient: server.Client()})
	result, err := client.Research(context.Background(), "quantum batteries", "key-123")
	require.NoError(t, err)
	require.Equal(t, "Quantum Batteries", result.Topic)
	require.Equal(t, "They charge fast.", result.Summary)
	require.Len(t, result.Sources, 1, "attribution without a URI must be dropped")
	require.Equal(t, Source{Title: "Nature", URI: "https://nature.example/qb"}, result.Sources[0])
}

func TestResearchReportsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusForbidden)
	}))
	defer server.Close()

	client := New(Config{Endpoint: server.URL, HTTPClient: server.Client()})
	result, err := client.Research(context.Background(), "anything", "bad-key")
	require.Nil(t, result)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusForbidden, httpErr.StatusCode)
}

func TestResearchFailsOnEmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates": []}`))
	}))
	defer server.Close()

	client := New(Config{Endpoint: server.URL, HTTPClient: server.Client()})
	_, err := client.Research(context.Background(), "anything", "key-123")
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestResearchFailsOnUnparsableAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "` +
			"```json\\nnot json at all\\n```" + `"}]}}]}`))
	}))
	defer server.Close()

	client := New(Config{Endpoint: server.URL, HTTPClient: server.Client()})
	result, err := client.Research(context.Background(), "anything", "key-123")
	require.Nil(t, result)
	require.ErrorIs(t, err, ErrMalformedContent)
}

func TestResearchFailsWhenSummaryMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "{\"topic\":\"x\"}"}]}}]}`))
	}))
	defer server.Close()

	client := New(Config{Endpoint: server.URL, HTTPClient: server.Client()})
	_, err := client.Research(context.Background(), "anything", "key-123")
	require.ErrorIs(t, err, ErrMalformedContent)
}

func TestResearchAcceptsBareJSONWithSurroundingProse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "Here you go: {\"topic\":\"Fusion\",\"summary\":\"Hot.\"} enjoy"}]}}]}`))
	}))
	defer server.Close()

	client := New(Config{Endpoint: server.URL, HTTPClient: server.Client()})
	result, err := client.Research(context.Background(), "fusion", "key-123")
	require.NoError(t, err)
	require.Equal(t, "Fusion", result.Topic)
	require.Equal(t, "Hot.", result.Summary)
	require.Empty(t, result.Sources, "absent grounding metadata yields an empty source list")
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fence no newline", "```json{\"a\":1}```", `{"a":1}`},
		{"padded", "  ```json\n {\"a\":1} \n``` ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, stripFence(tt.in))
		})
	}
}

func TestDecodeAnswerPreservesSummaryWhitespaceHandling(t *testing.T) {
	topic, summary, err := decodeAnswer(`{"topic":"  T  ","summary":"  S  "}`)
	require.NoError(t, err)
	require.Equal(t, "T", topic)
	require.Equal(t, "S", summary)

	_, _, err = decodeAnswer(strings.Repeat("x", 10))
	require.ErrorIs(t, err, ErrMalformedContent)
}
