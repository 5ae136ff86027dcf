package moderator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 0.3, req.Temperature)
		assert.Equal(t, 150, req.MaxTokens)
		assert.Equal(t, "json_object", req.ResponseFormat["type"])
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":"boom"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
		want    Classification
		wantErr bool
	}{
		{"appropriate", http.StatusOK, `{"isAppropriate":true,"reason":"fine"}`, Classification{Appropriate: true, Reason: "fine"}, false},
		{"inappropriate", http.StatusOK, `{"isAppropriate":false,"reason":"insult"}`, Classification{Appropriate: false, Reason: "insult"}, false},
		{"server error", http.StatusInternalServerError, "", Classification{}, true},
		{"malformed verdict", http.StatusOK, `not json`, Classification{}, true},
		{"missing field", http.StatusOK, `{"reason":"?"}`, Classification{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := completionServer(t, tt.status, tt.content)
			c := NewChatCompletionClassifier("openai", "test-key", srv.URL, "")

			got, err := c.Classify(context.Background(), "hello")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewChatCompletionClassifierDefaults(t *testing.T) {
	c := NewChatCompletionClassifier("groq", "k", "", "")
	assert.Equal(t, "https://api.groq.com/openai/v1", c.BaseURL)
	assert.Equal(t, "llama-3.1-8b-instant", c.Model)

	c = NewChatCompletionClassifier("openai", "k", "http://local/v1/", "custom")
	assert.Equal(t, "http://local/v1", c.BaseURL)
	assert.Equal(t, "custom", c.Model)
}

func TestClassifyWithoutKey(t *testing.T) {
	c := NewChatCompletionClassifier("openai", "", "", "")
	_, err := c.Classify(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrClassifierUnavailable)
}

type stubClassifier struct {
	result Classification
	err    error
	delay  time.Duration
	calls  int
}

func (s *stubClassifier) Classify(ctx context.Context, _ string) (Classification, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Classification{}, ctx.Err()
		}
	}
	return s.result, s.err
}

func TestGateModerate(t *testing.T) {
	tests := []struct {
		name        string
		classifier  *stubClassifier
		want        Verdict
		wantOutcome string
	}{
		{
			name:        "appropriate",
			classifier:  &stubClassifier{result: Classification{Appropriate: true}},
			want:        Verdict{Appropriate: true},
			wantOutcome: OutcomeAppropriate,
		},
		{
			name:        "inappropriate",
			classifier:  &stubClassifier{result: Classification{Appropriate: false, Reason: "slur"}},
			want:        Verdict{Appropriate: false, Reason: "slur"},
			wantOutcome: OutcomeInappropriate,
		},
		{
			name:        "classifier error fails open",
			classifier:  &stubClassifier{err: errors.New("connection refused")},
			want:        Verdict{Appropriate: true, FailOpen: true},
			wantOutcome: OutcomeFailOpen,
		},
		{
			name:        "timeout fails open",
			classifier:  &stubClassifier{result: Classification{Appropriate: false}, delay: time.Second},
			want:        Verdict{Appropriate: true, FailOpen: true},
			wantOutcome: OutcomeFailOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(tt.classifier, 50*time.Millisecond)
			got := g.Moderate(context.Background(), "some text")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOutcome, got.Outcome())
			assert.Equal(t, 1, tt.classifier.calls)
		})
	}
}

func TestGateFailsOpenOnHTTPFailure(t *testing.T) {
	srv := completionServer(t, http.StatusBadGateway, "")
	g := NewGate(NewChatCompletionClassifier("openai", "test-key", srv.URL, ""), time.Second)

	v := g.Moderate(context.Background(), "hello")
	assert.True(t, v.Appropriate)
	assert.True(t, v.FailOpen)
}
