package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGroqClientComplete(t *testing.T) {
	var gotAuth string
	var gotReq chatCompletionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "ahoy"}},
			},
		})
	}))
	defer srv.Close()

	c := NewGroqClient(GroqConfig{APIKey: "test-key", URL: srv.URL, Model: "test-model"})

	got, err := c.Complete(context.Background(), "talk like a pirate", "alice asks: hi")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "ahoy" {
		t.Errorf("reply = %q, want ahoy", got)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("authorization = %q, want bearer token", gotAuth)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("model = %q, want test-model", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 ||
		gotReq.Messages[0].Role != "system" ||
		gotReq.Messages[1].Role != "user" {
		t.Errorf("messages = %+v, want system then user", gotReq.Messages)
	}
}

func TestGroqClientCompleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantIn  string
	}{
		{
			"endpoint error message surfaced",
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"message": "quota exceeded"},
				})
			},
			"quota exceeded",
		},
		{
			"bare non-200 status",
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				w.Write([]byte("{}"))
			},
			"502",
		},
		{
			"empty choices",
			func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"choices":[]}`))
			},
			"no choices",
		},
		{
			"malformed body",
			func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
			"decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewGroqClient(GroqConfig{URL: srv.URL})
			_, err := c.Complete(context.Background(), "sys", "prompt")
			if err == nil {
				t.Fatal("Complete: expected error")
			}
			if !strings.Contains(err.Error(), tt.wantIn) {
				t.Errorf("error %q missing %q", err, tt.wantIn)
			}
		})
	}
}
