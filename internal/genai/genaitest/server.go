// Package genaitest fakes the generateContent endpoint for tests.
package genaitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mr1hm/go-civdef-map/internal/config"
	"github.com/mr1hm/go-civdef-map/internal/genai"
)

// ReplyFunc returns the HTTP status and the model text for a prompt. A
// non-200 status sends text as the error message.
type ReplyFunc func(prompt string) (status int, text string)

type Server struct {
	*httptest.Server
	calls atomic.Int64
}

func (s *Server) Calls() int64 {
	return s.calls.Load()
}

// New starts a fake endpoint and returns a client pointed at it.
func New(t *testing.T, reply ReplyFunc) (*genai.Client, *Server) {
	t.Helper()

	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)

		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		prompt := ""
		if len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
			prompt = req.Contents[0].Parts[0].Text
		}

		status, text := reply(prompt)
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"code": status, "message": text, "status": http.StatusText(status)},
			})
			return
		}

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content":      map[string]any{"role": "model", "parts": []map[string]string{{"text": text}}},
				"finishReason": "STOP",
			}},
		})
	}))
	t.Cleanup(s.Close)

	client := genai.NewClient(config.AIConfig{
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: s.URL,
	})
	return client, s
}

// JSON is a ReplyFunc that always answers with v encoded as JSON.
func JSON(v any) ReplyFunc {
	data, _ := json.Marshal(v)
	return func(string) (int, string) {
		return http.StatusOK, string(data)
	}
}
