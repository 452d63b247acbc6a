package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	raw, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("request body is not json: %v", err)
	}
	return body
}

func TestGeminiComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-1.5-flash:generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "k" {
			t.Errorf("missing api key")
		}
		body := decodeBody(t, r)
		safety, _ := body["safetySettings"].([]any)
		if len(safety) != 4 {
			t.Errorf("expected 4 safety settings, got %d", len(safety))
		}
		for _, s := range safety {
			if s.(map[string]any)["threshold"] != "BLOCK_NONE" {
				t.Errorf("unexpected threshold %v", s)
			}
		}
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"YES"},{"text":"!"}]}}]}`)
	}))
	defer srv.Close()

	c := NewGeminiClient(srv.URL, "k", "", nil)
	got, err := c.Complete(context.Background(), Prompt{System: binarySystem, User: "q"})
	if err != nil || got != "YES!" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		body := decodeBody(t, r)
		msgs, _ := body["messages"].([]any)
		if len(msgs) != 2 || msgs[0].(map[string]any)["role"] != "system" {
			t.Errorf("unexpected messages %v", msgs)
		}
		if _, ok := body["response_format"]; !ok {
			t.Errorf("json mode not requested")
		}
		io.WriteString(w, `{"choices":[{"message":{"content":""}},{"message":{"content":"{\"score\":0.9,\"reason\":\"ok\"}"}}]}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "sk-test", "", nil)
	got, err := c.Complete(context.Background(), Prompt{System: "s", User: "u", JSON: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if score, _, ok := ParseScoreReason(got); !ok || score != 0.9 {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestOpenAIInvalidBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>gateway</html>")
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(srv.URL, "sk", "", newHTTPClient(0)).Complete(context.Background(), Prompt{User: "u"})
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("err = %v, want ErrInvalidResponse", err)
	}
}

func TestPostJSONErrorSnippetKeepsWholeRunes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "a"+strings.Repeat("요청 오류", 100))
	}))
	defer srv.Close()

	_, err := postJSON(context.Background(), newHTTPClient(0), srv.URL, nil, map[string]string{"q": "x"})
	if err == nil {
		t.Fatal("expected error for 400")
	}
	msg := err.Error()
	if !utf8.ValidString(msg) {
		t.Fatalf("error splits a rune: %q", msg)
	}
	snippet := strings.TrimPrefix(msg, "status 400: ")
	if n := utf8.RuneCountInString(snippet); n != 300 {
		t.Errorf("snippet has %d runes, want 300", n)
	}
}

func TestDisabledBackends(t *testing.T) {
	for _, b := range []Backend{NewGeminiClient("", "", "", nil), NewOpenAIClient("", "", "", nil)} {
		if b.Enabled() {
			t.Errorf("%s enabled without key", b.Name())
		}
		if _, err := b.Complete(context.Background(), Prompt{User: "u"}); !errors.Is(err, ErrBackendDisabled) {
			t.Errorf("%s err = %v", b.Name(), err)
		}
	}
}

func TestOllamaCompleteAndEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		switch r.URL.Path {
		case "/api/generate":
			if body["system"] != "sys" || body["format"] != "json" || body["stream"] != false {
				t.Errorf("unexpected generate body %v", body)
			}
			io.WriteString(w, `{"response":"{\"score\":0.1}","done":true}`)
		case "/api/embeddings":
			io.WriteString(w, `{"embedding":[0.1,0.2,0.3]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "", "")
	got, err := c.Complete(context.Background(), Prompt{System: "sys", User: "u", JSON: true})
	if err != nil || got != `{"score":0.1}` {
		t.Fatalf("got %q, %v", got, err)
	}
	vec, err := c.GenerateEmbedding(context.Background(), "공지")
	if err != nil || len(vec) != 3 {
		t.Fatalf("embedding = %v, %v", vec, err)
	}
}

func TestNewBackendRejectsUnknownProvider(t *testing.T) {
	if _, err := NewBackend(Options{Provider: "claude"}); err == nil {
		t.Fatal("expected error")
	}
	b, err := NewBackend(Options{Provider: "openai", OpenAIAPIKey: "k"})
	if err != nil || b.Name() != "openai" || !b.Enabled() {
		t.Fatalf("unexpected backend %v, %v", b, err)
	}
}
