package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/david/campus-notice/internal/models"
)

var testItem = models.FeedItem{
	Title:       "AI 해커톤 참가자 모집",
	Summary:     "요약",
	OriginalURL: "https://info.korea.ac.kr/info/board/notice_under.do?mode=view&articleNo=120",
	Board:       "학부공지",
	Score:       0.9,
}

func TestTemplateParams(t *testing.T) {
	got := TemplateParams("고려대 정보대 공지", "학부공지", testItem, models.Recipient{Name: "홍길동", Contact: "010-0000-0000"})
	want := map[string]string{
		"korean-title":  "[적합] 고려대 정보대 공지 (학부공지)\n\nAI 해커톤 참가자 모집",
		"customer-name": "홍길동",
		"article-link":  testItem.OriginalURL,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
	if len(got) != len(want) {
		t.Errorf("unexpected keys: %v", got)
	}

	noBoard := TemplateParams("이화여자대학교", "", testItem, models.Recipient{})
	if !strings.HasPrefix(noBoard["korean-title"], "[적합] 이화여자대학교\n\n") {
		t.Errorf("korean-title = %q", noBoard["korean-title"])
	}
}

func TestAlimtalkSend(t *testing.T) {
	var (
		gotPath   string
		gotSecret string
		gotType   string
		gotBody   alimtalkRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSecret = r.Header.Get("X-Secret-Key")
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"header":{"resultCode":0,"resultMessage":"success","isSuccessful":true},"message":{"requestId":"req-1"}}`)
	}))
	defer srv.Close()

	sink := NewAlimtalkSink(AlimtalkConfig{BaseURL: srv.URL + "/", AppKey: "app", SecretKey: "secret", SenderKey: "sender"})
	params := TemplateParams("src", "board", testItem, models.Recipient{Name: "n"})
	ack, err := sink.Send(context.Background(), Message{
		Recipient:    models.Recipient{Name: "n", Contact: "010-1234-5678"},
		TemplateCode: DefaultTemplateCode,
		Params:       params,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ack.ID != "req-1" || ack.Status != "sent" {
		t.Errorf("ack = %+v", ack)
	}
	if gotPath != "/alimtalk/v2.2/appkeys/app/messages" {
		t.Errorf("path = %s", gotPath)
	}
	if gotSecret != "secret" || gotType != "application/json;charset=UTF-8" {
		t.Errorf("headers: secret %q, content type %q", gotSecret, gotType)
	}
	if gotBody.SenderKey != "sender" || gotBody.TemplateCode != "send-article" || len(gotBody.RecipientList) != 1 {
		t.Fatalf("body = %+v", gotBody)
	}
	rcpt := gotBody.RecipientList[0]
	if rcpt.RecipientNo != "01012345678" || rcpt.TemplateParameter["article-link"] != testItem.OriginalURL {
		t.Errorf("recipient = %+v", rcpt)
	}
}

func TestAlimtalkFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"header":{"resultCode":-1000,"resultMessage":"invalid template","isSuccessful":false}}`)
	}))
	defer srv.Close()

	msg := Message{Recipient: models.Recipient{Name: "n", Contact: "01012345678"}, TemplateCode: "x"}

	if _, err := NewAlimtalkSink(AlimtalkConfig{BaseURL: srv.URL}).Send(context.Background(), msg); !errors.Is(err, ErrSinkDisabled) {
		t.Errorf("missing keys: err = %v", err)
	}

	sink := NewAlimtalkSink(AlimtalkConfig{BaseURL: srv.URL, AppKey: "a", SecretKey: "s", SenderKey: "k"})
	if _, err := sink.Send(context.Background(), msg); err == nil || !strings.Contains(err.Error(), "invalid template") {
		t.Errorf("rejected send: err = %v", err)
	}
	if _, err := sink.Send(context.Background(), Message{Recipient: models.Recipient{Name: "n", Contact: "none"}}); err == nil {
		t.Error("expected error for empty contact")
	}
}

type fakeSink struct {
	mu   sync.Mutex
	fail map[string]bool
	sent []Message
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Send(ctx context.Context, msg Message) (Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[msg.Recipient.Contact] {
		return Ack{}, errors.New("boom")
	}
	f.sent = append(f.sent, msg)
	return Ack{Status: "ok"}, nil
}

func TestNotifierFansOut(t *testing.T) {
	sink := &fakeSink{fail: map[string]bool{"bad": true}}
	n := NewNotifier("", sink)
	second := testItem
	second.Title = "두번째"

	got := n.Notify(context.Background(), "고려대", []models.FeedItem{testItem, second},
		[]models.Recipient{{Name: "a", Contact: "good"}, {Name: "b", Contact: "bad"}})

	if len(got) != 4 {
		t.Fatalf("deliveries = %d, want 4", len(got))
	}
	if got[1].Error == "" || got[0].Ack == nil {
		t.Errorf("deliveries = %+v", got)
	}
	if len(sink.sent) != 2 || sink.sent[0].TemplateCode != DefaultTemplateCode {
		t.Fatalf("sent = %+v", sink.sent)
	}
	if title := sink.sent[1].Params["korean-title"]; title != "[적합] 고려대 (학부공지)\n\n두번째" {
		t.Errorf("korean-title = %q", title)
	}

	var empty *Notifier
	if empty.Notify(context.Background(), "x", []models.FeedItem{testItem}, nil) != nil {
		t.Error("nil notifier should send nothing")
	}
}

func TestCallbackPost(t *testing.T) {
	var (
		auth string
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cb := Callback{Enabled: true, CallbackURL: srv.URL + "/hook", AuthToken: "tok"}
	resp := models.Response{Status: models.StatusSuccess, RelevanceScore: 0.9, Message: "ok", Data: testItem}
	if err := NewCallbackPoster(0).Post(context.Background(), cb, resp); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if auth != "Bearer tok" {
		t.Errorf("authorization = %q", auth)
	}
	if body["status"] != "SUCCESS" || body["relevanceScore"] != 0.9 {
		t.Errorf("body = %v", body)
	}
	if _, hasMessage := body["message"]; hasMessage {
		t.Error("callback payload should carry only status, relevanceScore and data")
	}
	data, _ := body["data"].(map[string]any)
	if data["originalUrl"] != testItem.OriginalURL {
		t.Errorf("data = %v", body["data"])
	}
}

func TestCallbackShouldFire(t *testing.T) {
	on := Callback{Enabled: true, CallbackURL: "https://example.com/hook"}
	tests := []struct {
		cb     Callback
		status models.Status
		want   bool
	}{
		{on, models.StatusSuccess, true},
		{on, models.StatusNoMatchingPosts, false},
		{on, models.StatusNoNewPosts, false},
		{Callback{CallbackURL: "https://example.com/hook"}, models.StatusSuccess, false},
		{Callback{Enabled: true}, models.StatusSuccess, false},
	}
	for i, tt := range tests {
		if got := tt.cb.ShouldFire(tt.status); got != tt.want {
			t.Errorf("case %d: ShouldFire = %v, want %v", i, got, tt.want)
		}
	}
}

// redirectTransport sends every request to a test server.
type redirectTransport struct {
	target *url.URL
}

func (rt redirectTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func TestNotionSink(t *testing.T) {
	if NewNotionSink("", "db", nil) != nil {
		t.Fatal("sink without token should be nil")
	}

	var (
		path    string
		payload map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"object":"page","id":"page-1","parent":{"type":"database_id","database_id":"db1"},"properties":{}}`)
	}))
	defer srv.Close()
	target, _ := url.Parse(srv.URL)

	sink := NewNotionSink("secret", "db1", &http.Client{Transport: redirectTransport{target: target}})
	sink.now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }

	ack, err := sink.Send(context.Background(), Message{Recipient: models.Recipient{Name: "홍길동"}, Item: testItem})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ack.ID != "page-1" {
		t.Errorf("ack = %+v", ack)
	}
	if path != "/v1/pages" {
		t.Errorf("path = %s", path)
	}
	props, _ := payload["properties"].(map[string]any)
	for _, key := range []string{"Title", "Link", "Board", "Score", "Summary", "Recipient", "Sent"} {
		if _, ok := props[key]; !ok {
			t.Errorf("missing property %s in %v", key, props)
		}
	}
}
