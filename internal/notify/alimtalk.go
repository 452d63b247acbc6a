package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

// ErrSinkDisabled is returned by sinks without credentials.
var ErrSinkDisabled = errors.New("sink disabled")

// DefaultAlimtalkURL is the NHN Cloud KakaoTalk Bizmessage endpoint.
const DefaultAlimtalkURL = "https://api-alimtalk.cloud.toast.com"

// AlimtalkConfig holds the NHN Cloud credentials.
type AlimtalkConfig struct {
	BaseURL   string
	AppKey    string
	SecretKey string
	SenderKey string
}

// AlimtalkSink sends KakaoTalk alimtalk messages.
type AlimtalkSink struct {
	cfg    AlimtalkConfig
	client *retryablehttp.Client
}

func NewAlimtalkSink(cfg AlimtalkConfig) *AlimtalkSink {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAlimtalkURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	// a retried 5xx may have been delivered already
	return &AlimtalkSink{cfg: cfg, client: newHTTPClient("alimtalk", 1)}
}

func (s *AlimtalkSink) Name() string { return "alimtalk" }

// Enabled reports whether all three keys are set.
func (s *AlimtalkSink) Enabled() bool {
	return s.cfg.AppKey != "" && s.cfg.SecretKey != "" && s.cfg.SenderKey != ""
}

type alimtalkRecipient struct {
	RecipientNo       string            `json:"recipientNo"`
	TemplateParameter map[string]string `json:"templateParameter"`
}

type alimtalkRequest struct {
	SenderKey     string              `json:"senderKey"`
	TemplateCode  string              `json:"templateCode"`
	RecipientList []alimtalkRecipient `json:"recipientList"`
}

// Send posts one message. A 200 whose header reports isSuccessful=false is an error.
func (s *AlimtalkSink) Send(ctx context.Context, msg Message) (Ack, error) {
	if !s.Enabled() {
		return Ack{}, ErrSinkDisabled
	}
	contact := normalizeContact(msg.Recipient.Contact)
	if contact == "" {
		return Ack{}, fmt.Errorf("recipient %q has no contact number", msg.Recipient.Name)
	}

	payload, err := json.Marshal(alimtalkRequest{
		SenderKey:    s.cfg.SenderKey,
		TemplateCode: msg.TemplateCode,
		RecipientList: []alimtalkRecipient{{
			RecipientNo:       contact,
			TemplateParameter: msg.Params,
		}},
	})
	if err != nil {
		return Ack{}, fmt.Errorf("marshal alimtalk request: %w", err)
	}

	url := fmt.Sprintf("%s/alimtalk/v2.2/appkeys/%s/messages", s.cfg.BaseURL, s.cfg.AppKey)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Ack{}, err
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("X-Secret-Key", s.cfg.SecretKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return Ack{}, fmt.Errorf("alimtalk request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Ack{}, fmt.Errorf("read alimtalk response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Ack{}, statusError(resp.StatusCode, raw)
	}

	header := gjson.GetBytes(raw, "header")
	if header.Exists() && !header.Get("isSuccessful").Bool() {
		return Ack{}, fmt.Errorf("alimtalk rejected: %s (%d)", header.Get("resultMessage").String(), header.Get("resultCode").Int())
	}
	return Ack{
		ID:     gjson.GetBytes(raw, "message.requestId").String(),
		Status: "sent",
	}, nil
}

// normalizeContact keeps the digits of a phone number.
func normalizeContact(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
