package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/david/campus-notice/internal/logging"
	"github.com/david/campus-notice/internal/models"
)

// DefaultTemplateCode is the alimtalk template registered for notice alerts.
const DefaultTemplateCode = "send-article"

// Message is one notice addressed to one recipient.
type Message struct {
	Recipient    models.Recipient
	TemplateCode string
	Params       map[string]string
	Item         models.FeedItem
}

// Ack is a sink's delivery acknowledgment.
type Ack struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
}

// Sink delivers messages to one channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) (Ack, error)
}

// TemplateParams formats the alimtalk template parameters of one notice.
func TemplateParams(sourceName, boardName string, item models.FeedItem, recipient models.Recipient) map[string]string {
	header := "[적합] " + strings.TrimSpace(sourceName)
	if boardName = strings.TrimSpace(boardName); boardName != "" {
		header += " (" + boardName + ")"
	}
	return map[string]string{
		"korean-title":  header + "\n\n" + item.Title,
		"customer-name": recipient.Name,
		"article-link":  item.OriginalURL,
	}
}

// Delivery records one send attempt.
type Delivery struct {
	Sink      string `json:"sink"`
	Board     string `json:"board"`
	Title     string `json:"title"`
	Recipient string `json:"recipient"`
	Ack       *Ack   `json:"ack,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Notifier fans notices out to every sink and recipient.
type Notifier struct {
	sinks        []Sink
	templateCode string
}

func NewNotifier(templateCode string, sinks ...Sink) *Notifier {
	if templateCode == "" {
		templateCode = DefaultTemplateCode
	}
	return &Notifier{sinks: sinks, templateCode: templateCode}
}

// Enabled reports whether any sink is configured.
func (n *Notifier) Enabled() bool { return n != nil && len(n.sinks) > 0 }

// Notify sends every item to every recipient on every sink. A failed send is recorded
// and the rest continue.
func (n *Notifier) Notify(ctx context.Context, sourceName string, items []models.FeedItem, recipients []models.Recipient) []Delivery {
	if !n.Enabled() {
		return nil
	}
	log := logging.For("notify")
	var out []Delivery
	for _, item := range items {
		for _, r := range recipients {
			msg := Message{
				Recipient:    r,
				TemplateCode: n.templateCode,
				Params:       TemplateParams(sourceName, item.Board, item, r),
				Item:         item,
			}
			for _, s := range n.sinks {
				d := Delivery{Sink: s.Name(), Board: item.Board, Title: item.Title, Recipient: r.Contact}
				ack, err := s.Send(ctx, msg)
				if err != nil {
					log.WithField("sink", s.Name()).Warnf("send %q to %s failed: %v", item.Title, r.Name, err)
					d.Error = err.Error()
				} else {
					d.Ack = &ack
				}
				out = append(out, d)
			}
		}
	}
	return out
}

func newHTTPClient(component string, maxRetries int) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = maxRetries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second
	rc.HTTPClient.Timeout = 15 * time.Second
	rc.Logger = logging.Leveled{Entry: logging.For(component)}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}

func statusError(code int, raw []byte) error {
	return fmt.Errorf("status %d: %s", code, snippet(raw))
}
