package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gnt "github.com/dstotijn/go-notion"

	"github.com/david/campus-notice/internal/ingest"
)

// NotionSink appends delivered notices to a Notion database. The database needs
// the properties Title (title), Link (url), Board (select), Score (number),
// Summary (text), Recipient (text) and Sent (date).
type NotionSink struct {
	api        *gnt.Client
	databaseID string
	now        func() time.Time
}

// NewNotionSink returns nil when token or database id is missing.
func NewNotionSink(token, databaseID string, httpClient *http.Client) *NotionSink {
	if token == "" || databaseID == "" {
		return nil
	}
	var opts []gnt.ClientOption
	if httpClient != nil {
		opts = append(opts, gnt.WithHTTPClient(httpClient))
	}
	return &NotionSink{api: gnt.NewClient(token, opts...), databaseID: databaseID, now: time.Now}
}

func (s *NotionSink) Name() string { return "notion" }

// Ping runs a one-row query to check the database is reachable.
func (s *NotionSink) Ping(ctx context.Context) error {
	_, err := s.api.QueryDatabase(ctx, s.databaseID, &gnt.DatabaseQuery{PageSize: 1})
	return err
}

func (s *NotionSink) Send(ctx context.Context, msg Message) (Ack, error) {
	props := notionProperties(msg, s.now())
	page, err := s.api.CreatePage(ctx, gnt.CreatePageParams{
		ParentType:             gnt.ParentTypeDatabase,
		ParentID:               s.databaseID,
		DatabasePageProperties: &props,
	})
	if err != nil {
		return Ack{}, fmt.Errorf("notion create page: %w", err)
	}
	return Ack{ID: page.ID, Status: "created"}, nil
}

func notionProperties(msg Message, sent time.Time) gnt.DatabasePageProperties {
	item := msg.Item
	props := gnt.DatabasePageProperties{
		"Title": gnt.DatabasePageProperty{Title: richText(item.Title)},
	}
	if item.OriginalURL != "" {
		link := item.OriginalURL
		props["Link"] = gnt.DatabasePageProperty{URL: &link}
	}
	if item.Board != "" {
		props["Board"] = gnt.DatabasePageProperty{Select: &gnt.SelectOptions{Name: selectName(item.Board)}}
	}
	score := item.Score
	props["Score"] = gnt.DatabasePageProperty{Number: &score}
	if item.Summary != "" {
		props["Summary"] = gnt.DatabasePageProperty{RichText: richText(ingest.TruncateText(item.Summary, 2000))}
	}
	if msg.Recipient.Name != "" {
		props["Recipient"] = gnt.DatabasePageProperty{RichText: richText(msg.Recipient.Name)}
	}
	props["Sent"] = gnt.DatabasePageProperty{Date: &gnt.Date{Start: gnt.NewDateTime(sent, true)}}
	return props
}

func richText(s string) []gnt.RichText {
	if s == "" {
		return nil
	}
	return []gnt.RichText{{Text: &gnt.Text{Content: s}}}
}

// selectName strips commas, which Notion rejects in select options.
func selectName(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, ",", " "))
}
