package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/david/campus-notice/internal/logging"
	"github.com/david/campus-notice/internal/models"
)

// InsufficientContent is returned instead of a summary when there is too little text.
const InsufficientContent = "요약할 본문 내용이 충분하지 않습니다."

const (
	defaultMinContent = 50
	maxSummaryInput   = 6000
	fallbackRunes     = 300
)

const summarySystem = "You summarize Korean university notices for students. Answer in Korean plain text without markdown."

// Summarizer condenses deep-fetched notice content.
type Summarizer struct {
	backend    Backend
	minContent int
	timeout    time.Duration
}

func NewSummarizer(backend Backend, minContent int, timeout time.Duration) *Summarizer {
	if minContent <= 0 {
		minContent = defaultMinContent
	}
	return &Summarizer{backend: backend, minContent: minContent, timeout: timeout}
}

// Summarize returns a short summary biased toward the profile's interests. Content
// shorter than the minimum skips the backend. Backend failures fall back to the
// leading part of the content.
func (s *Summarizer) Summarize(ctx context.Context, profile models.UserProfile, title, fullContent string) string {
	content := strings.TrimSpace(fullContent)
	if utf8.RuneCountInString(content) < s.minContent {
		return InsufficientContent
	}
	if s.backend == nil || !s.backend.Enabled() {
		return leadingText(content, fallbackRunes)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res := Normalize(s.backend.Complete(ctx, Prompt{
		System: summarySystem,
		User:   summaryPrompt(profile, title, leadingText(content, maxSummaryInput)),
	}))
	if res.Kind != KindText {
		logging.For("summarizer").WithField("title", title).Warnf("summary unavailable (%s): %v", res.Kind, res.Err)
		return leadingText(content, fallbackRunes)
	}
	return strings.TrimSpace(stripFences(res.Text))
}

func summaryPrompt(profile models.UserProfile, title, content string) string {
	var b strings.Builder
	b.WriteString("다음 공지를 3~5문장으로 요약해 주세요. 신청 기간, 대상, 방법이 있으면 반드시 포함하세요.\n")
	if interests := profile.Interests(); len(interests) > 0 {
		fmt.Fprintf(&b, "독자의 관심 분야는 %s 입니다. 이와 관련된 내용을 우선해서 요약하세요.\n", strings.Join(interests, ", "))
	} else if major := strings.TrimSpace(profile.Major); major != "" {
		fmt.Fprintf(&b, "독자의 전공은 %s 입니다. 전공과 관련된 내용을 우선해서 요약하세요.\n", major)
	}
	fmt.Fprintf(&b, "\n제목: %s\n\n본문:\n%s", title, content)
	return b.String()
}

func leadingText(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes]) + "..."
}
