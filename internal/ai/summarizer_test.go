package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/david/campus-notice/internal/models"
)

var longContent = strings.Repeat("AI 해커톤 참가 신청은 3월 20일까지 학과 사무실에서 받습니다. ", 5)

func TestSummarizeSkipsShortContent(t *testing.T) {
	b := &fakeBackend{name: "gemini", enabled: true, reply: "요약"}
	s := NewSummarizer(b, 50, 0)
	for _, content := range []string{"", "   ", "본문을 찾을 수 없습니다."} {
		if got := s.Summarize(context.Background(), testProfile, "t", content); got != InsufficientContent {
			t.Errorf("Summarize(%q) = %q", content, got)
		}
	}
	if len(b.prompts) != 0 {
		t.Fatalf("backend called %d times for short content", len(b.prompts))
	}
}

func TestSummarizeScopesToInterests(t *testing.T) {
	b := &fakeBackend{name: "gemini", enabled: true, reply: "  해커톤 신청 안내 요약  "}
	profile := models.UserProfile{Major: "컴퓨터학과", InterestFields: []string{"AI", " 해커톤 "}}
	got := NewSummarizer(b, 50, 0).Summarize(context.Background(), profile, "해커톤", longContent)
	if got != "해커톤 신청 안내 요약" {
		t.Fatalf("summary = %q", got)
	}
	if !strings.Contains(b.prompts[0].User, "AI, 해커톤") {
		t.Fatalf("prompt not scoped to interests: %s", b.prompts[0].User)
	}
}

func TestSummarizeFallsBackOnError(t *testing.T) {
	b := &fakeBackend{name: "gemini", enabled: true, err: errors.New("quota")}
	got := NewSummarizer(b, 50, 0).Summarize(context.Background(), testProfile, "t", longContent)
	if got == "" || got == InsufficientContent || !strings.HasPrefix(longContent, strings.TrimSuffix(got, "...")) {
		t.Fatalf("unexpected fallback %q", got)
	}
}
