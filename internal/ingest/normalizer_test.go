package ingest

import (
	"strings"
	"testing"
)

func TestResolveHref(t *testing.T) {
	page := "https://info.korea.ac.kr/info/board/notice_under.do"
	tests := []struct {
		href    string
		want    string
		wantErr bool
	}{
		{href: "?mode=view&amp;articleNo=1", want: page + "?mode=view&articleNo=1"},
		{href: "/info/board/news.do", want: "https://info.korea.ac.kr/info/board/news.do"},
		{href: "https://other.example.com/a", want: "https://other.example.com/a"},
		{href: "view.do?no=3", want: "https://info.korea.ac.kr/info/board/view.do?no=3"},
		{href: "  ", wantErr: true},
		{href: "JavaScript:goView(1)", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			got, err := ResolveHref(page, tt.href)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("got %q (%v), want %q", got, err, tt.want)
			}
		})
	}
}

func TestNormalizeBase(t *testing.T) {
	fallback := "https://info.korea.ac.kr/info/board/"
	tests := map[string]string{
		"":    fallback,
		"   ": fallback,
		"https://info.korea.ac.kr/info/board/notice_under.do": "https://info.korea.ac.kr/info/board/",
		"https://info.korea.ac.kr/info/board":                 "https://info.korea.ac.kr/info/board/",
		"https://info.korea.ac.kr/info/board///":              "https://info.korea.ac.kr/info/board/",
	}
	for in, want := range tests {
		if got := NormalizeBase(in, fallback); got != want {
			t.Errorf("NormalizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHTMLToText(t *testing.T) {
	html := `<div><p>첫 줄   공백</p><script>alert(1)</script><p>둘째<br>셋째</p></div>`
	got := HTMLToText(html)
	want := "첫 줄 공백\n둘째\n셋째"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTruncateText(t *testing.T) {
	if got := TruncateText("가나다라마바사", 5); got != "가나..." {
		t.Fatalf("got %q", got)
	}
	if got := TruncateText("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeHTML(t *testing.T) {
	out := SanitizeHTML(`<p onclick="x()">본문</p><script>bad()</script><img src="/a.png">`)
	if strings.Contains(out, "script") || strings.Contains(out, "onclick") {
		t.Fatalf("unsafe markup kept: %s", out)
	}
	if !strings.Contains(out, "본문") || !strings.Contains(out, "/a.png") {
		t.Fatalf("content dropped: %s", out)
	}
}

func TestCleanTextComposesHangul(t *testing.T) {
	decomposed := "\u1112\u1161\u11ab" // 한 as conjoining jamo
	if got := CleanText("  " + decomposed + "  글 "); got != "한 글" {
		t.Fatalf("got %q", got)
	}
}
