package enrich

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/campus-notice/internal/ingest"
	"github.com/david/campus-notice/internal/models"
)

type mockResource struct {
	contentType string
	body        []byte
}

type MockFetcher struct {
	Data map[string]mockResource
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) (*ingest.FetchedDocument, error) {
	res, ok := m.Data[url]
	if !ok {
		return nil, fmt.Errorf("mock 404: %s", url)
	}
	return &ingest.FetchedDocument{
		URL:         url,
		StatusCode:  200,
		ContentType: res.contentType,
		Body:        io.NopCloser(bytes.NewReader(res.body)),
		Headers:     make(http.Header),
	}, nil
}

func html(body string) mockResource {
	return mockResource{contentType: "text/html; charset=utf-8", body: []byte(body)}
}

// fakeEngine returns the text registered for the image width, so tests can tell
// images apart after binarization.
type fakeEngine struct {
	mu      sync.Mutex
	byWidth map[int]string
	err     error
	calls   int
}

func (f *fakeEngine) Recognize(ctx context.Context, img image.Image) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.byWidth[img.Bounds().Dx()], nil
}

func pngOfWidth(t *testing.T, w int) mockResource {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, 4))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 20, G: 20, B: 20, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return mockResource{contentType: "image/png", body: buf.Bytes()}
}

const noticeURL = "https://info.korea.ac.kr/info/board/notice_under.do?mode=view&articleNo=1"

func TestFetchDetailNoContainer(t *testing.T) {
	mock := &MockFetcher{Data: map[string]mockResource{
		noticeURL: html(`<html><body><div class="unknown-template"><p>본문</p></div></body></html>`),
	}}
	d := NewDetailFetcher(mock, nil, 0)
	body, images := d.FetchDetail(context.Background(), noticeURL)
	if body != "본문을 찾을 수 없습니다." {
		t.Fatalf("body = %q", body)
	}
	if images == nil || len(images) != 0 {
		t.Fatalf("images = %#v, want empty list", images)
	}

	e := New(d, Options{})
	sc := models.ScoredCandidate{Candidate: models.Candidate{Title: "t", Link: noticeURL}, Aligned: true, Mode: models.ScoreModeBinary, Score: 1, Reason: "YES"}
	ec := e.Enrich(context.Background(), sc)
	if ec.FullContent != "" || ec.Title != "t" || ec.Reason != "YES" {
		t.Fatalf("unexpected enriched candidate %+v", ec)
	}
}

func TestFetchDetailFetchError(t *testing.T) {
	body, images := NewDetailFetcher(&MockFetcher{}, nil, 0).FetchDetail(context.Background(), "https://x.ac.kr/missing")
	if body != ContentNotFound || len(images) != 0 {
		t.Fatalf("got %q, %v", body, images)
	}
}

func TestParseDetailPrefersSourceSelectors(t *testing.T) {
	page := `<div class="custom-body"><p>학교 전용 템플릿</p></div><div class="fr-view"><p>일반 템플릿</p></div>`
	d := NewDetailFetcher(&MockFetcher{}, nil, 0).WithSelectors([]string{".custom-body"})
	got := ParseDetail(noticeURL, []byte(page), d.selectors)
	if !got.Found || got.Body != "학교 전용 템플릿" {
		t.Fatalf("got %+v", got)
	}
}

func TestEnrichMergeOrder(t *testing.T) {
	page := `<html><body>
<div class="view-con">
  <p>AI 해커톤   참가 안내</p>
  <script>track()</script>
  <img src="/upload/poster1.png">
  <img src="/images/icon_new.gif">
  <img src="data:image/png;base64,AAAA">
  <img src="https://cdn.korea.ac.kr/poster2.png">
  <img src="/upload/poster1.png">
  <img src="/upload/empty.png">
  <img src="/upload/page.html">
</div>
</body></html>`
	mock := &MockFetcher{Data: map[string]mockResource{
		noticeURL: html(page),
		"https://info.korea.ac.kr/upload/poster1.png": pngOfWidth(t, 10),
		"https://cdn.korea.ac.kr/poster2.png":         pngOfWidth(t, 20),
		"https://info.korea.ac.kr/upload/empty.png":   pngOfWidth(t, 30),
		"https://info.korea.ac.kr/upload/page.html":   html("<p>not an image</p>"),
	}}
	engine := &fakeEngine{byWidth: map[int]string{10: "첫번째  포스터", 20: "두번째 포스터", 30: "   "}}
	e := New(NewDetailFetcher(mock, nil, 0), Options{OCR: NewOCR(mock, engine, 180, 0, 1)})

	ec := e.Enrich(context.Background(), models.ScoredCandidate{Candidate: models.Candidate{Link: noticeURL}})

	wantImages := []string{
		"https://info.korea.ac.kr/upload/poster1.png",
		"https://cdn.korea.ac.kr/poster2.png",
		"https://info.korea.ac.kr/upload/empty.png",
		"https://info.korea.ac.kr/upload/page.html",
	}
	if strings.Join(ec.Images, "|") != strings.Join(wantImages, "|") {
		t.Fatalf("images = %v", ec.Images)
	}
	want := "AI 해커톤 참가 안내\n\n[이미지 1]\n첫번째 포스터\n\n[이미지 2]\n두번째 포스터"
	if ec.FullContent != want {
		t.Fatalf("full content = %q, want %q", ec.FullContent, want)
	}
	if engine.calls != 3 {
		t.Fatalf("engine calls = %d, want 3 (non-image skipped before OCR)", engine.calls)
	}
}

func TestEnrichRespectsImageLimit(t *testing.T) {
	page := `<div class="view-con"><p>본문</p><img src="/a.png"><img src="/b.png"></div>`
	mock := &MockFetcher{Data: map[string]mockResource{
		noticeURL:                        html(page),
		"https://info.korea.ac.kr/a.png": pngOfWidth(t, 10),
		"https://info.korea.ac.kr/b.png": pngOfWidth(t, 20),
	}}
	engine := &fakeEngine{byWidth: map[int]string{10: "A", 20: "B"}}
	e := New(NewDetailFetcher(mock, nil, 0), Options{OCR: NewOCR(mock, engine, 180, 0, 2), MaxImages: 1})
	ec := e.Enrich(context.Background(), models.ScoredCandidate{Candidate: models.Candidate{Link: noticeURL}})
	if ec.FullContent != "본문\n\n[이미지 1]\nA" || len(ec.Images) != 2 {
		t.Fatalf("got %q, %v", ec.FullContent, ec.Images)
	}
}

func TestOCRFailuresReturnEmpty(t *testing.T) {
	mock := &MockFetcher{Data: map[string]mockResource{
		"https://x/doc.html":   html("<p>hi</p>"),
		"https://x/broken.png": {contentType: "image/png", body: []byte("not really a png")},
		"https://x/ok.png":     pngOfWidth(t, 8),
	}}
	failing := NewOCR(mock, &fakeEngine{err: errors.New("tesseract missing")}, 180, 0, 1)
	working := NewOCR(mock, &fakeEngine{byWidth: map[int]string{8: " 텍스트 "}}, 180, 0, 1)

	for _, u := range []string{"https://x/doc.html", "https://x/broken.png", "https://x/missing.png", "https://x/ok.png"} {
		if got := failing.Extract(context.Background(), u); got != "" {
			t.Errorf("Extract(%s) = %q, want empty", u, got)
		}
	}
	if got := working.Extract(context.Background(), "https://x/ok.png"); got != "텍스트" {
		t.Errorf("Extract = %q", got)
	}
}

// pngDeclaring rewrites the IHDR of a tiny PNG to claim w x h pixels.
func pngDeclaring(t *testing.T, w, h uint32) mockResource {
	t.Helper()
	res := pngOfWidth(t, 1)
	b := res.body
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc after 13 data bytes
	binary.BigEndian.PutUint32(b[16:20], w)
	binary.BigEndian.PutUint32(b[20:24], h)
	binary.BigEndian.PutUint32(b[29:33], crc32.ChecksumIEEE(b[12:29]))
	return res
}

func TestOCRRejectsOversizedImages(t *testing.T) {
	mock := &MockFetcher{Data: map[string]mockResource{
		"https://x/bomb.png": pngDeclaring(t, 60000, 60000),
	}}
	engine := &fakeEngine{byWidth: map[int]string{}}
	o := NewOCR(mock, engine, 180, 0, 1)

	if _, err := o.extract(context.Background(), "https://x/bomb.png"); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("err = %v, want ErrImageTooLarge", err)
	}
	if got := o.Extract(context.Background(), "https://x/bomb.png"); got != "" {
		t.Errorf("Extract = %q, want empty", got)
	}
	if engine.calls != 0 {
		t.Errorf("engine ran %d times on an oversized image", engine.calls)
	}
}

func TestBinarize(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 1))
	img.SetGray(0, 0, color.Gray{Y: 50})
	img.SetGray(1, 0, color.Gray{Y: 180})
	img.SetGray(2, 0, color.Gray{Y: 181})
	out := Binarize(img, 180)
	want := []uint8{0, 0, 255}
	for x, w := range want {
		if got := out.GrayAt(x, 0).Y; got != w {
			t.Errorf("pixel %d = %d, want %d", x, got, w)
		}
	}
}

func TestIsImage(t *testing.T) {
	pngBytes := pngOfWidth(t, 2).body
	tests := []struct {
		ct   string
		raw  []byte
		want bool
	}{
		{"image/jpeg", nil, true},
		{"text/html; charset=utf-8", pngBytes, false},
		{"application/octet-stream", pngBytes, true},
		{"", pngBytes, true},
		{"", []byte("plain"), false},
	}
	for _, tt := range tests {
		if got := isImage(tt.ct, tt.raw); got != tt.want {
			t.Errorf("isImage(%q) = %v, want %v", tt.ct, got, tt.want)
		}
	}
}

func TestFilterImages(t *testing.T) {
	got := FilterImages("https://www.ewha.ac.kr/ewha/news/notice.do", []string{
		"/upload/a.jpg", "/common/img/btn_list.gif", "emoji/smile.png", "", "/upload/a.jpg", "https://img.ewha.ac.kr/b.jpg",
	})
	want := "https://www.ewha.ac.kr/upload/a.jpg|https://img.ewha.ac.kr/b.jpg"
	if strings.Join(got, "|") != want {
		t.Fatalf("got %v", got)
	}
}

func TestCollectAttachmentLinks(t *testing.T) {
	page := `<div>
<a href="/files/guide.pdf">모집요강</a>
<a href="/cmm/fileDown.do?id=1">신청서.hwp</a>
<a href="/cmm/fileDown.do?id=2">공고문.pdf</a>
<a href="/cmm/fileDown.do?id=3">첨부파일</a>
<a href="/board/list.do">목록</a>
<a href="/files/guide.pdf">중복</a>
</div>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	got := collectAttachmentLinks("https://info.korea.ac.kr/info/board/view.do", doc)
	want := []string{
		"https://info.korea.ac.kr/files/guide.pdf",
		"https://info.korea.ac.kr/cmm/fileDown.do?id=2",
		"https://info.korea.ac.kr/cmm/fileDown.do?id=3",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %v", got)
	}
}

func TestPDFTextRejectsNonPDF(t *testing.T) {
	mock := &MockFetcher{Data: map[string]mockResource{
		"https://x/file": {contentType: "application/octet-stream", body: []byte("PK\x03\x04zip")},
	}}
	if got := NewPDFText(mock, 0).Extract(context.Background(), "https://x/file"); got != "" {
		t.Fatalf("got %q", got)
	}
	if _, err := extractPDFText([]byte("%PDF-1.4 truncated")); err == nil {
		t.Fatal("expected error for truncated pdf")
	}
}
