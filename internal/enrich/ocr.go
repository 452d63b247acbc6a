package enrich

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/semaphore"

	"github.com/david/campus-notice/internal/ingest"
	"github.com/david/campus-notice/internal/logging"
)

var (
	// ErrNotImage is returned when a downloaded resource is not an image.
	ErrNotImage = errors.New("not an image")
	// ErrImageTooLarge is returned for images whose declared size exceeds maxImagePixels.
	ErrImageTooLarge = errors.New("image too large")
)

const (
	maxImageBytes  = 15 << 20
	maxImagePixels = 25_000_000
)

// Engine recognizes text in a preprocessed image.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// TesseractEngine runs the tesseract CLI with the image on stdin.
type TesseractEngine struct {
	Path string
	Lang string
	PSM  int
}

func NewTesseractEngine(path, lang string, psm int) *TesseractEngine {
	if path == "" {
		path = "tesseract"
	}
	if lang == "" {
		lang = "kor+eng"
	}
	if psm <= 0 {
		psm = 6
	}
	return &TesseractEngine{Path: path, Lang: lang, PSM: psm}
}

// Recognize implements Engine.
func (t *TesseractEngine) Recognize(ctx context.Context, img image.Image) (string, error) {
	var in bytes.Buffer
	if err := png.Encode(&in, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}

	cmd := exec.CommandContext(ctx, t.Path, "stdin", "stdout", "-l", t.Lang, "--psm", strconv.Itoa(t.PSM))
	var stdout, stderr bytes.Buffer
	cmd.Stdin = &in
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return "", fmt.Errorf("tesseract timeout: %w", ctx.Err())
	}
	if err != nil {
		return "", fmt.Errorf("tesseract failed: %v (stderr=%s)", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// OCR downloads images, binarizes them and runs an Engine.
type OCR struct {
	fetcher   ingest.Fetcher
	engine    Engine
	threshold uint8
	timeout   time.Duration
	slots     *semaphore.Weighted
}

// NewOCR limits concurrent engine runs to parallel (at least one).
func NewOCR(fetcher ingest.Fetcher, engine Engine, threshold int, timeout time.Duration, parallel int) *OCR {
	if threshold < 0 || threshold > 255 {
		threshold = 180
	}
	if parallel <= 0 {
		parallel = 1
	}
	return &OCR{
		fetcher:   fetcher,
		engine:    engine,
		threshold: uint8(threshold),
		timeout:   timeout,
		slots:     semaphore.NewWeighted(int64(parallel)),
	}
}

// Extract returns the recognized text of one image, or "" on any failure.
func (o *OCR) Extract(ctx context.Context, imageURL string) string {
	text, err := o.extract(ctx, imageURL)
	if err != nil {
		logging.For("ocr").WithField("image", imageURL).Warnf("ocr skipped: %v", err)
		return ""
	}
	return text
}

func (o *OCR) extract(ctx context.Context, imageURL string) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	doc, err := o.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return "", err
	}
	defer doc.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(doc.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if !isImage(doc.ContentType, raw) {
		return "", fmt.Errorf("%w: %s", ErrNotImage, doc.ContentType)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxImagePixels {
		return "", fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	bin := Binarize(img, o.threshold)

	if err := o.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer o.slots.Release(1)

	text, err := o.engine.Recognize(ctx, bin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// isImage trusts an image/* content type and sniffs the bytes otherwise.
func isImage(contentType string, raw []byte) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if strings.HasPrefix(ct, "image/") {
		return true
	}
	if ct != "" && !strings.HasPrefix(ct, "application/octet-stream") && !strings.HasPrefix(ct, "binary/") {
		return false
	}
	return strings.HasPrefix(http.DetectContentType(raw), "image/")
}

// Binarize converts img to grayscale and maps every pixel to black or white
// around threshold.
func Binarize(img image.Image, threshold uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			if g.Y > threshold {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}
