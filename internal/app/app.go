// Package app wires configuration into the running pipeline and its collaborators.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/david/campus-notice/internal/ai"
	"github.com/david/campus-notice/internal/auth"
	"github.com/david/campus-notice/internal/config"
	"github.com/david/campus-notice/internal/db"
	"github.com/david/campus-notice/internal/enrich"
	"github.com/david/campus-notice/internal/ingest"
	"github.com/david/campus-notice/internal/logging"
	"github.com/david/campus-notice/internal/models"
	"github.com/david/campus-notice/internal/notify"
	"github.com/david/campus-notice/internal/pipeline"
)

// App holds every long-lived component of a process.
type App struct {
	Config       *config.Config
	Orchestrator *pipeline.Orchestrator
	Auth         *auth.Service
	Store        db.RunStore
	Notifier     *notify.Notifier
	Callbacks    *notify.CallbackPoster
}

// Build constructs the App. The store is opened only when withStore is set.
func Build(ctx context.Context, cfg *config.Config, withStore bool) (*App, error) {
	log := logging.For("app")

	fetcher := NewFetcher(cfg)
	reg, err := ingest.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	resolver := ingest.NewResolver(reg, nil, ingest.AdapterDeps{
		Fetcher:  fetcher,
		Renderer: &ingest.StaticRenderer{Fetcher: fetcher},
	})

	backend, err := ai.NewBackend(ai.Options{
		Provider:         cfg.AIProvider,
		GeminiAPIKey:     cfg.GeminiAPIKey,
		GeminiModel:      cfg.GeminiModel,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenAIModel:      cfg.OpenAIModel,
		OpenAIURL:        cfg.OpenAIURL,
		OllamaHost:       cfg.OllamaHost,
		OllamaModel:      cfg.OllamaModel,
		OllamaEmbedModel: cfg.OllamaEmbedModel,
		MaxRetries:       1,
	})
	if err != nil {
		return nil, err
	}
	if !backend.Enabled() {
		log.Warnf("%s backend has no credential; every notice will score as not aligned", backend.Name())
	}
	scorer := ai.NewScorer(backend, models.ScoreMode(cfg.ScoreMode), cfg.AITimeout)
	summarizer := ai.NewSummarizer(backend, cfg.SummaryMinContent, cfg.AITimeout)

	detail := enrich.NewDetailFetcher(fetcher, nil, cfg.DetailTimeout)
	opts := enrich.Options{
		PDF:       enrich.NewPDFText(fetcher, cfg.DetailTimeout),
		MaxImages: cfg.OCRMaxImages,
	}
	if cfg.OCREnabled {
		engine := enrich.NewTesseractEngine(cfg.TesseractPath, cfg.OCRLang, cfg.OCRPSM)
		opts.OCR = enrich.NewOCR(fetcher, engine, cfg.OCRThreshold, cfg.ImageTimeout, 2)
	}
	enricher := enrich.New(detail, opts)

	orch := pipeline.NewOrchestrator(resolver, scorer, enricher, summarizer, pipeline.Options{
		Threshold:      &cfg.Threshold,
		LookbackDays:   cfg.LookbackDays,
		PinLookback:    cfg.LookbackPinned,
		BoardWorkers:   cfg.BoardWorkers,
		SelectMode:     pipeline.SelectMode(cfg.SelectMode),
		ListingTimeout: cfg.HTTPTimeout,
	})

	authSvc, err := auth.NewService(cfg.JWTSecret, cfg.AdminSecret, cfg.AdminSecretHash)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:       cfg,
		Orchestrator: orch,
		Auth:         authSvc,
		Notifier:     NewNotifier(ctx, cfg),
		Callbacks:    notify.NewCallbackPoster(cfg.FetchMaxRetries),
	}

	if withStore {
		var embedder db.Embedder
		if cfg.StoreDriver == "postgres" && cfg.OllamaEmbedModel != "" {
			embedder = ai.NewOllamaClient(cfg.OllamaHost, cfg.OllamaEmbedModel, cfg.OllamaModel)
		}
		a.Store, err = db.Open(ctx, cfg.StoreDriver, storeDSN(cfg), embedder)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	log.Infof("ready: %d sources, provider %s, score mode %s, select %s, store %s",
		len(reg.Sources), backend.Name(), cfg.ScoreMode, cfg.SelectMode, storeName(cfg, a.Store))
	return a, nil
}

// Close releases the store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// NewFetcher picks the fetch engine named by FETCH_ENGINE.
func NewFetcher(cfg *config.Config) ingest.Fetcher {
	fc := fetchConfig(cfg)
	if cfg.FetchEngine == "colly" {
		return ingest.NewCollyFetcher(fc)
	}
	return ingest.NewHTTPFetcher(fc)
}

// fetchConfig sizes the shared client's per-request ceiling to the slowest stage.
// Listing, detail and image deadlines come from each caller's context.
func fetchConfig(cfg *config.Config) ingest.FetchConfig {
	ceiling := max(cfg.HTTPTimeout, cfg.DetailTimeout, cfg.ImageTimeout)
	return ingest.FetchConfig{
		TimeoutSeconds: int((ceiling + time.Second - 1) / time.Second),
		MaxRetries:     cfg.FetchMaxRetries,
		RateLimitRPS:   cfg.FetchRPS,
	}
}

// NewNotifier builds a Notifier over the sinks whose credentials are present.
// A Notion database that fails its startup check is left out.
func NewNotifier(ctx context.Context, cfg *config.Config) *notify.Notifier {
	log := logging.For("app")
	var sinks []notify.Sink

	alimtalk := notify.NewAlimtalkSink(notify.AlimtalkConfig{
		BaseURL:   cfg.KakaoBaseURL,
		AppKey:    cfg.KakaoAppKey,
		SecretKey: cfg.KakaoSecretKey,
		SenderKey: cfg.KakaoSenderKey,
	})
	if alimtalk.Enabled() {
		sinks = append(sinks, alimtalk)
	}
	if notion := notify.NewNotionSink(cfg.NotionToken, cfg.NotionDatabaseID, nil); notion != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := notion.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Warnf("notion database unreachable, sink disabled: %v", err)
		} else {
			sinks = append(sinks, notion)
		}
	}
	if len(sinks) == 0 {
		log.Info("no notification sinks configured")
	}
	return notify.NewNotifier(cfg.KakaoTemplateCode, sinks...)
}

func storeDSN(cfg *config.Config) string {
	if cfg.StoreDriver == "sqlite" {
		return cfg.SQLitePath
	}
	return cfg.DatabaseURL
}

func storeName(cfg *config.Config, s db.RunStore) string {
	if s == nil {
		return "none"
	}
	return cfg.StoreDriver
}
