package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/david/campus-notice/internal/ai"
	"github.com/david/campus-notice/internal/enrich"
	"github.com/david/campus-notice/internal/ingest"
	"github.com/david/campus-notice/internal/logging"
	"github.com/david/campus-notice/internal/models"
)

// Options tunes an Orchestrator. Zero values take the defaults noted per field.
type Options struct {
	Threshold    *float64 // nil means 0.7; 0 keeps every scored candidate
	LookbackDays int      // used when neither request nor source sets one; 7
	// PinLookback makes LookbackDays win over the source's own lookback.
	PinLookback  bool
	BoardWorkers int // 4
	SelectMode   SelectMode
	// ListingTimeout bounds one board's listing fetch. Detail, image and backend
	// timeouts belong to their own components.
	ListingTimeout time.Duration
	Now            func() time.Time
}

// Orchestrator runs the listing, filtering, scoring, enrichment and summarization
// stages for one target URL.
type Orchestrator struct {
	threshold  float64
	resolver   *ingest.Resolver
	scorer     *ai.Scorer
	enricher   *enrich.Enricher
	summarizer *ai.Summarizer
	opts       Options
}

func NewOrchestrator(resolver *ingest.Resolver, scorer *ai.Scorer, enricher *enrich.Enricher, summarizer *ai.Summarizer, opts Options) *Orchestrator {
	threshold := 0.7
	if opts.Threshold != nil && *opts.Threshold >= 0 && !math.IsNaN(*opts.Threshold) {
		threshold = *opts.Threshold
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = ingest.DefaultLookbackDays
	}
	if opts.BoardWorkers <= 0 {
		opts.BoardWorkers = 4
	}
	if opts.SelectMode != SelectAll {
		opts.SelectMode = SelectBest
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{threshold: threshold, resolver: resolver, scorer: scorer, enricher: enricher, summarizer: summarizer, opts: opts}
}

// Sources lists the configured sources.
func (o *Orchestrator) Sources() []ingest.SourceConfig {
	return o.resolver.Sources()
}

// Outcome is the full record of one run plus its outbound response.
type Outcome struct {
	Result       models.RunResult
	Response     models.Response
	TargetURL    string
	LookbackDays int
}

// Run never returns an error: an invalid request or unknown target yields an ERROR
// outcome, and board failures are recorded on their BoardReport.
func (o *Orchestrator) Run(ctx context.Context, req Request) Outcome {
	now := o.opts.Now()
	res := models.RunResult{RunID: uuid.New(), StartedAt: now}
	out := Outcome{TargetURL: req.TargetURL}
	log := logging.For("pipeline").WithFields(logrus.Fields{"run_id": res.RunID, "target": req.TargetURL})

	fail := func(err error) Outcome {
		log.Warnf("run rejected: %v", err)
		res.Status = models.StatusError
		res.Message = err.Error()
		if errors.Is(err, ingest.ErrNoAdapter) {
			res.Message = ingest.ErrNoAdapter.Error()
		}
		res.FinishedAt = o.opts.Now()
		out.Result = res
		out.Response = BuildResponse(res, o.opts.SelectMode, res.FinishedAt)
		return out
	}

	if err := Validate(req); err != nil {
		return fail(err)
	}
	src, err := o.resolver.Resolve(req.TargetURL)
	if err != nil {
		return fail(err)
	}
	boards := src.Source.SelectBoards(req.Boards)
	if len(boards) == 0 {
		return fail(fmt.Errorf("%w: source %s has no boards", ErrInvalidRequest, src.Source.ID))
	}

	res.SourceID = src.Source.ID
	res.SourceName = src.Source.Name
	lookback := req.lookbackDays(src.Source.LookbackDays, o.opts.LookbackDays, o.opts.PinLookback)
	out.LookbackDays = lookback
	log = log.WithField("source", src.Source.ID)
	log.Infof("run started: %d boards, lookback %d days, %s mode", len(boards), lookback, o.scorer.Mode())

	run := &boardRun{
		o:        o,
		src:      src,
		profile:  req.Profile,
		lookback: lookback,
		now:      now,
		enricher: o.enricher.ForSource(src.Source.Detail.ContentSelectors),
		memo:     newRunMemo(),
	}

	reports := make([]models.BoardReport, len(boards))
	aligned := make([][]models.SummarizedCandidate, len(boards))

	var g errgroup.Group
	g.SetLimit(o.opts.BoardWorkers)
	for i, b := range boards {
		g.Go(func() error {
			reports[i], aligned[i] = run.process(ctx, i, b)
			return nil
		})
	}
	_ = g.Wait()

	var (
		all         []models.SummarizedCandidate
		boardErrors []string
	)
	for i := range reports {
		res.Scanned += reports[i].Scanned
		all = append(all, aligned[i]...)
		if reports[i].Stage == models.StageError {
			boardErrors = append(boardErrors, fmt.Sprintf("%s: %s", reports[i].Board, reports[i].Error))
			continue
		}
		reports[i].Stage = models.StageDone
	}
	res.Boards = reports
	res.Aligned = Select(all)

	switch {
	case res.Scanned == 0:
		res.Status = models.StatusNoNewPosts
	case len(res.Aligned) == 0:
		res.Status = models.StatusNoMatchingPosts
	default:
		res.Status = models.StatusSuccess
	}
	res.Message = statusMessage(res.Status, res.Scanned, len(res.Aligned), lookback, boardErrors)
	res.FinishedAt = o.opts.Now()

	log.WithFields(logrus.Fields{
		"status":  res.Status,
		"scanned": res.Scanned,
		"aligned": len(res.Aligned),
		"errors":  len(boardErrors),
	}).Infof("run finished in %s", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))

	out.Result = res
	out.Response = BuildResponse(res, o.opts.SelectMode, res.FinishedAt)
	return out
}

// boardRun holds what every board of one run shares.
type boardRun struct {
	o        *Orchestrator
	src      *ingest.ResolvedSource
	profile  models.UserProfile
	lookback int
	now      time.Time
	enricher *enrich.Enricher
	memo     *runMemo
}

// process walks one board through the stage machine. Panics are recovered into an
// ERROR report so sibling boards are unaffected.
func (r *boardRun) process(ctx context.Context, index int, board ingest.Board) (report models.BoardReport, aligned []models.SummarizedCandidate) {
	report = models.BoardReport{Board: board.Name, Stage: models.StageIdle}
	log := logging.For("pipeline").WithFields(logrus.Fields{"source": r.src.Source.ID, "board": board.Name})

	advance := func(s models.Stage) {
		report.Stage = s
		log.Debugf("stage %s", s)
	}
	failBoard := func(err error) {
		log.Errorf("board failed during %s: %v", report.Stage, err)
		report.Error = err.Error()
		report.Stage = models.StageError
		aligned = nil
	}

	defer func() {
		if p := recover(); p != nil {
			log.Errorf("panic: %v\n%s", p, debug.Stack())
			failBoard(fmt.Errorf("panic: %v", p))
		}
	}()

	advance(models.StageListing)
	listCtx, cancel := r.listingContext(ctx)
	listing, err := r.src.Adapter.FetchListing(listCtx, r.src.BaseURL, board)
	cancel()
	if err != nil {
		failBoard(fmt.Errorf("fetch listing: %w", err))
		return
	}
	if listing.Warning != "" {
		report.Warning = listing.Warning
	}
	cands, err := r.src.Adapter.ParseListing(listing, board)
	if err != nil {
		failBoard(fmt.Errorf("parse listing: %w", err))
		return
	}
	report.Listed = len(cands)

	advance(models.StageFiltering)
	window := ingest.FilterWindow(cands, r.lookback, r.now, r.src.Location)
	for i := range window {
		window[i].BoardIndex = index
	}
	report.Scanned = len(window)
	if len(window) == 0 {
		advance(models.StageAggregating)
		return
	}

	advance(models.StageScoring)
	evaluated := make([]models.ScoredCandidate, 0, len(window))
	for _, c := range window {
		v := r.memo.verdict(c.Link, func() ai.Verdict {
			return r.o.scorer.Score(ctx, r.profile, c.Title, c.Link)
		})
		evaluated = append(evaluated, v.Apply(c))
	}
	report.Evaluated = evaluated
	passing := Gate(evaluated, r.o.threshold)
	report.Aligned = len(passing)

	if len(passing) > 0 {
		advance(models.StageEnriching)
		enriched := make([]models.EnrichedCandidate, 0, len(passing))
		for _, sc := range passing {
			content := r.memo.content(sc.Link, func() models.EnrichedCandidate {
				return r.enricher.Enrich(ctx, sc)
			})
			enriched = append(enriched, models.EnrichedCandidate{
				ScoredCandidate: sc,
				FullContent:     content.FullContent,
				Images:          content.Images,
			})
		}

		advance(models.StageSummarizing)
		aligned = make([]models.SummarizedCandidate, 0, len(enriched))
		for _, ec := range enriched {
			summary := r.memo.summary(ec.Link, func() string {
				return r.o.summarizer.Summarize(ctx, r.profile, ec.Title, ec.FullContent)
			})
			aligned = append(aligned, models.SummarizedCandidate{EnrichedCandidate: ec, Summary: summary})
		}
	}

	advance(models.StageAggregating)
	log.Infof("listed %d, in window %d, aligned %d", report.Listed, report.Scanned, report.Aligned)
	return
}

func (r *boardRun) listingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.o.opts.ListingTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.o.opts.ListingTimeout)
}

// runMemo makes scoring, enrichment and summarization happen at most once per link
// within a run, even when boards cross-post the same notice.
type runMemo struct {
	mu      sync.Mutex
	entries map[string]*memoEntry
}

type memoEntry struct {
	scoreOnce   sync.Once
	verdict     ai.Verdict
	enrichOnce  sync.Once
	enriched    models.EnrichedCandidate
	summaryOnce sync.Once
	summary     string
}

func newRunMemo() *runMemo {
	return &runMemo{entries: make(map[string]*memoEntry)}
}

func (m *runMemo) entry(link string) *memoEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[link]
	if !ok {
		e = &memoEntry{}
		m.entries[link] = e
	}
	return e
}

func (m *runMemo) verdict(link string, fn func() ai.Verdict) ai.Verdict {
	e := m.entry(link)
	e.scoreOnce.Do(func() { e.verdict = fn() })
	return e.verdict
}

func (m *runMemo) content(link string, fn func() models.EnrichedCandidate) models.EnrichedCandidate {
	e := m.entry(link)
	e.enrichOnce.Do(func() { e.enriched = fn() })
	return e.enriched
}

func (m *runMemo) summary(link string, fn func() string) string {
	e := m.entry(link)
	e.summaryOnce.Do(func() { e.summary = fn() })
	return e.summary
}
