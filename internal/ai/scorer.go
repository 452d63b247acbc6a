package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/david/campus-notice/internal/logging"
	"github.com/david/campus-notice/internal/models"
)

// Reason tags for verdicts that carry no model rationale.
const (
	ReasonNoProfile      = "no-profile"
	ReasonAmbiguous      = "ambiguous"
	ReasonNoAnswer       = "no-answer"
	ReasonAnalysisFailed = "analysis failed"
)

const binarySystem = "You are an alignment checker. Respond only YES or NO."

const binaryTemplate = `Candidate profile text:
%s

Notice title: %s
Notice link: %s

Does this notice strongly align with the candidate's interests and background? Reply with exactly YES or NO.`

const scoredSystem = "You rate how relevant university notices are to a student. Respond with a single JSON object."

const scoredTemplate = `Candidate profile text:
%s

Notice title: %s
Notice link: %s

Rate how relevant this notice is to the candidate on a scale from 0.0 (unrelated) to 1.0 (must read).
Respond ONLY with a JSON object of the form {"score": 0.0, "reason": "one short sentence in Korean"}.
Do not wrap the JSON in markdown code fences.`

// Verdict is the outcome of scoring one candidate.
type Verdict struct {
	Mode    models.ScoreMode
	Score   float64
	Aligned bool
	Reason  string
}

// Apply builds the ScoredCandidate record for c.
func (v Verdict) Apply(c models.Candidate) models.ScoredCandidate {
	return models.ScoredCandidate{
		Candidate: c,
		Mode:      v.Mode,
		Score:     v.Score,
		Aligned:   v.Aligned,
		Reason:    v.Reason,
	}
}

// Scorer asks a backend whether a notice fits a profile. One mode is fixed per Scorer.
type Scorer struct {
	backend Backend
	mode    models.ScoreMode
	timeout time.Duration
}

func NewScorer(backend Backend, mode models.ScoreMode, timeout time.Duration) *Scorer {
	if mode != models.ScoreModeScored {
		mode = models.ScoreModeBinary
	}
	return &Scorer{backend: backend, mode: mode, timeout: timeout}
}

// Mode returns the scoring mode.
func (s *Scorer) Mode() models.ScoreMode { return s.mode }

func (s *Scorer) provider() string {
	if s.backend == nil {
		return "ai"
	}
	return s.backend.Name()
}

// Score never fails: backend, network and parse problems become zero verdicts with
// a reason tag.
func (s *Scorer) Score(ctx context.Context, profile models.UserProfile, title, link string) (v Verdict) {
	v = Verdict{Mode: s.mode}
	defer func() {
		if r := recover(); r != nil {
			logging.For("scorer").WithField("link", link).Errorf("panic while scoring: %v", r)
			v = Verdict{Mode: s.mode, Reason: s.provider() + "-error"}
		}
	}()

	profileText := profile.PromptText()
	if profileText == "" {
		v.Reason = ReasonNoProfile
		return v
	}
	if s.backend == nil || !s.backend.Enabled() {
		v.Reason = s.provider() + "-disabled"
		return v
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p := Prompt{System: binarySystem, User: fmt.Sprintf(binaryTemplate, profileText, title, link)}
	if s.mode == models.ScoreModeScored {
		p = Prompt{System: scoredSystem, User: fmt.Sprintf(scoredTemplate, profileText, title, link), JSON: true}
	}
	res := Normalize(s.backend.Complete(ctx, p))

	log := logging.For("scorer").WithField("link", link)
	if res.Kind == KindError {
		if !errors.Is(res.Err, ErrEmptyResponse) {
			log.Warnf("%s scoring failed: %v", s.provider(), res.Err)
		}
		v.Reason = s.errorReason(res.Err)
		return v
	}

	if s.mode == models.ScoreModeScored {
		if res.Kind != KindScoreReason {
			log.Warnf("unparseable score reply: %.120q", res.Text)
			v.Reason = ReasonAnalysisFailed
			return v
		}
		v.Score = res.Score
		v.Reason = res.Reason
		if v.Reason == "" {
			v.Reason = fmt.Sprintf("score %.2f", res.Score)
		}
		return v
	}

	answer := strings.ToUpper(strings.TrimSpace(res.Text))
	switch {
	case strings.HasPrefix(answer, "YES"):
		v.Aligned, v.Score, v.Reason = true, 1, answer
	case strings.HasPrefix(answer, "NO"):
		v.Reason = answer
	default:
		log.Warnf("reply is not YES/NO: %.120q", answer)
		v.Reason = ReasonAmbiguous
	}
	return v
}

func (s *Scorer) errorReason(err error) string {
	switch {
	case errors.Is(err, ErrBackendDisabled):
		return s.provider() + "-disabled"
	case errors.Is(err, ErrEmptyResponse):
		if s.mode == models.ScoreModeScored {
			return ReasonAnalysisFailed
		}
		return ReasonNoAnswer
	case errors.Is(err, ErrInvalidResponse):
		return s.provider() + "-invalid-response"
	default:
		return s.provider() + "-error"
	}
}

func (s *Scorer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
