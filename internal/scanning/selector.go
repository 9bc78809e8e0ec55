package scanning

import (
	"context"
	"errors"
	"fmt"
	"image"
	"iter"
	"log/slog"
	"time"
	"unicode/utf8"
)

// ErrAllEnginesFailed is returned when no (engine, variant) trial succeeded.
var ErrAllEnginesFailed = errors.New("all OCR methods failed")

// TrialError describes one failed (engine, variant) trial. It is logged and
// never returned from Select.
type TrialError struct {
	Engine  string
	Variant string
	Err     error
}

func (e *TrialError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Engine, e.Variant, e.Err)
}

func (e *TrialError) Unwrap() error { return e.Err }

// Selection is the winning candidate of a scan.
type Selection struct {
	Candidate  *Candidate
	Score      float64
	Variant    string
	MethodUsed string
}

// Summary is the selected-candidate shape consumed downstream.
type Summary struct {
	RawText    string  `json:"raw_text"`
	Confidence float64 `json:"confidence"`
	MethodUsed string  `json:"method_used"`
}

func (s *Selection) Summary() Summary {
	return Summary{
		RawText:    s.Candidate.RawText,
		Confidence: s.Candidate.Confidence,
		MethodUsed: s.MethodUsed,
	}
}

// Score ranks a candidate by confidence times recognized character count.
func Score(c *Candidate) float64 {
	return c.Confidence * float64(utf8.RuneCountInString(c.RawText))
}

// Selector runs engines against variants and keeps the best-scoring candidate.
type Selector struct {
	engines      Engines
	trialTimeout time.Duration
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithTrialTimeout bounds every trial; a trial exceeding d counts as failed.
func WithTrialTimeout(d time.Duration) SelectorOption {
	return func(s *Selector) { s.trialTimeout = d }
}

// NewSelector creates a Selector over an already-probed engine set.
func NewSelector(engines Engines, opts ...SelectorOption) *Selector {
	s := &Selector{engines: engines}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select tries the primary engine on every variant, then the fallback engine
// only if the primary produced no candidate at all. Ties keep the earlier trial.
//
// variants must be restartable: each tier ranges over it afresh, so only one
// variant image is alive at a time.
func (s *Selector) Select(ctx context.Context, variants iter.Seq2[string, image.Image]) (*Selection, error) {
	if err := s.engines.Require(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAllEnginesFailed, err)
	}

	var best *Selection
	for _, engine := range []Engine{s.engines.Primary, s.engines.Fallback} {
		if engine == nil {
			continue
		}
		succeeded := 0
		for label, img := range variants {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			cand, err := s.trial(ctx, engine, img)
			if err != nil {
				slog.Warn("OCR trial failed", "error", &TrialError{Engine: engine.Name(), Variant: label, Err: err})
				continue
			}
			succeeded++

			score := Score(cand)
			slog.Info("OCR trial",
				"engine", engine.Name(),
				"variant", label,
				"confidence", cand.Confidence,
				"text_len", utf8.RuneCountInString(cand.RawText),
				"score", score,
			)
			if best == nil || score > best.Score {
				best = &Selection{
					Candidate:  cand,
					Score:      score,
					Variant:    label,
					MethodUsed: engine.Name() + "_" + label,
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if succeeded > 0 {
			break
		}
	}

	if best == nil {
		return nil, ErrAllEnginesFailed
	}
	slog.Info("Selected OCR result", "method", best.MethodUsed, "score", best.Score)
	return best, nil
}

type trialResult struct {
	cand *Candidate
	err  error
}

// trial runs one engine call. With a timeout the call runs on its own
// goroutine so an engine ignoring ctx cannot block the scan past the budget.
func (s *Selector) trial(ctx context.Context, engine Engine, img image.Image) (*Candidate, error) {
	parent := ctx
	if s.trialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.trialTimeout)
		defer cancel()
	}

	done := make(chan trialResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- trialResult{err: fmt.Errorf("engine panicked: %v", r)}
			}
		}()
		cand, err := engine.Recognize(ctx, img)
		done <- trialResult{cand: cand, err: err}
	}()

	var res trialResult
	select {
	case res = <-done:
	case <-ctx.Done():
		if err := parent.Err(); err != nil {
			return nil, fmt.Errorf("scan cancelled: %w", err)
		}
		return nil, fmt.Errorf("trial exceeded time budget: %w", ctx.Err())
	}
	if res.err != nil {
		return nil, res.err
	}
	if res.cand == nil {
		return nil, errors.New("engine returned no candidate")
	}
	if res.cand.Engine == "" {
		res.cand.Engine = engine.Name()
	}
	return res.cand, nil
}
