// Package intent classifies a transcribed user response as yes, no, or
// unclear.
//
// The primary path asks a local LLM, with a short deadline; its output is
// mapped to a verdict by a deterministic parser. When the model is
// unreachable, times out, or replies with something unparseable, the
// oracle falls back to plain keyword matching. The LLM can therefore make
// the oracle smarter, but never make it less predictable.
//
// Destructive flows call [Oracle.ClassifyDestructive], which treats
// Unclear as Negative: a deletion never proceeds on an ambiguous answer.
package intent

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Verdict is the classification result.
type Verdict int

const (
	Unclear Verdict = iota
	Affirmative
	Negative
)

func (v Verdict) String() string {
	switch v {
	case Affirmative:
		return "affirmative"
	case Negative:
		return "negative"
	default:
		return "unclear"
	}
}

// DefaultTimeout bounds the LLM round trip.
const DefaultTimeout = 5 * time.Second

// Default keyword sets for the deterministic fallback. Overridable per
// oracle for locale tuning.
var (
	DefaultYesKeywords = []string{"yes", "yeah", "yep", "yup", "sure", "correct", "right", "ok", "okay", "affirmative", "confirm", "please do"}
	DefaultNoKeywords  = []string{"no", "nope", "nah", "wrong", "incorrect", "negative", "cancel", "stop", "don't", "do not"}
)

// Provider is the text-in/text-out oracle backend.
type Provider interface {
	// Complete returns the model's reply to the system+user prompt pair.
	Complete(ctx context.Context, system, user string) (string, error)
}

// Oracle classifies utterances.
type Oracle struct {
	provider Provider
	timeout  time.Duration
	yes      []string
	no       []string
	log      zerolog.Logger
}

// Options configures an Oracle. A nil Provider skips the LLM entirely and
// classifies by keywords alone.
type Options struct {
	Provider    Provider
	Timeout     time.Duration
	YesKeywords []string
	NoKeywords  []string
	Logger      zerolog.Logger
}

// New builds an oracle.
func New(opts Options) *Oracle {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if len(opts.YesKeywords) == 0 {
		opts.YesKeywords = DefaultYesKeywords
	}
	if len(opts.NoKeywords) == 0 {
		opts.NoKeywords = DefaultNoKeywords
	}
	return &Oracle{
		provider: opts.Provider,
		timeout:  opts.Timeout,
		yes:      opts.YesKeywords,
		no:       opts.NoKeywords,
		log:      opts.Logger,
	}
}

const systemPrompt = `You classify a voice assistant user's reply to a yes/no question.
Respond with a JSON object of exactly this shape: {"answer": "yes"} or {"answer": "no"} or {"answer": "unclear"}.
Respond with JSON only, no explanation.`

// Classify maps an utterance to a verdict. An empty utterance is Unclear
// without consulting the model.
func (o *Oracle) Classify(ctx context.Context, utterance string) Verdict {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return Unclear
	}

	if o.provider != nil {
		llmCtx, cancel := context.WithTimeout(ctx, o.timeout)
		reply, err := o.provider.Complete(llmCtx, systemPrompt, utterance)
		cancel()
		if err == nil {
			if v, ok := parseVerdict(reply); ok {
				o.log.Debug().Str("utterance", utterance).Str("verdict", v.String()).Msg("llm verdict")
				return v
			}
			o.log.Debug().Str("reply", reply).Msg("unparseable llm reply; falling back to keywords")
		} else {
			o.log.Debug().Err(err).Msg("llm unavailable; falling back to keywords")
		}
	}

	return o.keywordVerdict(utterance)
}

// ClassifyDestructive is Classify with the safety rule for destructive
// actions applied: Unclear becomes Negative.
func (o *Oracle) ClassifyDestructive(ctx context.Context, utterance string) Verdict {
	if v := o.Classify(ctx, utterance); v == Affirmative {
		return Affirmative
	}
	return Negative
}

// keywordVerdict scans the utterance for the first yes/no keyword hit.
// When both sets match, the earlier hit wins; neither matching is Unclear.
func (o *Oracle) keywordVerdict(utterance string) Verdict {
	norm := " " + strings.ToLower(utterance) + " "

	firstHit := func(keywords []string) int {
		best := -1
		for _, kw := range keywords {
			if i := strings.Index(norm, " "+kw+" "); i >= 0 && (best == -1 || i < best) {
				best = i
			}
		}
		return best
	}

	yesAt := firstHit(o.yes)
	noAt := firstHit(o.no)
	switch {
	case yesAt >= 0 && (noAt < 0 || yesAt < noAt):
		return Affirmative
	case noAt >= 0:
		return Negative
	default:
		return Unclear
	}
}
