package speech

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/skyylabs/facegate/pkg/audio"
)

// scriptRecognizer returns canned transcripts in order.
type scriptRecognizer struct {
	replies []string
	i       int
	grammar [][]string // records the grammar of each call
}

func (s *scriptRecognizer) Transcribe(_ context.Context, _ []byte, grammar []string) (string, error) {
	s.grammar = append(s.grammar, grammar)
	if s.i >= len(s.replies) {
		return "", nil
	}
	r := s.replies[s.i]
	s.i++
	return r, nil
}

func (s *scriptRecognizer) Close() error { return nil }

func TestParseGrammarShapes(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"array of phrases", `["hello facegate", "stop listening"]`, 2, false},
		{"object wrapper", `{"grammar": ["hello facegate"]}`, 0, true},
		{"nested object", `{"phrases": {"list": []}}`, 0, true},
		{"bare string", `"hello"`, 0, true},
		{"number", `42`, 0, true},
		{"empty array", `[]`, 0, true},
		{"array with non-string", `["ok", 7]`, 0, true},
		{"invalid json", `[unquoted`, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			phrases, err := ParseGrammar([]byte(tc.raw))
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidGrammarShape) {
					t.Fatalf("err = %v, want ErrInvalidGrammarShape", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseGrammar: %v", err)
			}
			if len(phrases) != tc.want {
				t.Fatalf("phrases = %v", phrases)
			}
		})
	}
}

func TestGrammarEngineConstruction(t *testing.T) {
	rec := &scriptRecognizer{}

	// The documented failure: wrapping the grammar in an object is fatal
	// at construction time.
	if _, err := NewGrammarEngineJSON(rec, []byte(`{"grammar": ["hey"]}`)); !errors.Is(err, ErrInvalidGrammarShape) {
		t.Fatalf("object grammar accepted: %v", err)
	}

	eng, err := NewGrammarEngineJSON(rec, []byte(`["hey facegate", "goodbye"]`))
	if err != nil {
		t.Fatalf("array grammar rejected: %v", err)
	}
	if g := eng.Grammar(); len(g) != 2 || g[0] != "hey facegate" {
		t.Fatalf("grammar = %v", g)
	}
}

func TestEngineModesPassGrammarThrough(t *testing.T) {
	rec := &scriptRecognizer{replies: []string{"hey facegate", "jane doe"}}

	grammarEng, err := NewGrammarEngine(rec, []string{"hey facegate"})
	if err != nil {
		t.Fatal(err)
	}
	freeEng := NewFreeFormEngine(rec)

	if _, err := grammarEng.Transcribe(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := freeEng.Transcribe(context.Background(), nil); err != nil {
		t.Fatal(err)
	}

	if rec.grammar[0] == nil || rec.grammar[0][0] != "hey facegate" {
		t.Fatalf("grammar call saw %v", rec.grammar[0])
	}
	if rec.grammar[1] != nil {
		t.Fatalf("free-form call saw grammar %v", rec.grammar[1])
	}
}

func TestWakeWordDetector(t *testing.T) {
	det := NewWakeWordDetector([]string{"Hey Facegate", "hello there"})

	cases := map[string]string{
		"hey facegate":    "hey facegate",
		"HEY FACEGATE":    "hey facegate",
		"  hello there  ": "hello there",
		"hey facegate no": "", // exact match only
		"facegate":        "",
		"":                "",
	}
	for in, want := range cases {
		if got := det.Match(in); got != want {
			t.Fatalf("Match(%q) = %q, want %q", in, got, want)
		}
	}
}

// toneDevice produces a constant-amplitude clip (loud) or zeros (quiet).
type toneDevice struct{ loud bool }

func (d *toneDevice) Capture(_ context.Context, dur time.Duration) (*audio.Buffer, error) {
	n := int(dur.Seconds() * audio.SampleRate)
	samples := make([]float32, n)
	if d.loud {
		for i := range samples {
			samples[i] = 0.25
		}
	}
	return audio.NewBuffer(samples), nil
}

type recordingTTS struct{ said []string }

func (r *recordingTTS) Speak(_ context.Context, text string) error {
	r.said = append(r.said, text)
	return nil
}
func (r *recordingTTS) Close() error { return nil }

func newTestPipeline(dev audio.InputDevice, tts Synthesizer) *Pipeline {
	arb := audio.NewArbiter(time.Millisecond)
	return NewPipeline(arb, dev, audio.NewSilenceDetector(300), tts, zerolog.Nop())
}

func TestPipelineSilenceGate(t *testing.T) {
	rec := &scriptRecognizer{replies: []string{"should never be reached"}}
	eng := NewFreeFormEngine(rec)
	p := newTestPipeline(&toneDevice{loud: false}, &recordingTTS{})

	text, err := p.Listen(context.Background(), eng, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if text != "" {
		t.Fatalf("silent capture transcribed to %q", text)
	}
	if len(rec.grammar) != 0 {
		t.Fatal("recognizer was called for a silent clip")
	}
}

func TestPipelineListenAndSay(t *testing.T) {
	rec := &scriptRecognizer{replies: []string{"hey facegate"}}
	eng := NewFreeFormEngine(rec)
	tts := &recordingTTS{}
	p := newTestPipeline(&toneDevice{loud: true}, tts)

	text, err := p.Listen(context.Background(), eng, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if text != "hey facegate" {
		t.Fatalf("text = %q", text)
	}

	if err := p.Say(context.Background(), "Welcome back."); err != nil {
		t.Fatal(err)
	}
	if len(tts.said) != 1 || tts.said[0] != "Welcome back." {
		t.Fatalf("said = %v", tts.said)
	}

	// The arbiter is idle again after both operations.
	if p.arbiter.State() != audio.StateIdle {
		t.Fatalf("arbiter state = %s", p.arbiter.State())
	}
}
