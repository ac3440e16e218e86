package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sink writes events to daily files named YYYY-MM-DD.log in Dir.
type Sink struct {
	opts SinkOptions
	log  zerolog.Logger

	ch   chan Event
	done chan struct{}
	cron *cron.Cron

	mu           sync.Mutex // guards dropped counters
	dropped      int
	lastDropNote time.Time

	closeOnce sync.Once
}

// SinkOptions configures a Sink.
type SinkOptions struct {
	// Dir is the audit directory. Required; created if absent.
	Dir string

	// QueueSize bounds the in-flight event queue. Default 1024.
	QueueSize int

	// RetentionDays controls the sweep: files older than one day are
	// gzip-compressed, files older than RetentionDays are deleted.
	// Default 30.
	RetentionDays int

	// RedactNames replaces user_name values with "[redacted]".
	RedactNames bool

	// Logger receives operational problems (write failures, drops).
	Logger zerolog.Logger
}

// NewSink opens the audit directory, starts the writer goroutine, and
// schedules the daily retention sweep just after local midnight.
func NewSink(opts SinkOptions) (*Sink, error) {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 30
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create dir: %w", err)
	}
	// Probe writability now so a bad directory fails startup, not the
	// first event.
	probe := filepath.Join(opts.Dir, ".probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return nil, fmt.Errorf("audit: dir not writable: %w", err)
	}
	_ = os.Remove(probe)

	s := &Sink{
		opts: opts,
		log:  opts.Logger,
		ch:   make(chan Event, opts.QueueSize),
		done: make(chan struct{}),
		cron: cron.New(),
	}
	go s.writeLoop()

	if _, err := s.cron.AddFunc("5 0 * * *", s.sweep); err != nil {
		return nil, fmt.Errorf("audit: schedule sweep: %w", err)
	}
	s.cron.Start()
	s.sweep()
	return s, nil
}

// Log enqueues an event. It never blocks: when the queue is full the
// event is dropped and the drop is counted.
func (s *Sink) Log(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if s.opts.RedactNames && ev.UserName != "" {
		ev.UserName = "[redacted]"
	}
	select {
	case s.ch <- ev:
	default:
		s.noteDrop()
	}
}

// Close stops the retention schedule, drains queued events, and shuts the
// writer down.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		s.cron.Stop()
		close(s.ch)
		<-s.done
	})
	return nil
}

func (s *Sink) noteDrop() {
	s.mu.Lock()
	s.dropped++
	n := s.dropped
	due := time.Since(s.lastDropNote) >= time.Minute
	if due {
		s.lastDropNote = time.Now()
		s.dropped = 0
	}
	s.mu.Unlock()

	if due {
		// A summary event about the drops, queued with best effort.
		select {
		case s.ch <- Event{
			Timestamp:      time.Now().UTC(),
			EventType:      "audit_drop_summary",
			Outcome:        OutcomeFailure,
			ClientID:       "system",
			AdditionalInfo: map[string]string{"dropped": fmt.Sprint(n)},
		}:
		default:
		}
		s.log.Warn().Int("dropped", n).Msg("audit queue saturated; events dropped")
	}
}

// writeLoop is the single writer. It owns the open file handle and
// rotates it when the local date changes.
func (s *Sink) writeLoop() {
	defer close(s.done)

	var (
		f       *os.File
		curDate string
	)
	defer func() {
		if f != nil {
			_ = f.Close()
		}
	}()

	for ev := range s.ch {
		date := ev.Timestamp.Local().Format("2006-01-02")
		if f == nil || date != curDate {
			if f != nil {
				_ = f.Close()
			}
			var err error
			f, err = os.OpenFile(s.fileFor(date), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				s.log.Error().Err(err).Msg("audit: open daily file")
				f = nil
				continue
			}
			curDate = date
		}

		line, err := json.Marshal(ev)
		if err != nil {
			s.log.Error().Err(err).Msg("audit: encode event")
			continue
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			s.log.Error().Err(err).Msg("audit: write event")
		}
	}
}

func (s *Sink) fileFor(date string) string {
	return filepath.Join(s.opts.Dir, date+".log")
}
