package audit

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// sweep compresses closed daily files and deletes files past retention.
// Runs at startup and daily shortly after midnight.
func (s *Sink) sweep() {
	entries, err := os.ReadDir(s.opts.Dir)
	if err != nil {
		s.log.Error().Err(err).Msg("audit: retention scan")
		return
	}

	today := time.Now().Local().Format("2006-01-02")
	cutoff := time.Now().AddDate(0, 0, -s.opts.RetentionDays)

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}

		date, compressed := parseAuditName(name)
		if date == "" {
			continue
		}
		day, err := time.ParseInLocation("2006-01-02", date, time.Local)
		if err != nil {
			continue
		}

		path := filepath.Join(s.opts.Dir, name)
		switch {
		case day.Before(cutoff):
			if err := os.Remove(path); err != nil {
				s.log.Error().Err(err).Str("file", name).Msg("audit: delete expired")
			} else {
				s.log.Info().Str("file", name).Msg("audit: deleted expired log")
			}
		case !compressed && date != today:
			if err := gzipFile(path); err != nil {
				s.log.Error().Err(err).Str("file", name).Msg("audit: compress")
			} else {
				s.log.Info().Str("file", name).Msg("audit: compressed log")
			}
		}
	}
}

// parseAuditName splits "2026-03-01.log" / "2026-03-01.log.gz" into the
// date part and a compressed flag. Returns "" for foreign files.
func parseAuditName(name string) (date string, compressed bool) {
	switch {
	case strings.HasSuffix(name, ".log.gz"):
		return strings.TrimSuffix(name, ".log.gz"), true
	case strings.HasSuffix(name, ".log"):
		return strings.TrimSuffix(name, ".log"), false
	default:
		return "", false
	}
}

// gzipFile replaces path with path.gz.
func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		_ = gz.Close()
		_ = dst.Close()
		_ = os.Remove(path + ".gz")
		return err
	}
	if err := gz.Close(); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
