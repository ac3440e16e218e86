package main

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"

	"github.com/skyylabs/facegate/pkg/config"
)

func auditCmd() *cobra.Command {
	var (
		date   string
		filter string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect audit logs, optionally filtered with a jq expression",
		Example: `  facegatectl audit --date 2026-08-05
  facegatectl audit --filter '.outcome == "denied"'
  facegatectl audit --filter '{type: .event_type, who: .user_id}'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadServer()
			if err != nil {
				return err
			}
			if date == "" {
				date = time.Now().Local().Format("2006-01-02")
			}

			var query *gojq.Query
			if filter != "" {
				query, err = gojq.Parse(filter)
				if err != nil {
					return fmt.Errorf("bad jq filter: %w", err)
				}
			}

			paths, err := auditFilesFor(cfg.AuditDir, date)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				fmt.Println(dimStyle.Render("no audit files for " + date))
				return nil
			}

			shown := 0
			for _, path := range paths {
				if err := streamAudit(path, query, limit, &shown); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to inspect, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&filter, "filter", "", "jq expression applied to each event; falsy results are skipped")
	cmd.Flags().IntVar(&limit, "limit", 200, "maximum events to print")
	return cmd
}

// auditFilesFor returns the plain and compressed files for one day.
func auditFilesFor(dir, date string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if name == date+".log" || name == date+".log.gz" {
			out = append(out, filepath.Join(dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}

func streamAudit(path string, query *gojq.Query, limit int, shown *int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() && *shown < limit {
		line := sc.Bytes()
		if query == nil {
			fmt.Println(string(line))
			*shown++
			continue
		}

		var ev any
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		iter := query.Run(ev)
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if _, isErr := v.(error); isErr || v == nil || v == false {
				continue
			}
			rendered, err := json.Marshal(v)
			if err != nil {
				continue
			}
			// A filter that returns true passes the original line through.
			if v == true {
				rendered = line
			}
			fmt.Println(string(rendered))
			*shown++
		}
	}
	return sc.Err()
}
