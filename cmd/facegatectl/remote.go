package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/skyylabs/facegate/pkg/identity"
	"github.com/skyylabs/facegate/pkg/toolclient"
)

// remoteFlags configure the tool-server session used by user-facing
// subcommands.
type remoteFlags struct {
	serverCommand string
	token         string
}

func (r *remoteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.serverCommand, "server-command", "facegate-mcp", "tool server binary to spawn")
	cmd.Flags().StringVar(&r.token, "token", os.Getenv("FACEGATE_ACCESS_TOKEN"), "access token (default $FACEGATE_ACCESS_TOKEN)")
}

func (r *remoteFlags) connect(ctx context.Context) (*toolclient.Facade, error) {
	if r.token == "" {
		return nil, fmt.Errorf("an access token is required; issue one with 'facegatectl token issue'")
	}
	return toolclient.Connect(ctx, toolclient.Options{
		ServerCommand: r.serverCommand,
		AccessToken:   r.token,
		Logger:        zerolog.Nop(),
	})
}

func usersCmd() *cobra.Command {
	var remote remoteFlags
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List registered users via the tool surface",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tools, err := remote.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = tools.Disconnect() }()

			res, err := tools.ListUsers(offset, limit)
			if err != nil {
				return err
			}
			fmt.Println(headerStyle.Render(fmt.Sprintf("%-24s %-24s %-12s %s", "USER ID", "NAME", "RECOGNIZED", "REGISTERED")))
			for _, u := range res.Users {
				fmt.Printf("%-24s %-24s %-12d %s\n",
					u.UserID, u.Name, u.RecognitionCount, u.RegisteredAt.Format("2006-01-02"))
			}
			fmt.Println(dimStyle.Render(fmt.Sprintf("%d of %d users (offset %d)", res.Count, res.Total, res.Offset)))
			return nil
		},
	}
	remote.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func statsCmd() *cobra.Command {
	var remote remoteFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics and health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tools, err := remote.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = tools.Disconnect() }()

			stats, err := tools.DatabaseStats()
			if err != nil {
				return err
			}
			snap, err := tools.HealthStatus()
			if err != nil {
				return err
			}

			fmt.Println(headerStyle.Render("Database"))
			fmt.Printf("  users: %d   dims: %d   index: %s\n", stats.Count, stats.Dims, stats.IndexType)
			fmt.Println(headerStyle.Render("Health"))
			names := make([]string, 0, len(snap.Components))
			for name := range snap.Components {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				st := snap.Components[name]
				render := okStyle
				if string(st.Status) != "healthy" {
					render = badStyle
				}
				fmt.Printf("  %-16s %s %s\n", name, render.Render(string(st.Status)), dimStyle.Render(st.Message))
			}
			fmt.Printf("  queued registrations: %d\n", snap.QueuedCount)
			return nil
		},
	}
	remote.register(cmd)
	return cmd
}

func enrollCmd() *cobra.Command {
	var remote remoteFlags
	var dir string
	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Batch-register every image in a directory",
		Long: `Registers each image file in --dir through the tool surface. The
display name is derived from the file name: "John Smith.jpg" enrolls as
"John Smith". Per-file outcomes are printed as they happen.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := os.ReadDir(dir)
			if err != nil {
				return err
			}

			tools, err := remote.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = tools.Disconnect() }()

			okCount, failCount := 0, 0
			for _, e := range entries {
				if e.IsDir() || !isImageFile(e.Name()) {
					continue
				}
				name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
				img, err := os.ReadFile(filepath.Join(dir, e.Name()))
				if err != nil {
					fmt.Printf("%s %s: %v\n", badStyle.Render("FAIL"), e.Name(), err)
					failCount++
					continue
				}
				res, err := tools.RegisterUser(name, img, nil)
				switch {
				case err != nil:
					fmt.Printf("%s %s: %v\n", badStyle.Render("FAIL"), e.Name(), err)
					failCount++
				case res.Status == identity.StatusRegistered:
					fmt.Printf("%s %s → %s\n", okStyle.Render("OK  "), e.Name(), res.User.UserID)
					okCount++
				case res.Status == identity.StatusQueued:
					fmt.Printf("%s %s queued at position %d\n", okStyle.Render("QUE "), e.Name(), res.User.QueuePosition)
					okCount++
				default:
					fmt.Printf("%s %s: %s\n", dimStyle.Render("SKIP"), e.Name(), res.Status)
				}
			}
			fmt.Println(dimStyle.Render(fmt.Sprintf("%d enrolled, %d failed", okCount, failCount)))
			return nil
		},
	}
	remote.register(cmd)
	cmd.Flags().StringVar(&dir, "dir", "", "directory of face images")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	default:
		return false
	}
}
