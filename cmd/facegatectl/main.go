// Command facegatectl is the operator CLI: OAuth client administration,
// token issuance, audit inspection, and batch enrolment.
//
// Client and token commands act directly on the on-disk keystore and
// registry (the out-of-band admin path); user and enrolment commands go
// through the tool server like any other client.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/skyylabs/facegate/pkg/authority"
	"github.com/skyylabs/facegate/pkg/config"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

func main() {
	root := &cobra.Command{
		Use:          "facegatectl",
		Short:        "Facegate operator tooling",
		SilenceUsage: true,
	}
	root.AddCommand(clientCmd(), tokenCmd(), auditCmd(), usersCmd(), statsCmd(), enrollCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, badStyle.Render(err.Error()))
		os.Exit(1)
	}
}

// openAuthority loads the keystore and registry from the configured data
// directory.
func openAuthority() (*authority.Authority, error) {
	cfg, err := config.LoadServer()
	if err != nil {
		return nil, err
	}
	return authority.New(authority.Config{
		KeysDir:     cfg.KeysDir,
		ClientsPath: cfg.ClientsPath,
		TokenTTL:    cfg.TokenTTL,
	})
}
