package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func clientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Manage OAuth clients",
	}

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a new client and print its credentials once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := openAuthority()
			if err != nil {
				return err
			}
			id, secret, err := auth.Clients().Create(args[0])
			if err != nil {
				return err
			}
			fmt.Println(headerStyle.Render("Client created"))
			fmt.Printf("  client_id:     %s\n", id)
			fmt.Printf("  client_secret: %s\n", secret)
			fmt.Println(dimStyle.Render("  The secret is shown exactly once; store it now."))
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			auth, err := openAuthority()
			if err != nil {
				return err
			}
			clients := auth.Clients().List()
			if len(clients) == 0 {
				fmt.Println(dimStyle.Render("no clients registered"))
				return nil
			}
			fmt.Println(headerStyle.Render(fmt.Sprintf("%-44s %-20s %-8s %s", "CLIENT ID", "NAME", "STATE", "CREATED")))
			for _, c := range clients {
				state := okStyle.Render("enabled")
				if !c.Enabled {
					state = badStyle.Render("disabled")
				}
				fmt.Printf("%-44s %-20s %-8s %s\n",
					c.ClientID, c.Name, state, c.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	disable := &cobra.Command{
		Use:   "disable <client-id>",
		Short: "Disable a client; new tokens are refused, but a running tool server keeps its loaded client list until restart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := openAuthority()
			if err != nil {
				return err
			}
			if err := auth.Clients().Disable(args[0]); err != nil {
				return err
			}
			fmt.Println(okStyle.Render("client disabled"))
			return nil
		},
	}

	cmd.AddCommand(create, list, disable)
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Access token operations",
	}

	var (
		clientID string
		secret   string
		ttl      time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue an access token for a client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			auth, err := openAuthority()
			if err != nil {
				return err
			}
			tok, err := auth.IssueTokenTTL(clientID, secret, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	issue.Flags().StringVar(&clientID, "client-id", "", "client id")
	issue.Flags().StringVar(&secret, "client-secret", "", "client secret")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: server setting)")
	_ = issue.MarkFlagRequired("client-id")
	_ = issue.MarkFlagRequired("client-secret")

	cmd.AddCommand(issue)
	return cmd
}
