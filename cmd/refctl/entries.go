package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jo-hoe/refshelf/internal/backend/database"
	"github.com/jo-hoe/refshelf/internal/core"
	"github.com/spf13/cobra"
)

type entriesOptions struct {
	Email  string
	Search string
	JSON   bool
}

func addEntries(topLevel *cobra.Command, root *rootOptions) {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Inspect the entries of an account",
	}

	o := &entriesOptions{}
	list := &cobra.Command{
		Use:   "list",
		Short: "List entries, newest first",
		Example: `
refctl entries list --email artist@example.com
refctl entries list --email artist@example.com --search hands --json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer func() {
				_ = s.Close()
			}()

			entries, err := listEntries(cmd.Context(), s, o.Email, o.Search)
			if err != nil {
				return err
			}
			if o.JSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(entries)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tTAGS\tCREATED")
			for _, entry := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", entry.ID, entry.Title, strings.Join(entry.Tags, ","), entry.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&o.Email, "email", "", "Email address of the account.")
	list.Flags().StringVar(&o.Search, "search", "", "Only list entries whose title or tags contain this text.")
	list.Flags().BoolVar(&o.JSON, "json", false, "Print entries as JSON.")
	_ = list.MarkFlagRequired("email")

	cmd.AddCommand(list)
	topLevel.AddCommand(cmd)
}

func listEntries(ctx context.Context, s database.DatabaseService, email, search string) ([]*database.Entry, error) {
	user, err := s.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("no user with email %q", email)
	}

	entries, err := s.GetEntries(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return core.FilterEntries(entries, search), nil
}
