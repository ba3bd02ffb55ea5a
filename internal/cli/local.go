package cli

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/proploc14/proploc/internal/localdata"
)

func newFavouritesCmd(app func() *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "favourites",
		Aliases: []string{"favorites"},
		Short:   "Manage bookmarked listings",
	}
	cmd.AddCommand(
		newFavouritesListCmd(app),
		newFavouritesAddCmd(app),
		newFavouritesRemoveCmd(app),
	)
	return cmd
}

func newFavouritesListCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List bookmarked listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.Guard("/favourites"); err != nil {
				return err
			}

			local, err := a.localStore()
			if err != nil {
				return err
			}
			favs, err := local.ListFavourites(cmd.Context())
			if err != nil {
				return err
			}
			if len(favs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No favourites yet")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tADDED")
			for _, f := range favs {
				fmt.Fprintf(w, "%d\t%s\t%s\n", f.PropertyID, f.Title, f.AddedAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
}

func newFavouritesAddCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "add <property-id>",
		Short: "Bookmark a listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid property id %q", args[0])
			}

			a := app()
			if err := a.Guard("/favourites"); err != nil {
				return err
			}

			// Resolve the listing first so the bookmark carries its title.
			p, err := a.client.GetProperty(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("fetching property: %w", err)
			}

			local, err := a.localStore()
			if err != nil {
				return err
			}
			if err := local.AddFavourite(cmd.Context(), p.ID, p.Title); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %q to favourites\n", p.Title)
			return nil
		},
	}
}

func newFavouritesRemoveCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <property-id>",
		Short: "Remove a bookmark",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid property id %q", args[0])
			}

			a := app()
			if err := a.Guard("/favourites"); err != nil {
				return err
			}

			local, err := a.localStore()
			if err != nil {
				return err
			}
			if err := local.RemoveFavourite(cmd.Context(), id); err != nil {
				if errors.Is(err, localdata.ErrNotFound) {
					return fmt.Errorf("property %d is not in your favourites", id)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed property #%d from favourites\n", id)
			return nil
		},
	}
}

func newContactCmd(app func() *App) *cobra.Command {
	var name, email, message string

	cmd := &cobra.Command{
		Use:   "contact",
		Short: "Submit a contact inquiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.Guard("/contact"); err != nil {
				return err
			}
			if name == "" || email == "" || message == "" {
				return errors.New("--name, --email and --message are required")
			}

			local, err := a.localStore()
			if err != nil {
				return err
			}
			id, err := local.SubmitInquiry(cmd.Context(), name, email, message)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Inquiry #%d submitted, we will get back to you\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "your name")
	cmd.Flags().StringVar(&email, "email", "", "your email address")
	cmd.Flags().StringVar(&message, "message", "", "inquiry text")
	return cmd
}

func newQueriesCmd(app func() *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Review submitted inquiries (administrators only)",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List inquiries",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.Guard("/queries"); err != nil {
				return err
			}

			local, err := a.localStore()
			if err != nil {
				return err
			}
			inquiries, err := local.ListInquiries(cmd.Context())
			if err != nil {
				return err
			}
			if len(inquiries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No inquiries")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tNAME\tEMAIL\tMESSAGE")
			for _, q := range inquiries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", q.ID, q.Status, q.Name, q.Email, q.Message)
			}
			return w.Flush()
		},
	}

	resolve := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark an inquiry as handled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return queryAction(cmd, args[0], app(), func(a *App, id int64) error {
				local, err := a.localStore()
				if err != nil {
					return err
				}
				return local.ResolveInquiry(cmd.Context(), id)
			}, "Resolved")
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an inquiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return queryAction(cmd, args[0], app(), func(a *App, id int64) error {
				local, err := a.localStore()
				if err != nil {
					return err
				}
				return local.DeleteInquiry(cmd.Context(), id)
			}, "Deleted")
		},
	}

	cmd.AddCommand(list, resolve, del)
	return cmd
}

func queryAction(cmd *cobra.Command, rawID string, a *App, fn func(*App, int64) error, verb string) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid inquiry id %q", rawID)
	}
	if err := a.Guard("/queries"); err != nil {
		return err
	}
	if err := fn(a, id); err != nil {
		if errors.Is(err, localdata.ErrNotFound) {
			return fmt.Errorf("inquiry %d not found", id)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s inquiry #%d\n", verb, id)
	return nil
}
