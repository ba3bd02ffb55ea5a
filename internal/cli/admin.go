package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAmenitiesCmd(app func() *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amenities",
		Short: "Manage amenities (administrators only)",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List amenities",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.Guard("/admin"); err != nil {
				return err
			}

			amenities, err := a.client.ListAmenities(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing amenities: %w", err)
			}
			if len(amenities) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No amenities defined")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME")
			for _, am := range amenities {
				fmt.Fprintf(w, "%d\t%s\n", am.ID, am.Name)
			}
			return w.Flush()
		},
	}

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an amenity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.Guard("/admin"); err != nil {
				return err
			}

			am, err := a.client.CreateAmenity(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("adding amenity: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added amenity %q as #%d\n", am.Name, am.ID)
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an amenity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amenity id %q", args[0])
			}

			a := app()
			if err := a.Guard("/admin"); err != nil {
				return err
			}

			if err := a.client.DeleteAmenity(cmd.Context(), id); err != nil {
				return fmt.Errorf("removing amenity: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed amenity #%d\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, add, remove)
	return cmd
}

func newUsersCmd(app func() *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts (administrators only)",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.Guard("/admin"); err != nil {
				return err
			}

			users, err := a.client.ListUsers(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing users: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tSTAFF\tOWNER")
			for _, u := range users {
				fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%t\n", u.ID, u.Username, u.Email, u.IsStaff, u.IsPropertyOwner)
			}
			return w.Flush()
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			a := app()
			if err := a.Guard("/admin"); err != nil {
				return err
			}

			if err := a.client.DeleteUser(cmd.Context(), id); err != nil {
				return fmt.Errorf("deleting user: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted user #%d\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}
