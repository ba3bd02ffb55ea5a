package cli

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/proploc14/proploc/internal/apiclient"
)

func newPropertiesCmd(app func() *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "properties",
		Short: "Browse and manage property listings",
	}
	cmd.AddCommand(
		newPropertiesListCmd(app),
		newPropertiesGetCmd(app),
		newPropertiesPostCmd(app),
		newPropertiesDeleteCmd(app),
	)
	return cmd
}

func newPropertiesListCmd(app func() *App) *cobra.Command {
	var filter apiclient.PropertyFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List property listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.Guard("/properties"); err != nil {
				return err
			}

			props, err := a.client.ListProperties(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("listing properties: %w", err)
			}
			if len(props) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No properties found")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tTYPE\tLOCATION\tPRICE")
			for _, p := range props {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.Title, p.PropertyType, p.Location, p.Price)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&filter.Type, "type", "", "filter by property type (APARTMENT, HOUSE, CONDO, LAND, COMMERCIAL)")
	cmd.Flags().StringVar(&filter.Location, "location", "", "filter by exact location")
	cmd.Flags().StringVar(&filter.MinPrice, "min-price", "", "minimum price")
	cmd.Flags().StringVar(&filter.MaxPrice, "max-price", "", "maximum price")
	cmd.Flags().StringVar(&filter.Search, "search", "", "search title, description and location")
	cmd.Flags().StringVar(&filter.Ordering, "order", "", "ordering field (price, created_at; prefix - to reverse)")
	return cmd
}

func newPropertiesGetCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid property id %q", args[0])
			}

			a := app()
			if err := a.Guard(fmt.Sprintf("/properties/%d", id)); err != nil {
				return err
			}

			p, err := a.client.GetProperty(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("fetching property: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (#%d)\n", p.Title, p.ID)
			fmt.Fprintf(out, "Type:     %s\n", p.PropertyType)
			fmt.Fprintf(out, "Price:    %s\n", p.Price)
			fmt.Fprintf(out, "Location: %s\n", p.Location)
			if p.Owner != nil {
				fmt.Fprintf(out, "Owner:    %s\n", p.Owner.Username)
			}
			if len(p.Amenities) > 0 {
				names := make([]string, len(p.Amenities))
				for i, am := range p.Amenities {
					names[i] = am.Name
				}
				fmt.Fprintf(out, "Amenities: %s\n", strings.Join(names, ", "))
			}
			if p.Description != "" {
				fmt.Fprintf(out, "\n%s\n", p.Description)
			}
			return nil
		},
	}
}

func newPropertiesPostCmd(app func() *App) *cobra.Command {
	var in apiclient.PropertyInput
	var amenityIDs []int64

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a new listing (administrators only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.Guard("/post-property"); err != nil {
				return err
			}
			if in.Title == "" || in.Price == "" || in.Location == "" || in.PropertyType == "" {
				return fmt.Errorf("--title, --price, --location and --type are required")
			}

			in.AmenityIDs = amenityIDs
			p, err := a.client.CreateProperty(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("posting property: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Posted %q as #%d\n", p.Title, p.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Title, "title", "", "listing title")
	cmd.Flags().StringVar(&in.Description, "description", "", "listing description")
	cmd.Flags().StringVar(&in.Price, "price", "", "asking price")
	cmd.Flags().StringVar(&in.Location, "location", "", "street address or area")
	cmd.Flags().StringVar(&in.PropertyType, "type", "", "property type (APARTMENT, HOUSE, CONDO, LAND, COMMERCIAL)")
	cmd.Flags().StringSliceVar(&in.Images, "image", nil, "image URL (repeatable)")
	cmd.Flags().Int64SliceVar(&amenityIDs, "amenity", nil, "amenity ID (repeatable)")
	return cmd
}

func newPropertiesDeleteCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid property id %q", args[0])
			}

			a := app()
			if err := a.Guard(fmt.Sprintf("/properties/%d", id)); err != nil {
				return err
			}

			if err := a.client.DeleteProperty(cmd.Context(), id); err != nil {
				return fmt.Errorf("deleting property: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted property #%d\n", id)
			return nil
		},
	}
}
