package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/store"
)

// newListingsCmd groups read and maintenance commands over stored listings.
func newListingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listings",
		Short: "Inspects stored listings",
	}
	cmd.AddCommand(newListingsListCmd(), newListingsGetCmd(), newListingsDeleteCmd())
	return cmd
}

func newListingsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Prints every stored listing as JSON",
		Args:  cobra.NoArgs,
		RunE: withStoredListings(func(cmd *cobra.Command, _ []string, rt *runtime) error {
			listings, err := rt.app.Store().QueryAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("query listings: %w", err)
			}
			if listings == nil {
				listings = []store.Listing{}
			}
			return writeIndented(cmd.OutOrStdout(), listings)
		}),
	}
}

func newListingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <field> <value>",
		Short: "Prints the first listing whose field equals value",
		Long: `Looks up one listing by natural_key, category, title or run_id.
Exits non-zero when nothing matches.`,
		Args: cobra.ExactArgs(2),
		RunE: withStoredListings(func(cmd *cobra.Command, args []string, rt *runtime) error {
			field, err := store.ParseField(args[0])
			if err != nil {
				return err
			}
			listing, err := rt.app.Store().QueryByField(cmd.Context(), field, args[1])
			if err != nil {
				return fmt.Errorf("query %s=%q: %w", field, args[1], err)
			}
			return writeIndented(cmd.OutOrStdout(), listing)
		}),
	}
}

func newListingsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <natural-key>",
		Short: "Removes one listing so a later crawl can store it again",
		Args:  cobra.ExactArgs(1),
		RunE: withStoredListings(func(cmd *cobra.Command, args []string, rt *runtime) error {
			err := rt.app.Store().Delete(cmd.Context(), args[0])
			switch {
			case errors.Is(err, store.ErrNotFound):
				return fmt.Errorf("listing %q: %w", args[0], err)
			case err != nil:
				return fmt.Errorf("delete listing: %w", err)
			}
			rt.logger.Info("listing deleted", zap.String("natural_key", args[0]))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return err
		}),
	}
}

// withStoredListings refuses to run against the in-memory store, which is
// always empty when a listings command starts.
func withStoredListings(fn func(cmd *cobra.Command, args []string, rt *runtime) error) func(*cobra.Command, []string) error {
	return withRuntime(func(cmd *cobra.Command, args []string, rt *runtime) error {
		if rt.cfg.DB.Ephemeral() {
			return errors.New("listings commands need a persistent store: set db.dsn to a postgres:// DSN")
		}
		return fn(cmd, args, rt)
	})
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
