package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kinsync/internal/model"
)

var (
	compareRefresh bool
	compareJSON    bool
)

// compareCmd represents the compare command
var compareCmd = &cobra.Command{
	Use:   "compare <person-id>",
	Short: "Compare a person's record against all linked providers",
	Long: `Compare renders a per-field diff between the local record (override
value when one is active, canonical value otherwise) and the latest cached
record from every configured or linked provider.

Comparison never fetches from providers; pass --refresh to update the
provider caches first.

Example:
  kinsync compare 12
  kinsync compare 12 --refresh
  kinsync compare 12 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(refreshCmd)

	compareCmd.Flags().BoolVar(&compareRefresh, "refresh", false, "refresh provider caches before comparing")
	compareCmd.Flags().BoolVar(&compareJSON, "json", false, "emit results as JSON")
}

func runCompare(cmd *cobra.Command, args []string) error {
	personID, err := parsePersonID(args[0])
	if err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	ctx := context.Background()

	if compareRefresh {
		providers, err := a.store.LinkedProviders(ctx, personID)
		if err != nil {
			return err
		}
		for _, provider := range providers {
			if verbose {
				fmt.Fprintf(os.Stderr, "⚙️  Refreshing %s...\n", provider)
			}
			if _, err := a.engine.Refresh(ctx, personID, provider); err != nil {
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", provider, err)
			}
		}
	}

	results, err := a.engine.Compare(ctx, personID)
	if err != nil {
		return err
	}

	if compareJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return renderComparison(results)
}

// renderComparison prints one row per field with a column per provider.
func renderComparison(results []model.ComparisonResult) error {
	providers := providerColumns(results)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprint(w, "FIELD\tLOCAL")
	for _, provider := range providers {
		fmt.Fprintf(w, "\t%s", provider)
	}
	fmt.Fprintln(w)

	for _, r := range results {
		local := r.Local
		if r.Overridden {
			local += " *"
		}
		fmt.Fprintf(w, "%s\t%s", r.Field, local)
		for _, provider := range providers {
			fmt.Fprintf(w, "\t%s", renderValue(r.Providers[provider]))
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Println("\n* overridden   = match   ! different   - missing")
	return nil
}

func providerColumns(results []model.ComparisonResult) []model.Provider {
	seen := map[model.Provider]bool{}
	var providers []model.Provider
	for _, r := range results {
		for provider := range r.Providers {
			if !seen[provider] {
				seen[provider] = true
				providers = append(providers, provider)
			}
		}
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}

func renderValue(v model.ProviderValue) string {
	switch v.Status {
	case model.StatusMatch:
		return "= " + v.Value
	case model.StatusDifferent:
		return "! " + v.Value
	case model.StatusMissingLocal:
		return "+ " + v.Value
	case model.StatusMissingProvider:
		return "-"
	default:
		return v.Value
	}
}

// refreshCmd represents the refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh <person-id> <provider>",
	Short: "Re-fetch one provider's record into the local cache",
	Long: `Refresh fetches the person's current record from the provider and
stores it as a new immutable snapshot. It never changes the canonical
record or overrides; use 'kinsync use' to apply a provider value.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		personID, err := parsePersonID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		rec, err := a.engine.Refresh(context.Background(), personID, model.Provider(args[1]))
		if err != nil {
			return err
		}
		fmt.Printf("✓ Refreshed %s record %s (%d fields, %d parent references)\n",
			rec.Provider, rec.ExternalID, len(rec.Fields), len(rec.Parents))
		return nil
	},
}
