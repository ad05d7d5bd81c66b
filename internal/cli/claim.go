package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kinsync/internal/model"
)

// claimCmd represents the claim command
var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Manage multi-valued claims (aliases, occupations)",
	Long: `Claims are multi-valued facts that never supersede each other: a person
can hold several aliases and occupations at once. Your own claims live next
to provider-sourced ones; 'kinsync use claims' regenerates the provider side
without touching yours.`,
}

var claimAddCmd = &cobra.Command{
	Use:   "add <person-id> <alias|occupation> <value>",
	Short: "Add a user claim",
	Long: `Add a user-sourced claim.

Example:
  kinsync claim add 12 alias "Anka Kellerova"
  kinsync claim add 12 occupation "miller"`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		personID, err := parsePersonID(args[0])
		if err != nil {
			return err
		}
		predicate, err := parsePredicate(args[1])
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		ctx := context.Background()

		if _, err := a.store.GetPerson(ctx, personID); err != nil {
			return err
		}
		id, err := a.store.AddClaim(ctx, &model.Claim{
			PersonID:  personID,
			Predicate: predicate,
			Value:     args[2],
			Source:    model.SourceUser,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Added %s claim %d: %q\n", predicate, id, args[2])
		return nil
	},
}

var claimRmCmd = &cobra.Command{
	Use:   "rm <claim-id>",
	Short: "Remove a user claim",
	Long: `Remove one of your own claims by id (see 'kinsync claim list').
Provider-sourced claims cannot be removed individually; they are
regenerated by 'kinsync use claims'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		claimID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid claim id %q", args[0])
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		if err := a.store.DeleteUserClaim(context.Background(), claimID); err != nil {
			return err
		}
		fmt.Printf("✓ Removed claim %d\n", claimID)
		return nil
	},
}

var claimListCmd = &cobra.Command{
	Use:   "list <person-id>",
	Short: "List a person's claims",
	Args:  cobra.ExactArgs(1),
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
		ctx := context.Background()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPREDICATE\tVALUE\tSOURCE")
		for _, predicate := range []string{model.PredicateAlias, model.PredicateOccupation} {
			claims, err := a.store.Claims(ctx, personID, predicate)
			if err != nil {
				return err
			}
			for _, c := range claims {
				source := string(c.Source)
				if c.Provider != "" {
					source = string(c.Provider)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.Predicate, c.Value, source)
			}
		}
		return w.Flush()
	},
}

func parsePredicate(raw string) (string, error) {
	switch raw {
	case model.PredicateAlias, model.PredicateOccupation:
		return raw, nil
	default:
		return "", fmt.Errorf("predicate must be alias or occupation, got %q", raw)
	}
}

func init() {
	rootCmd.AddCommand(claimCmd)
	claimCmd.AddCommand(claimAddCmd)
	claimCmd.AddCommand(claimRmCmd)
	claimCmd.AddCommand(claimListCmd)
}
