package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"kinsync/internal/apply"
	"kinsync/internal/model"
)

// useCmd represents the use command
var useCmd = &cobra.Command{
	Use:   "use",
	Short: "Apply cached provider data to your records",
	Long: `Use is the only way provider data reaches your records. Each action is
explicit, single-field, and idempotent:

  value   writes the provider's cached field value as an override
  parent  creates or updates a canonical parent edge from the cached
          parent reference
  claims  replaces the provider-sourced aliases or occupations (your own
          claims are kept)

Refreshing a provider never applies anything by itself.`,
}

var useValueCmd = &cobra.Command{
	Use:   "value <person-id> <field> <provider>",
	Short: "Apply a provider's cached field value as an override",
	Args:  cobra.ExactArgs(3),
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

		ov, err := a.apply.ApplyProviderValue(context.Background(), personID, args[1], model.Provider(args[2]))
		if err != nil {
			var verr *apply.ValidationError
			if errors.As(err, &verr) {
				return fmt.Errorf("cannot apply %s: %s", verr.Field, verr.Reason)
			}
			return err
		}
		fmt.Printf("✓ Override %s = %q", ov.Field, ov.Value)
		if ov.Original != "" {
			fmt.Printf(" (was %q)", ov.Original)
		}
		fmt.Println()
		return nil
	},
}

var useParentCmd = &cobra.Command{
	Use:   "parent <person-id> <father|mother> <provider>",
	Short: "Apply a provider's cached parent reference as a canonical edge",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		personID, err := parsePersonID(args[0])
		if err != nil {
			return err
		}
		role := model.Role(args[1])
		if !role.IsParent() {
			return fmt.Errorf("role must be father or mother, got %q", args[1])
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		ctx := context.Background()

		parentID, err := a.apply.ApplyProviderParent(ctx, personID, role, model.Provider(args[2]))
		if err != nil {
			return err
		}
		parent, err := a.store.GetPerson(ctx, parentID)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Set %s of person %d to %s (id %d)\n", role, personID, parent.Name, parent.ID)
		return nil
	},
}

var useClaimsCmd = &cobra.Command{
	Use:   "claims <person-id> <provider>",
	Short: "Sync provider-sourced aliases and occupations",
	Args:  cobra.ExactArgs(2),
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

		if err := a.apply.SyncClaims(context.Background(), personID, model.Provider(args[1])); err != nil {
			return err
		}
		fmt.Printf("✓ Synced %s claims for person %d\n", args[1], personID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(useCmd)
	useCmd.AddCommand(useValueCmd)
	useCmd.AddCommand(useParentCmd)
	useCmd.AddCommand(useClaimsCmd)
}
