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

var (
	personName       string
	personBirthDate  string
	personBirthPlace string
	personDeathDate  string
	personDeathPlace string
)

// personCmd represents the person command
var personCmd = &cobra.Command{
	Use:   "person",
	Short: "Manage canonical person records",
}

var personAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a canonical person",
	Long: `Create a canonical person record.

Example:
  kinsync person add --name "Anna Keller" --birth-date "12 Mar 1847" --birth-place "Vienna"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if personName == "" {
			return fmt.Errorf("--name is required")
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		p, err := a.store.CreatePerson(context.Background(), &model.Person{
			Name:       personName,
			BirthDate:  personBirthDate,
			BirthPlace: personBirthPlace,
			DeathDate:  personDeathDate,
			DeathPlace: personDeathPlace,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Created person %d: %s\n", p.ID, p.Name)
		return nil
	},
}

var personShowCmd = &cobra.Command{
	Use:   "show <person-id>",
	Short: "Show a canonical person and their provider identities",
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

		p, err := a.store.GetPerson(ctx, personID)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "ID\t%d\n", p.ID)
		fmt.Fprintf(w, "Name\t%s\n", p.Name)
		if p.BirthDate != "" || p.BirthPlace != "" {
			fmt.Fprintf(w, "Born\t%s\t%s\n", p.BirthDate, p.BirthPlace)
		}
		if p.DeathDate != "" || p.DeathPlace != "" {
			fmt.Fprintf(w, "Died\t%s\t%s\n", p.DeathDate, p.DeathPlace)
		}
		for _, role := range model.ParentRoles {
			if parent, err := a.store.Parent(ctx, personID, role); err == nil {
				fmt.Fprintf(w, "%s\t%s (id %d)\n", role, parent.Name, parent.ID)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}

		providers, err := a.store.LinkedProviders(ctx, personID)
		if err != nil {
			return err
		}
		if len(providers) > 0 {
			fmt.Println("\nProvider identities:")
			for _, provider := range providers {
				ident, err := a.resolver.Resolve(ctx, personID, provider)
				if err != nil {
					continue
				}
				fmt.Printf("  %s\t%s\n", provider, ident.ExternalID)
			}
		}
		return nil
	},
}

var personListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all canonical persons",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		ctx := context.Background()

		ids, err := a.store.ListPersonIDs(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tBORN\tDIED")
		for _, id := range ids {
			p, err := a.store.GetPerson(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.ID, p.Name, p.BirthDate, p.DeathDate)
		}
		return w.Flush()
	},
}

var personEditCmd = &cobra.Command{
	Use:   "edit <person-id>",
	Short: "Edit a canonical person's fields",
	Long: `Edit canonical person fields directly. Only the flags you pass change;
everything else is kept. Overrides on a field still win over the canonical
value in comparisons.

Example:
  kinsync person edit 12 --birth-place "Vienna, Austria"`,
	Args: cobra.ExactArgs(1),
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

		p, err := a.store.GetPerson(ctx, personID)
		if err != nil {
			return err
		}

		changed := false
		apply := func(flag string, dst *string, value string) {
			if cmd.Flags().Changed(flag) {
				*dst = value
				changed = true
			}
		}
		apply("name", &p.Name, personName)
		apply("birth-date", &p.BirthDate, personBirthDate)
		apply("birth-place", &p.BirthPlace, personBirthPlace)
		apply("death-date", &p.DeathDate, personDeathDate)
		apply("death-place", &p.DeathPlace, personDeathPlace)
		if !changed {
			return fmt.Errorf("nothing to change; pass at least one field flag")
		}
		if p.Name == "" {
			return fmt.Errorf("--name must not be empty")
		}

		if err := a.store.UpdatePerson(ctx, p); err != nil {
			return err
		}
		fmt.Printf("✓ Updated person %d: %s\n", p.ID, p.Name)
		return nil
	},
}

var personParentCmd = &cobra.Command{
	Use:   "set-parent <person-id> <father|mother> <parent-person-id>",
	Short: "Set a canonical parent edge",
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
		parentID, err := parsePersonID(args[2])
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		ctx := context.Background()

		parent, err := a.store.GetPerson(ctx, parentID)
		if err != nil {
			return err
		}
		if err := a.store.SetParent(ctx, personID, role, parentID); err != nil {
			return err
		}
		fmt.Printf("✓ Set %s of person %d to %s (id %d)\n", role, personID, parent.Name, parent.ID)
		return nil
	},
}

// linkCmd represents the link command
var linkCmd = &cobra.Command{
	Use:   "link <person-id> <provider> <external-id>",
	Short: "Register a provider identity for a canonical person",
	Long: `Register (or re-register) the external identity a provider uses for a
canonical person. Re-linking with a different external id deactivates the
previous mapping but keeps it in history.

Example:
  kinsync link 12 geni 6000000012345`,
	Args: cobra.ExactArgs(3),
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

		ident, err := a.resolver.Register(context.Background(), personID, model.Provider(args[1]), args[2], "", 1)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Linked person %d to %s record %s\n", personID, ident.Provider, ident.ExternalID)
		return nil
	},
}

func parsePersonID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid person id %q", raw)
	}
	return id, nil
}

func init() {
	rootCmd.AddCommand(personCmd)
	personCmd.AddCommand(personAddCmd)
	personCmd.AddCommand(personShowCmd)
	personCmd.AddCommand(personListCmd)
	personCmd.AddCommand(personEditCmd)
	personCmd.AddCommand(personParentCmd)
	rootCmd.AddCommand(linkCmd)

	for _, cmd := range []*cobra.Command{personAddCmd, personEditCmd} {
		cmd.Flags().StringVar(&personName, "name", "", "full name")
		cmd.Flags().StringVar(&personBirthDate, "birth-date", "", "birth date, e.g. \"12 Mar 1847\"")
		cmd.Flags().StringVar(&personBirthPlace, "birth-place", "", "birth place")
		cmd.Flags().StringVar(&personDeathDate, "death-date", "", "death date")
		cmd.Flags().StringVar(&personDeathPlace, "death-place", "", "death place")
	}
}
