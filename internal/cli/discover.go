package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kinsync/internal/discover"
	"kinsync/internal/model"
)

var discoverAncestors bool

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover <person-id> <provider>",
	Short: "Discover provider identities for canonical parents",
	Long: `Discover matches the parent references on a person's provider record
to their canonical parents and registers confident matches. Ambiguous or
low-confidence matches are reported but never registered.

With --ancestors the discovery walks the whole ancestry breadth-first,
generation by generation, honoring the provider's rate limit. Press Ctrl-C
to cancel; the fetch in flight finishes before the job stops.

Example:
  kinsync discover 12 geni
  kinsync discover 12 geni --ancestors`,
	Args: cobra.ExactArgs(2),
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().BoolVar(&discoverAncestors, "ancestors", false, "walk the whole ancestry breadth-first")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	personID, err := parsePersonID(args[0])
	if err != nil {
		return err
	}
	provider := model.Provider(args[1])

	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	ctx := context.Background()

	if !discoverAncestors {
		res, err := a.discoverer.DiscoverParents(ctx, personID, provider)
		if err != nil {
			return err
		}
		renderParentResult(res)
		return nil
	}

	job, err := a.discoverer.DiscoverAncestors(ctx, personID, provider)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "⚙️  Started ancestor discovery %s on %s\n", job.ID, provider)

	// Ctrl-C requests cooperative cancellation; the job finishes the fetch
	// in flight and then stops.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		if _, ok := <-sigs; ok {
			fmt.Fprintln(os.Stderr, "Cancelling after the current fetch...")
			_ = a.discoverer.CancelJob(job.ID)
		}
	}()

	for ev := range job.Events() {
		switch ev.Type {
		case discover.EventProgress:
			fmt.Fprintf(os.Stderr, "  gen %d  %d links  %s\n", ev.Generation, ev.Discovered, ev.PersonName)
		case discover.EventError:
			fmt.Fprintf(os.Stderr, "  ✗ %s: %s\n", ev.PersonName, ev.Message)
		}
	}

	switch job.Status() {
	case discover.JobCompleted:
		fmt.Printf("✓ %s\n", job.Summary())
		return nil
	case discover.JobCancelled:
		fmt.Printf("Cancelled: %s\n", job.Summary())
		return nil
	default:
		return fmt.Errorf("discovery failed: %s", job.Summary())
	}
}

func renderParentResult(res *discover.ParentResult) {
	if res.Message != "" {
		fmt.Println(res.Message)
	}
	for _, link := range res.Discovered {
		fmt.Printf("✓ %s: %s (id %d, confidence %.2f)\n", link.Role, link.ParentName, link.ParentID, link.Confidence)
	}
	for _, c := range res.Reported {
		fmt.Printf("? %s: %s [%s] not registered: %s\n", c.Role, c.DisplayName, c.ExternalID, c.Reason)
	}
	if res.Message == "" && len(res.Discovered) == 0 && len(res.Reported) == 0 {
		fmt.Println("No parent references to process.")
	}
}
