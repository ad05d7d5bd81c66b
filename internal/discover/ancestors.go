package discover

import (
	"context"
	"errors"
	"fmt"

	"kinsync/internal/model"
	"kinsync/internal/scrape"
	"kinsync/internal/store"
)

// DiscoverAncestors starts a bulk breadth-first traversal rooted at a
// person, discovering and registering parent identities generation by
// generation. The traversal runs in the background; progress arrives on the
// returned job's event stream, and the job always ends in a terminal state
// with a summary. Only one bulk job per provider may run at a time.
func (d *Discoverer) DiscoverAncestors(ctx context.Context, rootID int64, provider model.Provider) (*Job, error) {
	if _, err := d.store.GetPerson(ctx, rootID); err != nil {
		return nil, err
	}
	driver, err := d.drivers.Driver(provider)
	if err != nil {
		return nil, err
	}
	if !scrape.SupportsParentExtraction(driver) {
		return nil, fmt.Errorf("discover: provider %s exposes %s", provider, NoParentDataMessage)
	}
	pcfg, ok := d.cfg.ProviderConfigFor(provider)
	if !ok {
		return nil, fmt.Errorf("discover: no configuration for provider %q", provider)
	}

	job := newJob(rootID, provider)
	if err := d.registry.add(job); err != nil {
		return nil, err
	}

	go d.runAncestors(ctx, job, pcfg.MaxGenerationDepth)
	return job, nil
}

// CancelJob requests cooperative cancellation of a running bulk job.
func (d *Discoverer) CancelJob(jobID string) error {
	return d.registry.Cancel(jobID)
}

// runAncestors is the traversal worker. The frontier holds canonical person
// ids in FIFO order; the visited set is keyed by canonical id so a person
// reachable through several relationship paths is fetched at most once. The
// generation counter advances each time the frontier drains into the next
// layer.
func (d *Discoverer) runAncestors(ctx context.Context, job *Job, maxDepth int) {
	defer d.registry.remove(job)
	job.setStatus(JobRunning)

	frontier := []int64{job.RootID}
	visited := map[int64]bool{job.RootID: true}
	generation := 0
	discovered := 0
	skipped := 0

	summarize := func() string {
		s := fmt.Sprintf("discovered %d parent links across %d generations", discovered, generation)
		if skipped > 0 {
			s += fmt.Sprintf("; %d skipped due to fetch errors", skipped)
		}
		return s
	}

	for len(frontier) > 0 && generation < maxDepth {
		var next []int64
		for _, personID := range frontier {
			// Cancellation is cooperative: checked here, never mid-fetch,
			// so one in-flight round-trip at most completes after the
			// request.
			if job.cancelRequested() || ctx.Err() != nil {
				job.finish(JobCancelled, summarize())
				return
			}

			person, err := d.store.GetPerson(ctx, personID)
			if err != nil {
				skipped++
				job.publish(Event{Type: EventError, Generation: generation, Discovered: discovered, Message: err.Error()})
				continue
			}
			if _, err := d.resolver.Resolve(ctx, personID, job.Provider); errors.Is(err, store.ErrNotFound) {
				// The branch ends here: nothing to fetch for an unlinked
				// person.
				continue
			} else if err != nil {
				skipped++
				job.publish(Event{Type: EventError, Generation: generation, Discovered: discovered, PersonName: person.Name, Message: err.Error()})
				continue
			}

			res, err := d.DiscoverParents(ctx, personID, job.Provider)
			if errors.Is(err, scrape.ErrAuth) {
				d.log.Error("authentication failure aborts traversal", "job", job.ID, "provider", job.Provider)
				job.finish(JobFailed, "provider authentication failed; "+summarize())
				return
			}
			if err != nil {
				skipped++
				job.publish(Event{Type: EventError, Generation: generation, Discovered: discovered, PersonName: person.Name, Message: err.Error()})
				continue
			}
			discovered += len(res.Discovered)

			for _, role := range model.ParentRoles {
				parent, err := d.store.Parent(ctx, personID, role)
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				if err != nil {
					skipped++
					job.publish(Event{Type: EventError, Generation: generation, Discovered: discovered, PersonName: person.Name, Message: err.Error()})
					continue
				}
				if !visited[parent.ID] {
					visited[parent.ID] = true
					next = append(next, parent.ID)
				}
			}

			job.publish(Event{Type: EventProgress, Generation: generation, Discovered: discovered, PersonName: person.Name})
		}
		frontier = next
		if len(frontier) > 0 {
			generation++
		}
	}

	job.finish(JobCompleted, summarize())
}
