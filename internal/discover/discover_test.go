package discover

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"kinsync/internal/identity"
	"kinsync/internal/model"
	"kinsync/internal/scrape"
	"kinsync/internal/store"
)

// parentDriver serves canned records with parent references and counts
// fetches per external id. Setting gate makes every fetch block until
// release is closed, with a notification on started.
type parentDriver struct {
	provider model.Provider
	records  map[string]*model.ProviderRecord
	authIDs  map[string]bool

	gate    bool
	started chan struct{}
	release chan struct{}

	mu      sync.Mutex
	fetches map[string]int
}

func (d *parentDriver) Provider() model.Provider { return d.provider }

func (d *parentDriver) FetchRecord(_ context.Context, externalID string) (*model.ProviderRecord, error) {
	d.mu.Lock()
	d.fetches[externalID]++
	d.mu.Unlock()
	if d.gate {
		d.started <- struct{}{}
		<-d.release
	}
	if d.authIDs[externalID] {
		return nil, scrape.ErrAuth
	}
	rec, ok := d.records[externalID]
	if !ok {
		return nil, scrape.ErrNotFound
	}
	copied := *rec
	copied.Provider = d.provider
	copied.ExternalID = externalID
	copied.FetchedAt = time.Now().UTC()
	return &copied, nil
}

func (d *parentDriver) ExtractParentReferences(_ context.Context, externalID string) ([]model.ParentReference, error) {
	rec, ok := d.records[externalID]
	if !ok {
		return nil, scrape.ErrNotFound
	}
	return rec.Parents, nil
}

func (d *parentDriver) fetchCount(externalID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fetches[externalID]
}

func (d *parentDriver) totalFetches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for _, n := range d.fetches {
		total += n
	}
	return total
}

// plainDriver has no parent-extraction capability.
type plainDriver struct{ provider model.Provider }

func (d *plainDriver) Provider() model.Provider { return d.provider }

func (d *plainDriver) FetchRecord(context.Context, string) (*model.ProviderRecord, error) {
	return &model.ProviderRecord{Provider: d.provider}, nil
}

type fixture struct {
	store      *store.Store
	resolver   *identity.Resolver
	driver     *parentDriver
	discoverer *Discoverer
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "kinsync.db"), time.Minute)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	cfg := model.DefaultConfig()
	cfg.Providers = map[string]model.ProviderConfig{
		"geni": {RateLimitMs: 1, MaxGenerationDepth: 10},
	}
	driver := &parentDriver{
		provider: "geni",
		records:  map[string]*model.ProviderRecord{},
		authIDs:  map[string]bool{},
		fetches:  map[string]int{},
	}
	resolver := identity.NewResolver(s)
	disc := NewDiscoverer(s, resolver, scrape.Registry{"geni": driver}, cfg, nil)
	return &fixture{store: s, resolver: resolver, driver: driver, discoverer: disc}
}

func (f *fixture) person(t *testing.T, name string) *model.Person {
	t.Helper()
	p, err := f.store.CreatePerson(context.Background(), &model.Person{Name: name})
	if err != nil {
		t.Fatalf("create person: %v", err)
	}
	return p
}

func (f *fixture) link(t *testing.T, personID int64, externalID string) {
	t.Helper()
	if _, err := f.resolver.Register(context.Background(), personID, "geni", externalID, "", 1); err != nil {
		t.Fatalf("register: %v", err)
	}
}

func (f *fixture) setParent(t *testing.T, childID int64, role model.Role, parentID int64) {
	t.Helper()
	if err := f.store.SetParent(context.Background(), childID, role, parentID); err != nil {
		t.Fatalf("set parent: %v", err)
	}
}

func TestDiscoverParents_RegistersConfidentMatches(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	child := f.person(t, "Anna Keller")
	father := f.person(t, "Josef Keller")
	mother := f.person(t, "Maria Huber")
	f.setParent(t, child.ID, model.RoleFather, father.ID)
	f.setParent(t, child.ID, model.RoleMother, mother.ID)
	f.link(t, child.ID, "g-child")

	f.driver.records["g-child"] = &model.ProviderRecord{Parents: []model.ParentReference{
		{Role: model.RoleFather, ExternalID: "g-father", DisplayName: "Josef Keller"},
		{Role: model.RoleMother, ExternalID: "g-mother", DisplayName: "Maria Huber"},
	}}

	res, err := f.discoverer.DiscoverParents(ctx, child.ID, "geni")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(res.Discovered) != 2 {
		t.Fatalf("expected 2 registered links, got %+v", res)
	}
	ident, err := f.resolver.Resolve(ctx, father.ID, "geni")
	if err != nil || ident.ExternalID != "g-father" {
		t.Errorf("father identity not registered: %v %+v", err, ident)
	}
	ident, err = f.resolver.Resolve(ctx, mother.ID, "geni")
	if err != nil || ident.ExternalID != "g-mother" {
		t.Errorf("mother identity not registered: %v %+v", err, ident)
	}
}

func TestDiscoverParents_NoExtractableData(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p := f.person(t, "Anna Keller")
	f.link(t, p.ID, "g-1")
	f.driver.records["g-1"] = &model.ProviderRecord{}

	res, err := f.discoverer.DiscoverParents(ctx, p.ID, "geni")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(res.Discovered) != 0 || res.Message != NoParentDataMessage {
		t.Errorf("expected empty result with %q, got %+v", NoParentDataMessage, res)
	}
}

func TestDiscoverParents_DriverWithoutCapability(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p := f.person(t, "Anna Keller")
	cfg := model.DefaultConfig()
	cfg.Providers = map[string]model.ProviderConfig{"flat": {RateLimitMs: 1, MaxGenerationDepth: 10}}
	disc := NewDiscoverer(f.store, f.resolver, scrape.Registry{"flat": &plainDriver{provider: "flat"}}, cfg, nil)
	if _, err := f.resolver.Register(ctx, p.ID, "flat", "f-1", "", 1); err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := disc.DiscoverParents(ctx, p.ID, "flat")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if res.Message != NoParentDataMessage {
		t.Errorf("expected %q, got %+v", NoParentDataMessage, res)
	}
}

func TestDiscoverParents_NoCanonicalParentsToAttach(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p := f.person(t, "Anna Keller")
	f.link(t, p.ID, "g-1")
	f.driver.records["g-1"] = &model.ProviderRecord{Parents: []model.ParentReference{
		{Role: model.RoleFather, ExternalID: "g-x", DisplayName: "Josef Keller"},
	}}

	res, err := f.discoverer.DiscoverParents(ctx, p.ID, "geni")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(res.Discovered) != 0 || res.Message != NoCanonicalParentsMessage {
		t.Errorf("expected empty result with %q, got %+v", NoCanonicalParentsMessage, res)
	}
}

func TestDiscoverParents_RequiresIdentity(t *testing.T) {
	f := setup(t)
	p := f.person(t, "Anna Keller")

	if _, err := f.discoverer.DiscoverParents(context.Background(), p.ID, "geni"); err == nil {
		t.Fatal("expected error for person without identity")
	}
}

func TestDiscoverParents_LowConfidenceReportedNotRegistered(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	child := f.person(t, "Anna Keller")
	father := f.person(t, "Josef Keller")
	f.setParent(t, child.ID, model.RoleFather, father.ID)
	f.link(t, child.ID, "g-child")

	f.driver.records["g-child"] = &model.ProviderRecord{Parents: []model.ParentReference{
		{Role: model.RoleFather, ExternalID: "g-x", DisplayName: "Zbigniew Qualter"},
	}}

	res, err := f.discoverer.DiscoverParents(ctx, child.ID, "geni")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(res.Discovered) != 0 {
		t.Fatalf("low-confidence match must not register: %+v", res)
	}
	if len(res.Reported) != 1 || res.Reported[0].Reason != "low confidence" {
		t.Errorf("expected low-confidence report, got %+v", res.Reported)
	}
	if _, err := f.resolver.Resolve(ctx, father.ID, "geni"); err == nil {
		t.Error("father must stay unregistered")
	}
}

func TestDiscoverParents_AmbiguousCrossRoleMatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	child := f.person(t, "Anna Keller")
	father := f.person(t, "Josef Keller")
	mother := f.person(t, "Maria Keller")
	f.setParent(t, child.ID, model.RoleFather, father.ID)
	f.setParent(t, child.ID, model.RoleMother, mother.ID)
	f.link(t, child.ID, "g-child")

	// The reference claims to be the father but its name is the mother's.
	f.driver.records["g-child"] = &model.ProviderRecord{Parents: []model.ParentReference{
		{Role: model.RoleFather, ExternalID: "g-x", DisplayName: "Maria Keller"},
	}}

	res, err := f.discoverer.DiscoverParents(ctx, child.ID, "geni")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(res.Discovered) != 0 {
		t.Fatalf("ambiguous match must not register: %+v", res)
	}
	if len(res.Reported) != 1 || res.Reported[0].Reason != "ambiguous match" {
		t.Errorf("expected ambiguous report, got %+v", res.Reported)
	}
}

func drain(job *Job) {
	for range job.Events() {
	}
}

// A repeated ancestor reachable through both parents is fetched exactly
// once.
func TestDiscoverAncestors_DedupAcrossPaths(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	child := f.person(t, "Anna Keller")
	father := f.person(t, "Josef Keller")
	mother := f.person(t, "Maria Huber")
	shared := f.person(t, "Gregor Mann")
	f.setParent(t, child.ID, model.RoleFather, father.ID)
	f.setParent(t, child.ID, model.RoleMother, mother.ID)
	f.setParent(t, father.ID, model.RoleFather, shared.ID)
	f.setParent(t, mother.ID, model.RoleFather, shared.ID)

	f.link(t, child.ID, "g-child")
	f.link(t, father.ID, "g-father")
	f.link(t, mother.ID, "g-mother")

	f.driver.records["g-child"] = &model.ProviderRecord{Parents: []model.ParentReference{
		{Role: model.RoleFather, ExternalID: "g-father", DisplayName: "Josef Keller"},
		{Role: model.RoleMother, ExternalID: "g-mother", DisplayName: "Maria Huber"},
	}}
	f.driver.records["g-father"] = &model.ProviderRecord{Parents: []model.ParentReference{
		{Role: model.RoleFather, ExternalID: "g-shared", DisplayName: "Gregor Mann"},
	}}
	f.driver.records["g-mother"] = &model.ProviderRecord{Parents: []model.ParentReference{
		{Role: model.RoleFather, ExternalID: "g-shared", DisplayName: "Gregor Mann"},
	}}
	f.driver.records["g-shared"] = &model.ProviderRecord{}

	job, err := f.discoverer.DiscoverAncestors(ctx, child.ID, "geni")
	if err != nil {
		t.Fatalf("start job: %v", err)
	}
	drain(job)

	if job.Status() != JobCompleted {
		t.Fatalf("expected completed, got %s (%s)", job.Status(), job.Summary())
	}
	if n := f.driver.fetchCount("g-shared"); n != 1 {
		t.Errorf("shared ancestor fetched %d times, want 1", n)
	}
	if ident, err := f.resolver.Resolve(ctx, shared.ID, "geni"); err != nil || ident.ExternalID != "g-shared" {
		t.Errorf("shared ancestor not registered: %v", err)
	}
	if !strings.Contains(job.Summary(), "discovered 4 parent links") {
		t.Errorf("unexpected summary %q", job.Summary())
	}
}

// After cancellation, at most the in-flight fetch completes and no new
// fetch starts.
func TestDiscoverAncestors_CancellationBound(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	child := f.person(t, "Anna Keller")
	father := f.person(t, "Josef Keller")
	f.setParent(t, child.ID, model.RoleFather, father.ID)
	f.link(t, child.ID, "g-child")

	f.driver.records["g-child"] = &model.ProviderRecord{Parents: []model.ParentReference{
		{Role: model.RoleFather, ExternalID: "g-father", DisplayName: "Josef Keller"},
	}}
	f.driver.records["g-father"] = &model.ProviderRecord{}
	f.driver.gate = true
	f.driver.started = make(chan struct{}, 8)
	f.driver.release = make(chan struct{})

	job, err := f.discoverer.DiscoverAncestors(ctx, child.ID, "geni")
	if err != nil {
		t.Fatalf("start job: %v", err)
	}

	<-f.driver.started
	if err := f.discoverer.CancelJob(job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	close(f.driver.release)
	drain(job)

	if job.Status() != JobCancelled {
		t.Fatalf("expected cancelled, got %s", job.Status())
	}
	if n := f.driver.totalFetches(); n != 1 {
		t.Errorf("%d fetches after cancellation, want the 1 in flight", n)
	}
}

// An authentication failure aborts the whole traversal.
func TestDiscoverAncestors_AuthFailureAborts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	child := f.person(t, "Anna Keller")
	father := f.person(t, "Josef Keller")
	f.setParent(t, child.ID, model.RoleFather, father.ID)
	f.link(t, child.ID, "g-child")
	f.link(t, father.ID, "g-father")

	f.driver.records["g-child"] = &model.ProviderRecord{Parents: []model.ParentReference{
		{Role: model.RoleFather, ExternalID: "g-father", DisplayName: "Josef Keller"},
	}}
	f.driver.authIDs["g-father"] = true

	job, err := f.discoverer.DiscoverAncestors(ctx, child.ID, "geni")
	if err != nil {
		t.Fatalf("start job: %v", err)
	}
	drain(job)

	if job.Status() != JobFailed {
		t.Fatalf("expected failed, got %s", job.Status())
	}
	if !strings.Contains(job.Summary(), "authentication") {
		t.Errorf("summary should name the auth failure: %q", job.Summary())
	}
}

// A transient fetch error skips that person without aborting the job.
func TestDiscoverAncestors_FetchErrorSkipsPerson(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	child := f.person(t, "Anna Keller")
	father := f.person(t, "Josef Keller")
	f.setParent(t, child.ID, model.RoleFather, father.ID)
	f.link(t, child.ID, "g-child")
	f.link(t, father.ID, "g-missing")

	f.driver.records["g-child"] = &model.ProviderRecord{Parents: []model.ParentReference{
		{Role: model.RoleFather, ExternalID: "g-missing", DisplayName: "Josef Keller"},
	}}

	job, err := f.discoverer.DiscoverAncestors(ctx, child.ID, "geni")
	if err != nil {
		t.Fatalf("start job: %v", err)
	}
	drain(job)

	if job.Status() != JobCompleted {
		t.Fatalf("expected completed, got %s", job.Status())
	}
	if !strings.Contains(job.Summary(), "1 skipped due to fetch errors") {
		t.Errorf("summary should count the skipped person: %q", job.Summary())
	}
}

// A frontier person whose record lists parents but who has no canonical
// parent edges is the normal end of a branch, not a fetch error.
func TestDiscoverAncestors_BranchEndIsNotAFetchError(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	child := f.person(t, "Anna Keller")
	father := f.person(t, "Josef Keller")
	f.setParent(t, child.ID, model.RoleFather, father.ID)
	f.link(t, child.ID, "g-child")

	f.driver.records["g-child"] = &model.ProviderRecord{Parents: []model.ParentReference{
		{Role: model.RoleFather, ExternalID: "g-father", DisplayName: "Josef Keller"},
	}}
	// The father's record keeps going up the tree, but he has no canonical
	// parents of his own.
	f.driver.records["g-father"] = &model.ProviderRecord{Parents: []model.ParentReference{
		{Role: model.RoleFather, ExternalID: "g-grandfather", DisplayName: "Gregor Keller"},
	}}

	job, err := f.discoverer.DiscoverAncestors(ctx, child.ID, "geni")
	if err != nil {
		t.Fatalf("start job: %v", err)
	}
	drain(job)

	if job.Status() != JobCompleted {
		t.Fatalf("expected completed, got %s (%s)", job.Status(), job.Summary())
	}
	if strings.Contains(job.Summary(), "skipped") {
		t.Errorf("branch end counted as a fetch error: %q", job.Summary())
	}
}

func TestDiscoverAncestors_OneJobPerProvider(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	child := f.person(t, "Anna Keller")
	f.link(t, child.ID, "g-child")
	f.driver.records["g-child"] = &model.ProviderRecord{}
	f.driver.gate = true
	f.driver.started = make(chan struct{}, 8)
	f.driver.release = make(chan struct{})

	job, err := f.discoverer.DiscoverAncestors(ctx, child.ID, "geni")
	if err != nil {
		t.Fatalf("start job: %v", err)
	}
	<-f.driver.started

	if _, err := f.discoverer.DiscoverAncestors(ctx, child.ID, "geni"); err == nil {
		t.Error("second concurrent job for the same provider must be rejected")
	}

	close(f.driver.release)
	drain(job)
	job2, err := f.discoverer.DiscoverAncestors(ctx, child.ID, "geni")
	if err != nil {
		t.Fatalf("job slot must free after terminal state: %v", err)
	}
	drain(job2)
	if _, ok := f.discoverer.registry.Job(job.ID); ok {
		t.Error("finished job still registered")
	}
}
