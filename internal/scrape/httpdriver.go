package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"kinsync/internal/model"
)

// httpDriver is the reference Driver for providers whose records are plain
// pages addressable by external id. It performs no authentication; session
// handling belongs to the browser-automation drivers outside this repo.
type httpDriver struct {
	provider  model.Provider
	client    *http.Client
	userAgent string
	maxBytes  int64
	baseURL   string
	loginPath string
	idPattern *regexp.Regexp
	fields    map[string]selector
	robots    *robotsChecker
}

// parentAwareDriver adds the parent-extraction capability for providers with
// configured parent selectors. Keeping it a separate type makes the
// capability discoverable by type assertion instead of by a failing call.
type parentAwareDriver struct {
	*httpDriver
	parents map[model.Role]selector
}

// NewHTTPDriver builds a driver from provider configuration. The returned
// driver implements ParentExtractor only when parent selectors are
// configured.
func NewHTTPDriver(provider model.Provider, pcfg model.ProviderConfig, hcfg model.HTTPConfig) (Driver, error) {
	if !strings.Contains(pcfg.BaseURL, "{id}") {
		return nil, fmt.Errorf("scrape: provider %q: base_url must contain {id}", provider)
	}
	idPattern, err := regexp.Compile(pcfg.IDPattern)
	if err != nil {
		return nil, fmt.Errorf("scrape: provider %q: id_pattern: %w", provider, err)
	}
	if idPattern.NumSubexp() != 1 {
		return nil, fmt.Errorf("scrape: provider %q: id_pattern needs exactly one capture group", provider)
	}

	fields := make(map[string]selector, len(pcfg.FieldSelectors))
	for name, raw := range pcfg.FieldSelectors {
		sel, err := parseSelector(raw)
		if err != nil {
			return nil, fmt.Errorf("scrape: provider %q: field %q: %w", provider, name, err)
		}
		fields[name] = sel
	}

	d := &httpDriver{
		provider: provider,
		client: &http.Client{
			Timeout: hcfg.Timeout,
			// Redirects are meaningful here: a permanent redirect signals a
			// provider-side record merge. Never follow automatically.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: hcfg.UserAgent,
		maxBytes:  hcfg.MaxBodyBytes,
		baseURL:   pcfg.BaseURL,
		loginPath: pcfg.LoginPath,
		idPattern: idPattern,
		fields:    fields,
	}
	if hcfg.CheckRobots {
		d.robots = newRobotsChecker(hcfg.UserAgent, hcfg.Timeout)
	}

	if len(pcfg.ParentSelectors) == 0 {
		return d, nil
	}

	parents := make(map[model.Role]selector, len(pcfg.ParentSelectors))
	for roleName, raw := range pcfg.ParentSelectors {
		role := model.Role(roleName)
		if !role.IsParent() {
			return nil, fmt.Errorf("scrape: provider %q: parent selector for non-parent role %q", provider, roleName)
		}
		sel, err := parseSelector(raw)
		if err != nil {
			return nil, fmt.Errorf("scrape: provider %q: parent %q: %w", provider, roleName, err)
		}
		parents[role] = sel
	}
	return &parentAwareDriver{httpDriver: d, parents: parents}, nil
}

func (d *httpDriver) Provider() model.Provider { return d.provider }

func (d *httpDriver) recordURL(externalID string) string {
	return strings.ReplaceAll(d.baseURL, "{id}", url.PathEscape(externalID))
}

// FetchRecord retrieves and parses the record page for an external id.
func (d *httpDriver) FetchRecord(ctx context.Context, externalID string) (*model.ProviderRecord, error) {
	return d.fetch(ctx, externalID, nil)
}

func (d *httpDriver) fetch(ctx context.Context, externalID string, parents map[model.Role]selector) (*model.ProviderRecord, error) {
	pageURL := d.recordURL(externalID)

	if d.robots != nil {
		ok, delay, err := d.robots.allowed(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("%w: robots check for %s: %v", ErrFetch, pageURL, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: robots.txt disallows %s", ErrFetch, pageURL)
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrAuth
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("record %s: %w", externalID, ErrNotFound)
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return nil, d.classifyRedirect(externalID, resp.Header.Get("Location"))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status %d for %s", ErrFetch, resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: parse page: %v", ErrFetch, err)
	}

	rec := &model.ProviderRecord{
		Provider:   d.provider,
		ExternalID: externalID,
		FetchedAt:  time.Now().UTC(),
		URL:        pageURL,
		Fields:     make(map[string]string, len(d.fields)),
	}
	for name, sel := range d.fields {
		if value := textContent(findFirst(doc, sel)); value != "" {
			rec.Fields[name] = value
		}
	}
	for role, sel := range parents {
		if ref, ok := d.parentReference(doc, pageURL, role, sel); ok {
			rec.Parents = append(rec.Parents, ref)
		}
	}
	return rec, nil
}

// classifyRedirect turns a 3xx into either an auth failure (bounced to the
// login page) or a record-merge indicator carrying the new external id.
func (d *httpDriver) classifyRedirect(externalID, location string) error {
	if location == "" {
		return fmt.Errorf("%w: redirect without location for %s", ErrFetch, externalID)
	}
	if d.loginPath != "" && strings.Contains(location, d.loginPath) {
		return ErrAuth
	}
	if m := d.idPattern.FindStringSubmatch(location); m != nil && m[1] != externalID {
		return &RedirectError{OldExternalID: externalID, NewExternalID: m[1]}
	}
	return fmt.Errorf("%w: unexpected redirect to %s", ErrFetch, location)
}

func (d *httpDriver) parentReference(doc *html.Node, pageURL string, role model.Role, sel selector) (model.ParentReference, bool) {
	node := findFirst(doc, sel)
	anchor, href := anchorUnder(node)
	if anchor == nil {
		return model.ParentReference{}, false
	}
	m := d.idPattern.FindStringSubmatch(href)
	if m == nil {
		return model.ParentReference{}, false
	}
	name := textContent(anchor)
	if name == "" {
		name = textContent(node)
	}
	return model.ParentReference{
		Role:        role,
		ExternalID:  m[1],
		DisplayName: name,
		URL:         resolveURL(pageURL, href),
	}, true
}

func resolveURL(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}

// FetchRecord on a parent-aware driver also extracts parent references, so a
// single page fetch serves both comparison and discovery.
func (d *parentAwareDriver) FetchRecord(ctx context.Context, externalID string) (*model.ProviderRecord, error) {
	return d.fetch(ctx, externalID, d.parents)
}

// ExtractParentReferences fetches the record page and returns its parent
// links. An empty result means the page exposes none for this record.
func (d *parentAwareDriver) ExtractParentReferences(ctx context.Context, externalID string) ([]model.ParentReference, error) {
	rec, err := d.fetch(ctx, externalID, d.parents)
	if err != nil {
		return nil, err
	}
	return rec.Parents, nil
}
