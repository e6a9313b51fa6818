// Package edx is a read-side client for NETL's Energy Data eXchange, a CKAN
// deployment. It covers resource and submission lookup, group listing, and
// full-text search over the CKAN action API, plus the resource download URL
// scheme the schema detector fetches from.
package edx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Redliana/critical-minerals-data-tools/internal/metrics"
)

// DefaultDownloadBaseURL hosts the per-resource download endpoint. Distinct
// from the action API base URL.
const DefaultDownloadBaseURL = "https://edx.netl.doe.gov"

// Resource is one file attached to a submission.
type Resource struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Format       string `json:"format,omitempty"`
	Size         int64  `json:"size,omitempty"`
	URL          string `json:"url,omitempty"`
	Created      string `json:"created,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	PackageID    string `json:"package_id,omitempty"`
}

// Submission is a CKAN package: a dataset with attached resources.
type Submission struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Title            string     `json:"title,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	Author           string     `json:"author,omitempty"`
	Organization     string     `json:"organization,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
	Resources        []Resource `json:"resources,omitempty"`
	MetadataCreated  string     `json:"metadata_created,omitempty"`
	MetadataModified string     `json:"metadata_modified,omitempty"`
}

// SearchResult pairs resource matches with the total match count upstream.
type SearchResult struct {
	Count     int        `json:"count"`
	Resources []Resource `json:"resources"`
}

// Options configures a Client.
type Options struct {
	// BaseURL is the CKAN action API root, e.g.
	// https://edx.netl.doe.gov/api/3/action.
	BaseURL string

	// APIKey is sent as X-CKAN-API-Key on every request. Required.
	APIKey string

	// Group is the default group for ListGroupSubmissions.
	Group string

	UserAgent string

	// DownloadBaseURL overrides the download endpoint host (tests).
	DownloadBaseURL string

	// Client must already carry the caller's timeout policy.
	Client *http.Client
}

// Client talks to one EDX deployment. Safe for concurrent use.
type Client struct {
	baseURL      string
	downloadBase string
	apiKey       string
	group        string
	userAgent    string
	httpc        *http.Client
}

// New validates options and builds a Client.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("edx: api key is required (set EDX_API_KEY)")
	}
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("edx: base url is required")
	}
	if opts.DownloadBaseURL == "" {
		opts.DownloadBaseURL = DefaultDownloadBaseURL
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		downloadBase: strings.TrimRight(opts.DownloadBaseURL, "/"),
		apiKey:       opts.APIKey,
		group:        opts.Group,
		userAgent:    opts.UserAgent,
		httpc:        opts.Client,
	}, nil
}

// DownloadURL resolves a resource id to its direct download URL.
func (c *Client) DownloadURL(resourceID string) string {
	return fmt.Sprintf("%s/resource/%s/download", c.downloadBase, url.PathEscape(resourceID))
}

// AuthHeader returns the headers the download endpoint expects; the schema
// detector attaches these to its Range requests.
func (c *Client) AuthHeader() http.Header {
	h := http.Header{}
	h.Set("X-CKAN-API-Key", c.apiKey)
	if c.userAgent != "" {
		h.Set("User-Agent", c.userAgent)
	}
	return h
}

// envelope is the CKAN action response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// action performs one CKAN action GET and decodes the result payload into
// out.
func (c *Client) action(ctx context.Context, name string, query url.Values, out any) error {
	u := c.baseURL + "/" + name
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("edx: %s: %w", name, err)
	}
	req.Header.Set("X-CKAN-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		metrics.RecordHTTP("error", true, time.Since(start), 0)
		return fmt.Errorf("edx: %s: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RecordHTTP(strconv.Itoa(resp.StatusCode), resp.StatusCode >= 400 || err != nil, time.Since(start), int64(len(body)))
	if err != nil {
		return fmt.Errorf("edx: %s: reading response: %w", name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("edx: %s: HTTP %d", name, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("edx: %s: decoding response: %w", name, err)
	}
	if !env.Success {
		return fmt.Errorf("edx: %s: api error: %s", name, string(env.Error))
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("edx: %s: decoding result: %w", name, err)
		}
	}
	return nil
}

// Wire shapes for CKAN payloads that need conversion.
type wireTag struct {
	Name string `json:"name"`
}

type wireOrg struct {
	Title string `json:"title"`
}

type wirePackage struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Title            string          `json:"title"`
	Notes            string          `json:"notes"`
	Author           string          `json:"author"`
	Organization     json.RawMessage `json:"organization"`
	Tags             []wireTag       `json:"tags"`
	Resources        []Resource      `json:"resources"`
	MetadataCreated  string          `json:"metadata_created"`
	MetadataModified string          `json:"metadata_modified"`
}

func (p wirePackage) toSubmission() Submission {
	tags := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		tags = append(tags, t.Name)
	}
	// Organization arrives as an object, a string, or null depending on the
	// action; only the object form carries a title.
	var orgTitle string
	var org wireOrg
	if len(p.Organization) > 0 && json.Unmarshal(p.Organization, &org) == nil {
		orgTitle = org.Title
	}
	resources := p.Resources
	for i := range resources {
		if resources[i].PackageID == "" {
			resources[i].PackageID = p.ID
		}
	}
	return Submission{
		ID:               p.ID,
		Name:             p.Name,
		Title:            p.Title,
		Notes:            p.Notes,
		Author:           p.Author,
		Organization:     orgTitle,
		Tags:             tags,
		Resources:        resources,
		MetadataCreated:  p.MetadataCreated,
		MetadataModified: p.MetadataModified,
	}
}

// SearchResourcesParams filter a resource_search call.
type SearchResourcesParams struct {
	Query  string // matched against resource names
	Format string // e.g. "CSV", "XLSX"
	Limit  int    // defaults to 20
	Offset int
}

// SearchResources searches resources across all submissions.
func (c *Client) SearchResources(ctx context.Context, p SearchResourcesParams) (SearchResult, error) {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(p.Limit))
	q.Set("offset", strconv.Itoa(p.Offset))

	var parts []string
	if p.Query != "" {
		parts = append(parts, "name:"+p.Query)
	}
	if p.Format != "" {
		parts = append(parts, "format:"+p.Format)
	}
	if len(parts) > 0 {
		q.Set("query", strings.Join(parts, " "))
	}

	var result struct {
		Count   int        `json:"count"`
		Results []Resource `json:"results"`
	}
	if err := c.action(ctx, "resource_search", q, &result); err != nil {
		return SearchResult{}, err
	}
	if result.Count == 0 {
		result.Count = len(result.Results)
	}
	return SearchResult{Count: result.Count, Resources: result.Results}, nil
}

// GetResource fetches full metadata for one resource.
func (c *Client) GetResource(ctx context.Context, resourceID string) (Resource, error) {
	q := url.Values{}
	q.Set("id", resourceID)
	var r Resource
	if err := c.action(ctx, "resource_show", q, &r); err != nil {
		return Resource{}, err
	}
	return r, nil
}

// GetSubmission fetches a submission with its resources.
func (c *Client) GetSubmission(ctx context.Context, submissionID string) (Submission, error) {
	q := url.Values{}
	q.Set("id", submissionID)
	var p wirePackage
	if err := c.action(ctx, "package_show", q, &p); err != nil {
		return Submission{}, err
	}
	return p.toSubmission(), nil
}

// ListGroupSubmissions lists the submissions of a group; an empty group uses
// the client's configured default.
func (c *Client) ListGroupSubmissions(ctx context.Context, group string, limit, offset int) ([]Submission, error) {
	if group == "" {
		group = c.group
	}
	if group == "" {
		return nil, fmt.Errorf("edx: group is required")
	}
	if limit <= 0 {
		limit = 50
	}
	q := url.Values{}
	q.Set("id", group)
	q.Set("include_datasets", "true")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var result struct {
		Packages []wirePackage `json:"packages"`
	}
	if err := c.action(ctx, "group_show", q, &result); err != nil {
		return nil, err
	}
	subs := make([]Submission, 0, len(result.Packages))
	for _, p := range result.Packages {
		subs = append(subs, p.toSubmission())
	}
	return subs, nil
}

// SearchSubmissionsParams filter a package_search call. Tags and Groups
// become CKAN fq clauses joined with AND.
type SearchSubmissionsParams struct {
	Query  string
	Tags   []string
	Groups []string
	Limit  int // defaults to 20
	Offset int
}

// SearchSubmissions runs a full-text dataset search.
func (c *Client) SearchSubmissions(ctx context.Context, p SearchSubmissionsParams) ([]Submission, error) {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	q := url.Values{}
	q.Set("rows", strconv.Itoa(p.Limit))
	q.Set("start", strconv.Itoa(p.Offset))
	if p.Query != "" {
		q.Set("q", p.Query)
	}

	var fq []string
	for _, g := range p.Groups {
		fq = append(fq, "groups:"+g)
	}
	for _, t := range p.Tags {
		fq = append(fq, "tags:"+t)
	}
	if len(fq) > 0 {
		q.Set("fq", strings.Join(fq, " AND "))
	}

	var result struct {
		Results []wirePackage `json:"results"`
	}
	if err := c.action(ctx, "package_search", q, &result); err != nil {
		return nil, err
	}
	subs := make([]Submission, 0, len(result.Results))
	for _, pkg := range result.Results {
		subs = append(subs, pkg.toSubmission())
	}
	return subs, nil
}

// TabularResources filters a submission's resources down to the formats the
// schema detector can work on.
func TabularResources(resources []Resource) []Resource {
	var out []Resource
	for _, r := range resources {
		switch strings.ToUpper(strings.TrimSpace(r.Format)) {
		case "CSV", "TSV", "XLSX", "XLS", "XLSM":
			out = append(out, r)
		}
	}
	return out
}
