// Package arxiv searches the ArXiv Atom API and parses paper metadata.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultBaseURL = "https://export.arxiv.org/api/query"

	// MaxResults caps a single query; ArXiv rejects larger pages anyway.
	MaxResults = 100
)

// Sort orders accepted by the API.
const (
	SortRelevance     = "relevance"
	SortLastUpdated   = "lastUpdatedDate"
	SortSubmittedDate = "submittedDate"
)

// Paper is one Atom entry, flattened.
type Paper struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Authors    []string `json:"authors"`
	Summary    string   `json:"summary"`
	Published  string   `json:"published"`
	Categories []string `json:"categories"`
	PDFURL     string   `json:"pdf_url"`
}

// Query parameterizes a search. Text supports ArXiv field prefixes
// ("ti:", "au:", "abs:"); plain text is wrapped as "all:<text>".
type Query struct {
	Text       string
	MaxResults int    // defaults to 10, capped at MaxResults
	SortBy     string // defaults to relevance; invalid values fall back
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

// Client queries one ArXiv API endpoint. Safe for concurrent use.
type Client struct {
	baseURL   string
	userAgent string
	httpc     *http.Client
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	return &Client{baseURL: opts.BaseURL, userAgent: opts.UserAgent, httpc: opts.Client}
}

// Atom wire shapes. Every element lives in the Atom namespace, so plain
// local names are enough for decoding.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string `xml:"id"`
	Title      string `xml:"title"`
	Summary    string `xml:"summary"`
	Published  string `xml:"published"`
	Authors    []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Title string `xml:"title,attr"`
	} `xml:"link"`
}

// Search runs one query and returns the parsed papers.
func (c *Client) Search(ctx context.Context, q Query) ([]Paper, error) {
	if q.Text == "" {
		return nil, fmt.Errorf("arxiv: query text is required")
	}
	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	if maxResults > MaxResults {
		maxResults = MaxResults
	}
	sortBy := q.SortBy
	switch sortBy {
	case SortRelevance, SortLastUpdated, SortSubmittedDate:
	default:
		sortBy = SortRelevance
	}

	searchQuery := q.Text
	if !strings.Contains(searchQuery, ":") {
		searchQuery = "all:" + searchQuery
	}

	params := url.Values{}
	params.Set("search_query", searchQuery)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("sortBy", sortBy)
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("arxiv: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("arxiv: reading response: %w", err)
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("arxiv: parsing feed: %w", err)
	}

	papers := make([]Paper, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		papers = append(papers, parseEntry(e))
	}
	return papers, nil
}

func parseEntry(e atomEntry) Paper {
	// The Atom id is a URL like http://arxiv.org/abs/2401.01234v1; the part
	// after /abs/ is the ArXiv id.
	id := e.ID
	if i := strings.LastIndex(id, "/abs/"); i >= 0 {
		id = id[i+len("/abs/"):]
	}

	authors := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}

	var categories []string
	for _, cat := range e.Categories {
		if cat.Term != "" {
			categories = append(categories, cat.Term)
		}
	}

	var pdfURL string
	for _, l := range e.Links {
		if l.Title == "pdf" {
			pdfURL = l.Href
			break
		}
	}
	if pdfURL == "" {
		pdfURL = fmt.Sprintf("http://arxiv.org/pdf/%s.pdf", id)
	}

	return Paper{
		ID:         id,
		Title:      squash(e.Title),
		Authors:    authors,
		Summary:    squash(e.Summary),
		Published:  e.Published,
		Categories: categories,
		PDFURL:     pdfURL,
	}
}

// squash collapses the newline-wrapped text ArXiv returns into one line.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FormatPaper renders a paper as readable text for tool output.
func FormatPaper(p Paper) string {
	authors := strings.Join(head(p.Authors, 3), ", ")
	if len(p.Authors) > 3 {
		authors += fmt.Sprintf(" et al. (%d total)", len(p.Authors))
	}
	abstract := p.Summary
	if r := []rune(abstract); len(r) > 300 {
		abstract = string(r[:300]) + "..."
	}
	return fmt.Sprintf("Title: %s\nArXiv ID: %s\nAuthors: %s\nPublished: %s\nCategories: %s\nPDF: %s\nAbstract: %s",
		p.Title, p.ID, authors, p.Published, strings.Join(head(p.Categories, 3), ", "), p.PDFURL, abstract)
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
