// Package scholar scrapes Google Scholar result pages into normalized paper
// metadata. Scholar has no API; the markup here (gs_ri, gs_rt, gs_a, gs_rs,
// gs_fl) has been stable for years but can change without notice.
package scholar

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Redliana/critical-minerals-data-tools/internal/metrics"
)

const (
	DefaultBaseURL = "https://scholar.google.com/scholar"

	// DefaultUserAgent is a plain browser agent; Scholar serves a captcha
	// interstitial to obvious bots.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

	// MaxResults is the most results one query returns.
	MaxResults = 20
)

// Paper is one normalized search result.
type Paper struct {
	Title       string `json:"title"`
	Link        string `json:"link,omitempty"`
	AuthorsLine string `json:"authors_line,omitempty"` // Scholar's combined authors/venue/year line
	Snippet     string `json:"snippet,omitempty"`
	CitedBy     int    `json:"cited_by,omitempty"`
	Year        int    `json:"year,omitempty"`
}

// Query parameterizes a search. Zero year bounds are open.
type Query struct {
	Text       string
	YearFrom   int
	YearTo     int
	NumResults int // defaults to 10, capped at MaxResults
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

// Client scrapes one Scholar endpoint. Safe for concurrent use.
type Client struct {
	baseURL   string
	userAgent string
	httpc     *http.Client
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	return &Client{baseURL: opts.BaseURL, userAgent: opts.UserAgent, httpc: opts.Client}
}

var (
	reCitedBy = regexp.MustCompile(`Cited by (\d+)`)
	reYear    = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
)

// Search fetches one result page and parses it.
func (c *Client) Search(ctx context.Context, q Query) ([]Paper, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("scholar: query text is required")
	}
	num := q.NumResults
	if num <= 0 {
		num = 10
	}
	if num > MaxResults {
		num = MaxResults
	}

	params := url.Values{}
	params.Set("q", q.Text)
	params.Set("hl", "en")
	params.Set("num", strconv.Itoa(num))
	if q.YearFrom != 0 {
		params.Set("as_ylo", strconv.Itoa(q.YearFrom))
	}
	if q.YearTo != 0 {
		params.Set("as_yhi", strconv.Itoa(q.YearTo))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("scholar: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		metrics.RecordHTTP("error", true, time.Since(start), 0)
		return nil, fmt.Errorf("scholar: %w", err)
	}
	defer resp.Body.Close()
	metrics.RecordHTTP(strconv.Itoa(resp.StatusCode), resp.StatusCode >= 400, time.Since(start), 0)

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("scholar: rate limited (HTTP 429); back off before retrying")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scholar: HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("scholar: parsing page: %w", err)
	}
	papers := parseResults(doc)
	if len(papers) > num {
		papers = papers[:num]
	}
	return papers, nil
}

// parseResults walks the result containers in DOM order. Results without a
// title (ads, notices) are skipped.
func parseResults(doc *goquery.Document) []Paper {
	var papers []Paper
	doc.Find("div.gs_ri").Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h3.gs_rt").Text())
		// Scholar prefixes titles with markers like [PDF] or [BOOK].
		title = strings.TrimSpace(trimMarkers(title))
		if title == "" {
			return
		}

		p := Paper{
			Title:       title,
			AuthorsLine: strings.TrimSpace(s.Find("div.gs_a").Text()),
			Snippet:     strings.TrimSpace(s.Find("div.gs_rs").Text()),
		}
		if href, ok := s.Find("h3.gs_rt a").First().Attr("href"); ok {
			p.Link = strings.TrimSpace(href)
		}

		s.Find("div.gs_fl a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			if m := reCitedBy.FindStringSubmatch(a.Text()); m != nil {
				p.CitedBy, _ = strconv.Atoi(m[1])
				return false
			}
			return true
		})

		if m := reYear.FindStringSubmatch(p.AuthorsLine); m != nil {
			p.Year, _ = strconv.Atoi(m[1])
		}

		papers = append(papers, p)
	})
	return papers
}

// trimMarkers drops leading bracketed tags from a result title.
func trimMarkers(title string) string {
	for strings.HasPrefix(title, "[") {
		end := strings.Index(title, "]")
		if end < 0 {
			break
		}
		title = strings.TrimSpace(title[end+1:])
	}
	return title
}

// FormatPaper renders a paper as readable text for tool output.
func FormatPaper(p Paper) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", p.Title)
	if p.AuthorsLine != "" {
		fmt.Fprintf(&b, "Authors/Venue: %s\n", p.AuthorsLine)
	}
	if p.Year != 0 {
		fmt.Fprintf(&b, "Year: %d\n", p.Year)
	}
	if p.CitedBy != 0 {
		fmt.Fprintf(&b, "Cited by: %d\n", p.CitedBy)
	}
	if p.Link != "" {
		fmt.Fprintf(&b, "Link: %s\n", p.Link)
	}
	if p.Snippet != "" {
		fmt.Fprintf(&b, "Snippet: %s\n", p.Snippet)
	}
	return b.String()
}
