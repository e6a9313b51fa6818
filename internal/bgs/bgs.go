// Package bgs queries the British Geological Survey World Mineral Statistics
// OGC API for production, import, and export records.
package bgs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Redliana/critical-minerals-data-tools/internal/metrics"
)

// DefaultBaseURL is the world-mineral-statistics collection root.
const DefaultBaseURL = "https://ogcapi.bgs.ac.uk/collections/world-mineral-statistics"

// Statistic types the dataset distinguishes.
const (
	StatProduction = "Production"
	StatImports    = "Imports"
	StatExports    = "Exports"
)

// pageLimit is the largest page the API serves per request.
const pageLimit = 1000

// criticalMinerals is the working list of commodities tracked as critical,
// using the dataset's own commodity names.
var criticalMinerals = []string{
	// Battery minerals
	"lithium minerals",
	"cobalt, mine",
	"cobalt, refined",
	"nickel, mine",
	"nickel, smelter/refinery",
	"graphite",
	"manganese ore",
	// Rare earths
	"rare earth minerals",
	"rare earth oxides",
	// Strategic metals
	"platinum group metals, mine",
	"vanadium, mine",
	"tungsten, mine",
	"chromium ores and concentrates",
	"tantalum and niobium minerals",
	"titanium minerals",
	// Technology minerals
	"gallium, primary",
	"germanium metal",
	"indium, refinery",
	"beryl",
	"bismuth, mine",
	"selenium, refined",
	"rhenium",
	"strontium minerals",
	// Base metals
	"copper, mine",
	"copper, refined",
	"zinc, mine",
	"lead, mine",
	"tin, mine",
	"aluminium, primary",
	"bauxite",
	// Industrial minerals
	"fluorspar",
	"magnesite",
	"phosphate rock",
	"barytes",
	"borates",
	// Precious metals
	"gold, mine",
	"silver, mine",
	// Other critical
	"antimony, mine",
	"molybdenum, mine",
	"iron ore",
}

// CriticalMinerals returns the tracked critical-minerals commodity names.
func CriticalMinerals() []string {
	out := make([]string, len(criticalMinerals))
	copy(out, criticalMinerals)
	return out
}

// Record is one mineral statistic: a commodity, country, year triple with
// its quantity.
type Record struct {
	Commodity     string   `json:"commodity"`
	SubCommodity  string   `json:"sub_commodity,omitempty"`
	StatisticType string   `json:"statistic_type"`
	Country       string   `json:"country"`
	CountryISO2   string   `json:"country_iso2,omitempty"`
	CountryISO3   string   `json:"country_iso3,omitempty"`
	Year          int      `json:"year,omitempty"`
	Quantity      *float64 `json:"quantity,omitempty"`
	Units         string   `json:"units,omitempty"`
	YearbookTable string   `json:"yearbook_table,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

// Client talks to the BGS OGC API. Safe for concurrent use.
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
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		httpc:     opts.Client,
	}
}

// GeoJSON wire shapes. Quantity must stay a pointer: absent and zero mean
// different things in this dataset.
type featureCollection struct {
	Features []struct {
		Properties struct {
			Commodity     string   `json:"bgs_commodity_trans"`
			SubCommodity  string   `json:"bgs_sub_commodity_trans"`
			StatisticType string   `json:"bgs_statistic_type_trans"`
			Country       string   `json:"country_trans"`
			CountryISO2   string   `json:"country_iso2_code"`
			CountryISO3   string   `json:"country_iso3_code"`
			Year          string   `json:"year"`
			Quantity      *float64 `json:"quantity"`
			Units         string   `json:"units"`
			YearbookTable string   `json:"yearbook_table_trans"`
			Notes         string   `json:"concat_table_notes_text"`
		} `json:"properties"`
	} `json:"features"`
}

// items fetches one page of features matching the property filters.
func (c *Client) items(ctx context.Context, filters url.Values, limit, offset int) ([]Record, error) {
	q := url.Values{}
	for k, vs := range filters {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/items?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("bgs: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		metrics.RecordHTTP("error", true, time.Since(start), 0)
		return nil, fmt.Errorf("bgs: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RecordHTTP(strconv.Itoa(resp.StatusCode), resp.StatusCode >= 400 || err != nil, time.Since(start), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("bgs: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bgs: HTTP %d", resp.StatusCode)
	}

	var fc featureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, fmt.Errorf("bgs: decoding response: %w", err)
	}

	records := make([]Record, 0, len(fc.Features))
	for _, f := range fc.Features {
		p := f.Properties
		records = append(records, Record{
			Commodity:     p.Commodity,
			SubCommodity:  p.SubCommodity,
			StatisticType: p.StatisticType,
			Country:       p.Country,
			CountryISO2:   p.CountryISO2,
			CountryISO3:   p.CountryISO3,
			Year:          parseYear(p.Year),
			Quantity:      p.Quantity,
			Units:         p.Units,
			YearbookTable: p.YearbookTable,
			Notes:         p.Notes,
		})
	}
	return records, nil
}

// parseYear extracts the leading four-digit year; the API serves years as
// strings, occasionally with suffixes.
func parseYear(s string) int {
	if len(s) < 4 {
		return 0
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0
	}
	return y
}

// SearchParams filter a statistics search. Zero YearFrom/YearTo leave that
// bound open.
type SearchParams struct {
	Commodity     string
	Country       string
	CountryISO    string // ISO2 or ISO3, matched by length
	YearFrom      int
	YearTo        int
	StatisticType string // defaults to Production
	Limit         int    // defaults to 1000
}

func (p SearchParams) filters() url.Values {
	f := url.Values{}
	st := p.StatisticType
	if st == "" {
		st = StatProduction
	}
	f.Set("bgs_statistic_type_trans", st)
	if p.Commodity != "" {
		f.Set("bgs_commodity_trans", p.Commodity)
	}
	if p.Country != "" {
		f.Set("country_trans", p.Country)
	}
	if p.CountryISO != "" {
		iso := strings.ToUpper(p.CountryISO)
		if len(iso) == 2 {
			f.Set("country_iso2_code", iso)
		} else {
			f.Set("country_iso3_code", iso)
		}
	}
	return f
}

// Search pages through matching records, filters them by year bounds, and
// returns up to Limit records sorted by year descending.
func (c *Client) Search(ctx context.Context, p SearchParams) ([]Record, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 1000
	}
	filters := p.filters()

	var all []Record
	offset := 0
	for len(all) < limit {
		fetchLimit := pageLimit
		if remaining := limit - len(all); remaining < fetchLimit {
			fetchLimit = remaining
		}
		page, err := c.items(ctx, filters, fetchLimit, offset)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, r := range page {
			if p.YearFrom != 0 && r.Year != 0 && r.Year < p.YearFrom {
				continue
			}
			if p.YearTo != 0 && r.Year != 0 && r.Year > p.YearTo {
				continue
			}
			all = append(all, r)
			if len(all) >= limit {
				break
			}
		}
		if len(page) < fetchLimit {
			break
		}
		offset += fetchLimit
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Year > all[j].Year })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// TimeSeries returns a commodity's records sorted by year ascending,
// optionally narrowed to one country.
func (c *Client) TimeSeries(ctx context.Context, commodity, country, countryISO, statisticType string) ([]Record, error) {
	records, err := c.Search(ctx, SearchParams{
		Commodity:     commodity,
		Country:       country,
		CountryISO:    countryISO,
		StatisticType: statisticType,
		Limit:         5000,
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Year < records[j].Year })
	return records, nil
}

// CountryRank is one country's aggregated quantity for a commodity and year.
type CountryRank struct {
	Country     string  `json:"country"`
	CountryISO3 string  `json:"country_iso3,omitempty"`
	Quantity    float64 `json:"quantity"`
	Units       string  `json:"units,omitempty"`
	Year        int     `json:"year"`
}

// RankCountries aggregates a commodity's statistics by country for one year
// and returns the top producers. Year zero picks the most recent year with
// data.
func (c *Client) RankCountries(ctx context.Context, commodity string, year int, statisticType string, topN int) ([]CountryRank, error) {
	if topN <= 0 {
		topN = 20
	}
	records, err := c.Search(ctx, SearchParams{
		Commodity:     commodity,
		StatisticType: statisticType,
		Limit:         5000,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	if year == 0 {
		for _, r := range records {
			if r.Year > year {
				year = r.Year
			}
		}
	}

	totals := map[string]*CountryRank{}
	var order []string
	for _, r := range records {
		if r.Year != year || r.Quantity == nil {
			continue
		}
		cr, ok := totals[r.Country]
		if !ok {
			cr = &CountryRank{
				Country:     r.Country,
				CountryISO3: r.CountryISO3,
				Units:       r.Units,
				Year:        year,
			}
			totals[r.Country] = cr
			order = append(order, r.Country)
		}
		cr.Quantity += *r.Quantity
	}

	ranked := make([]CountryRank, 0, len(order))
	for _, name := range order {
		ranked = append(ranked, *totals[name])
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Quantity > ranked[j].Quantity })
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked, nil
}

// YearPoint is one year's quantity within a country comparison.
type YearPoint struct {
	Year     int      `json:"year"`
	Quantity *float64 `json:"quantity"`
	Units    string   `json:"units,omitempty"`
}

// CompareCountries fetches per-country series for a commodity. Entries three
// characters or shorter are treated as ISO codes. Keys in the result use the
// dataset's country names when records exist.
func (c *Client) CompareCountries(ctx context.Context, commodity string, countries []string, yearFrom, yearTo int, statisticType string) (map[string][]YearPoint, error) {
	result := make(map[string][]YearPoint, len(countries))
	for _, country := range countries {
		p := SearchParams{
			Commodity:     commodity,
			YearFrom:      yearFrom,
			YearTo:        yearTo,
			StatisticType: statisticType,
			Limit:         1000,
		}
		if len(country) <= 3 {
			p.CountryISO = country
		} else {
			p.Country = country
		}
		records, err := c.Search(ctx, p)
		if err != nil {
			return nil, err
		}

		name := country
		if len(records) > 0 {
			name = records[0].Country
		}
		sort.SliceStable(records, func(i, j int) bool { return records[i].Year < records[j].Year })
		points := make([]YearPoint, 0, len(records))
		for _, r := range records {
			points = append(points, YearPoint{Year: r.Year, Quantity: r.Quantity, Units: r.Units})
		}
		result[name] = points
	}
	return result, nil
}

// Countries lists the distinct countries present in the dataset, optionally
// narrowed to one commodity, sorted by name.
func (c *Client) Countries(ctx context.Context, commodity string) ([]Country, error) {
	filters := url.Values{}
	if commodity != "" {
		filters.Set("bgs_commodity_trans", commodity)
	}
	records, err := c.items(ctx, filters, 5000, 0)
	if err != nil {
		return nil, err
	}

	seen := map[string]Country{}
	for _, r := range records {
		if r.Country == "" {
			continue
		}
		if _, ok := seen[r.Country]; !ok {
			seen[r.Country] = Country{Name: r.Country, ISO2: r.CountryISO2, ISO3: r.CountryISO3}
		}
	}
	out := make([]Country, 0, len(seen))
	for _, v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Country names a country with its ISO codes.
type Country struct {
	Name string `json:"name"`
	ISO2 string `json:"iso2,omitempty"`
	ISO3 string `json:"iso3,omitempty"`
}
