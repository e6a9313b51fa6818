// Package comtrade is a client for the UN Comtrade v1 data API covering
// annual commodity trade under the HS classification, with preset HS code
// groups for critical minerals.
package comtrade

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

const (
	DefaultBaseURL = "https://comtradeapi.un.org"

	// dataPath selects commodities, annual frequency, HS classification.
	dataPath = "/data/v1/get/C/A/HS"
	refsPath = "/files/v1/app/reference"
)

// Trade flow codes.
const (
	FlowImports = "M"
	FlowExports = "X"
	FlowBoth    = "M,X"
)

// WorldPartner is the partner code meaning "all partners combined".
const WorldPartner = "0"

// criticalMineralHSCodes maps mineral keys to the HS codes that cover them.
var criticalMineralHSCodes = map[string][]string{
	"lithium":    {"253090", "282520", "283691", "850650"}, // ores, oxide/hydroxide, carbonate, batteries
	"cobalt":     {"2605", "282200", "810520", "810590"},   // ores, oxides, unwrought, articles
	"hree":       {"284690"},                               // heavy REE compounds
	"lree":       {"284610"},                               // light REE compounds
	"rare_earth": {"2846", "280530"},                       // REE compounds, REE metals
	"graphite":   {"250410", "250490", "380110"},           // natural amorphous, crystalline, artificial
	"nickel":     {"2604", "7501", "750210", "750220", "281122"},
	"manganese":  {"2602", "811100"},
	"gallium":    {"811292"},
	"germanium":  {"811299"},
	"copper":     {"7402", "7403"},
}

// MineralNames maps mineral keys to display names.
var MineralNames = map[string]string{
	"lithium":    "Lithium (Li)",
	"cobalt":     "Cobalt (Co)",
	"hree":       "Heavy Rare Earth Elements",
	"lree":       "Light Rare Earth Elements",
	"rare_earth": "Rare Earth Elements (all)",
	"graphite":   "Graphite (Gr)",
	"nickel":     "Nickel (Ni)",
	"manganese":  "Manganese (Mn)",
	"gallium":    "Gallium (Ga)",
	"germanium":  "Germanium (Ge)",
	"copper":     "Copper (Cu)",
}

// Minerals returns the known mineral keys, sorted.
func Minerals() []string {
	out := make([]string, 0, len(criticalMineralHSCodes))
	for k := range criticalMineralHSCodes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// HSCodes returns the HS codes for a mineral key, or false when unknown.
func HSCodes(mineral string) ([]string, bool) {
	key := strings.ReplaceAll(strings.ToLower(mineral), " ", "_")
	codes, ok := criticalMineralHSCodes[key]
	if !ok {
		return nil, false
	}
	out := make([]string, len(codes))
	copy(out, codes)
	return out, true
}

// TradeRecord is one reporter/partner/commodity/year trade flow.
type TradeRecord struct {
	Period        string   `json:"period"`
	ReporterCode  int      `json:"reporterCode"`
	Reporter      string   `json:"reporterDesc,omitempty"`
	PartnerCode   int      `json:"partnerCode"`
	Partner       string   `json:"partnerDesc,omitempty"`
	FlowCode      string   `json:"flowCode"`
	Flow          string   `json:"flowDesc,omitempty"`
	CommodityCode string   `json:"cmdCode"`
	Commodity     string   `json:"cmdDesc,omitempty"`
	TradeValue    *float64 `json:"primaryValue,omitempty"` // USD
	NetWeight     *float64 `json:"netWgt,omitempty"`       // kg
	Quantity      *float64 `json:"qty,omitempty"`
	QuantityUnit  string   `json:"qtyUnitAbbr,omitempty"`
}

// ReporterName is the reporter country name, falling back to the code.
func (r TradeRecord) ReporterName() string {
	if r.Reporter != "" {
		return r.Reporter
	}
	return fmt.Sprintf("Country %d", r.ReporterCode)
}

// PartnerName is the partner country name; partner code 0 means World.
func (r TradeRecord) PartnerName() string {
	if r.PartnerCode == 0 {
		return "World"
	}
	if r.Partner != "" {
		return r.Partner
	}
	return fmt.Sprintf("Country %d", r.PartnerCode)
}

// CountryRef is one reference-data country entry.
type CountryRef struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
	ISO3 string `json:"iso3,omitempty"`
}

// CommodityRef is one reference-data HS code entry.
type CommodityRef struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Parent string `json:"parent,omitempty"`
}

// Status reports API connectivity, for diagnostics.
type Status struct {
	Status           string `json:"status"` // connected, unauthorized, timeout, error
	APIKeyConfigured bool   `json:"api_key_configured"`
	Message          string `json:"message"`
}

// Options configures a Client.
type Options struct {
	// APIKey is sent as Ocp-Apim-Subscription-Key. Optional; without it the
	// API enforces tight anonymous rate limits.
	APIKey    string
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

// Client talks to the UN Comtrade API. Safe for concurrent use.
type Client struct {
	baseURL   string
	apiKey    string
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
		apiKey:    opts.APIKey,
		userAgent: opts.UserAgent,
		httpc:     opts.Client,
	}
}

// HasAPIKey reports whether a subscription key is configured.
func (c *Client) HasAPIKey() bool { return c.apiKey != "" }

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("comtrade: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		metrics.RecordHTTP("error", true, time.Since(start), 0)
		return fmt.Errorf("comtrade: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RecordHTTP(strconv.Itoa(resp.StatusCode), resp.StatusCode >= 400 || err != nil, time.Since(start), int64(len(body)))
	if err != nil {
		return fmt.Errorf("comtrade: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("comtrade: HTTP %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("comtrade: decoding response: %w", err)
	}
	return nil
}

// TradeParams filter a trade data query. Country codes are UN numeric codes
// as strings; several fields accept comma-separated lists.
type TradeParams struct {
	Reporter   string // required, e.g. "842" for USA
	Partner    string // defaults to WorldPartner
	Commodity  string // HS code(s); defaults to "TOTAL"
	Flow       string // defaults to FlowImports
	Period     string // year(s); defaults to the previous calendar year
	MaxRecords int    // defaults to 500
}

func (p *TradeParams) setDefaults() {
	if p.Partner == "" {
		p.Partner = WorldPartner
	}
	if p.Commodity == "" {
		p.Commodity = "TOTAL"
	}
	if p.Flow == "" {
		p.Flow = FlowImports
	}
	if p.Period == "" {
		p.Period = strconv.Itoa(time.Now().Year() - 1)
	}
	if p.MaxRecords <= 0 {
		p.MaxRecords = 500
	}
}

// GetTradeData queries annual HS trade flows. Rows the API returns in an
// unexpected shape are skipped rather than failing the whole query.
func (c *Client) GetTradeData(ctx context.Context, p TradeParams) ([]TradeRecord, error) {
	if p.Reporter == "" {
		return nil, fmt.Errorf("comtrade: reporter is required")
	}
	p.setDefaults()

	q := url.Values{}
	q.Set("reporterCode", p.Reporter)
	q.Set("partnerCode", p.Partner)
	q.Set("cmdCode", p.Commodity)
	q.Set("flowCode", p.Flow)
	q.Set("period", p.Period)
	q.Set("maxRecords", strconv.Itoa(p.MaxRecords))

	var result struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := c.get(ctx, dataPath, q, &result); err != nil {
		return nil, err
	}

	records := make([]TradeRecord, 0, len(result.Data))
	for _, raw := range result.Data {
		var rec TradeRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// GetCriticalMineralTrade queries trade flows for a mineral key using its
// preset HS codes.
func (c *Client) GetCriticalMineralTrade(ctx context.Context, mineral string, p TradeParams) ([]TradeRecord, error) {
	codes, ok := HSCodes(mineral)
	if !ok {
		return nil, fmt.Errorf("comtrade: unknown mineral %q (available: %s)", mineral, strings.Join(Minerals(), ", "))
	}
	if p.Reporter == "" {
		p.Reporter = "0"
	}
	if p.Flow == "" {
		p.Flow = FlowBoth
	}
	p.Commodity = strings.Join(codes, ",")
	return c.GetTradeData(ctx, p)
}

// CheckStatus probes connectivity and key validity with a minimal query.
// Transport failures come back as a Status, not an error.
func (c *Client) CheckStatus(ctx context.Context) Status {
	q := url.Values{}
	q.Set("reporterCode", "842")
	q.Set("period", "2023")
	q.Set("partnerCode", WorldPartner)
	q.Set("cmdCode", "TOTAL")
	q.Set("flowCode", FlowImports)
	q.Set("maxRecords", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+dataPath+"?"+q.Encode(), nil)
	if err != nil {
		return Status{Status: "error", APIKeyConfigured: c.HasAPIKey(), Message: err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		status := "error"
		if ctx.Err() != nil {
			status = "timeout"
		}
		return Status{Status: status, APIKeyConfigured: c.HasAPIKey(), Message: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return Status{Status: "connected", APIKeyConfigured: c.HasAPIKey(), Message: "UN Comtrade API is accessible"}
	case http.StatusUnauthorized:
		return Status{Status: "unauthorized", APIKeyConfigured: c.HasAPIKey(), Message: "Invalid or missing API key"}
	default:
		return Status{Status: "error", APIKeyConfigured: c.HasAPIKey(), Message: fmt.Sprintf("API returned status %d", resp.StatusCode)}
	}
}

// Reporters lists available reporter countries.
func (c *Client) Reporters(ctx context.Context) ([]CountryRef, error) {
	var result struct {
		Results []CountryRef `json:"results"`
	}
	if err := c.get(ctx, refsPath+"/Reporters.json", nil, &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}

// Partners lists available partner areas.
func (c *Client) Partners(ctx context.Context) ([]CountryRef, error) {
	var result struct {
		Results []CountryRef `json:"results"`
	}
	if err := c.get(ctx, refsPath+"/partnerAreas.json", nil, &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}

// Commodities lists commodity codes for a classification ("HS" by default).
func (c *Client) Commodities(ctx context.Context, classification string) ([]CommodityRef, error) {
	if classification == "" {
		classification = "HS"
	}
	var result struct {
		Results []CommodityRef `json:"results"`
	}
	if err := c.get(ctx, refsPath+"/"+url.PathEscape(classification)+".json", nil, &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}
