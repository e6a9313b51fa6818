package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Redliana/critical-minerals-data-tools/internal/arxiv"
	"github.com/Redliana/critical-minerals-data-tools/internal/bgs"
	"github.com/Redliana/critical-minerals-data-tools/internal/comtrade"
	"github.com/Redliana/critical-minerals-data-tools/internal/edx"
	"github.com/Redliana/critical-minerals-data-tools/internal/headerdetect"
	"github.com/Redliana/critical-minerals-data-tools/internal/osti"
	"github.com/Redliana/critical-minerals-data-tools/internal/scholar"
)

// text wraps a string as an MCP tool result.
func text(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: s}}}
}

// errEDXDisabled is returned by EDX-backed tools when no API key is set.
var errEDXDisabled = fmt.Errorf("EDX access is not configured (set EDX_API_KEY)")

func (a *app) registerTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "detect_file_schema",
		Description: "Detect the schema (headers, column types, nullability, sample values) of a tabular EDX resource by downloading only a small byte prefix.",
	}, a.detectFileSchema)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "detect_dataset_schemas",
		Description: "Detect schemas for every tabular file (CSV/TSV/XLSX/XLS) in an EDX dataset.",
	}, a.detectDatasetSchemas)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_claimm_data",
		Description: "Search CLaiMM mine-waste datasets and resources on EDX by name and format.",
	}, a.searchCLAIMMData)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_claimm_datasets",
		Description: "List datasets in the CLaiMM mine-waste group on EDX.",
	}, a.listCLAIMMDatasets)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_dataset_details",
		Description: "Get full metadata for one EDX dataset, including its files and download URLs.",
	}, a.getDatasetDetails)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_resource_details",
		Description: "Get full metadata for one EDX resource (file).",
	}, a.getResourceDetails)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_download_url",
		Description: "Resolve an EDX resource id to its direct download URL.",
	}, a.getDownloadURL)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_arxiv",
		Description: "Search ArXiv for papers. Supports field prefixes (ti:, au:, abs:) and sorting by relevance or date.",
	}, a.searchArxiv)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "bgs_production",
		Description: "Query BGS World Mineral Statistics for production, import, or export records by commodity, country, and year range.",
	}, a.bgsProduction)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "comtrade_trade",
		Description: "Query UN Comtrade trade flows for a critical mineral (preset HS codes) or an explicit HS commodity code.",
	}, a.comtradeTrade)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_osti",
		Description: "Search the local OSTI research-document catalog by text, commodity category, product type, and year range.",
	}, a.searchOSTI)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_scholar",
		Description: "Search Google Scholar for papers with optional year bounds. Scraped; subject to rate limits.",
	}, a.searchScholar)
}

// ---- schema detection tools ----

type detectFileIn struct {
	ResourceID string `json:"resource_id" jsonschema:"EDX resource id"`
	Format     string `json:"format,omitempty" jsonschema:"optional format hint: csv, tsv, xlsx, or xls"`
}

func (a *app) detectFileSchema(ctx context.Context, req *mcp.CallToolRequest, in detectFileIn) (*mcp.CallToolResult, any, error) {
	if a.edx == nil {
		return nil, nil, errEDXDisabled
	}
	format, err := headerdetect.ParseFormat(in.Format)
	if err != nil {
		return nil, nil, err
	}

	url := a.edx.DownloadURL(in.ResourceID)
	res := a.detector.Detect(ctx, headerdetect.Request{
		URL:        url,
		ResourceID: in.ResourceID,
		Format:     format,
	})
	a.logger.Info("detect_file_schema", "resource", in.ResourceID, "success", res.Success, "bytes", res.BytesFetched)
	return text(renderDetection(res, url)), nil, nil
}

type detectDatasetIn struct {
	DatasetID string `json:"dataset_id" jsonschema:"EDX dataset (submission) id"`
}

func (a *app) detectDatasetSchemas(ctx context.Context, req *mcp.CallToolRequest, in detectDatasetIn) (*mcp.CallToolResult, any, error) {
	if a.edx == nil {
		return nil, nil, errEDXDisabled
	}
	sub, err := a.edx.GetSubmission(ctx, in.DatasetID)
	if err != nil {
		return nil, nil, err
	}

	tabular := edx.TabularResources(sub.Resources)
	title := sub.Title
	if title == "" {
		title = sub.Name
	}
	if len(tabular) == 0 {
		return text(fmt.Sprintf("No tabular files (CSV/TSV/XLSX/XLS) found in dataset: %s", title)), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Schema Detection for: %s**\n\n", title)
	fmt.Fprintf(&b, "Found %d tabular file(s)\n\n", len(tabular))
	for _, r := range tabular {
		url := a.edx.DownloadURL(r.ID)
		res := a.detector.Detect(ctx, headerdetect.Request{URL: url, ResourceID: r.ID})

		fmt.Fprintf(&b, "---\n\n### %s\n\n", r.Name)
		fmt.Fprintf(&b, "- **Resource ID:** `%s`\n", r.ID)
		fmt.Fprintf(&b, "- **Download:** %s\n", url)
		switch {
		case res.Success && len(res.SheetNames) > 0:
			for _, name := range res.SheetNames {
				fmt.Fprintf(&b, "- **Sheet '%s':** %d columns\n", name, res.Sheets[name].ColumnCount)
			}
		case res.Success:
			fmt.Fprintf(&b, "- **Columns:** %d\n", res.ColumnCount)
			fmt.Fprintf(&b, "- **Headers:** %s%s\n", strings.Join(head(res.Headers, 10), ", "), overflow(len(res.Headers), 10))
			fmt.Fprintf(&b, "- **Types:** %s\n", typeSummary(res.ColumnTypes))
		default:
			fmt.Fprintf(&b, "- **Error:** %s\n", truncate(res.Error, 80))
		}
		b.WriteString("\n")
	}
	return text(b.String()), nil, nil
}

// renderDetection renders one detection result as markdown.
func renderDetection(res headerdetect.DetectionResult, downloadURL string) string {
	if !res.Success {
		return fmt.Sprintf("**Error detecting schema:** %s\n\nResource ID: `%s`", res.Error, res.ResourceID)
	}

	var b strings.Builder
	b.WriteString("**Schema Detection Result**\n\n")
	fmt.Fprintf(&b, "- Resource ID: `%s`\n", res.ResourceID)
	if res.Format != "" {
		fmt.Fprintf(&b, "- Format: %s\n", res.Format)
	}
	fmt.Fprintf(&b, "- Bytes fetched: %d (partial download: %v)\n", res.BytesFetched, res.PartialDownload)
	if downloadURL != "" {
		fmt.Fprintf(&b, "- Download: %s\n", downloadURL)
	}

	if len(res.SheetNames) > 0 {
		fmt.Fprintf(&b, "- Sheets: %d\n\n", len(res.SheetNames))
		for _, name := range res.SheetNames {
			sheet := res.Sheets[name]
			fmt.Fprintf(&b, "**Sheet: %s**\n", name)
			fmt.Fprintf(&b, "- Columns: %d\n", sheet.ColumnCount)
			writeColumnTable(&b, sheet.ColumnTypes)
			b.WriteString("\n")
		}
		return b.String()
	}

	fmt.Fprintf(&b, "- Columns: %d\n", res.ColumnCount)
	fmt.Fprintf(&b, "- Delimiter: `%s`\n", res.Delimiter)
	writeColumnTable(&b, res.ColumnTypes)
	return b.String()
}

// writeColumnTable writes the per-column markdown table, capped at 50 rows.
func writeColumnTable(b *strings.Builder, cols []headerdetect.ColumnSchema) {
	if len(cols) == 0 {
		return
	}
	b.WriteString("\n| # | Column Name | Type | Nullable | Sample Values |\n")
	b.WriteString("|---|-------------|------|----------|---------------|\n")
	for i, c := range cols {
		if i >= 50 {
			fmt.Fprintf(b, "\n*... and %d more columns*\n", len(cols)-50)
			return
		}
		nullable := "no"
		if c.Nullable {
			nullable = "yes"
		}
		fmt.Fprintf(b, "| %d | %s | %s | %s | %s |\n",
			i+1, c.Name, c.Type, nullable, truncate(strings.Join(c.SampleValues, ", "), 60))
	}
}

func typeSummary(cols []headerdetect.ColumnSchema) string {
	counts := map[string]int{}
	for _, c := range cols {
		counts[string(c.Type)]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}

// ---- EDX discovery tools ----

type searchDataIn struct {
	Query  string `json:"query" jsonschema:"text matched against resource names"`
	Format string `json:"format,omitempty" jsonschema:"optional file format filter, e.g. CSV or XLSX"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum results (default 20)"`
}

func (a *app) searchCLAIMMData(ctx context.Context, req *mcp.CallToolRequest, in searchDataIn) (*mcp.CallToolResult, any, error) {
	if a.edx == nil {
		return nil, nil, errEDXDisabled
	}
	result, err := a.edx.SearchResources(ctx, edx.SearchResourcesParams{
		Query:  in.Query,
		Format: in.Format,
		Limit:  in.Limit,
	})
	if err != nil {
		return nil, nil, err
	}
	if len(result.Resources) == 0 {
		return text(fmt.Sprintf("No resources found for %q.", in.Query)), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Found %d resource(s)** (showing %d)\n\n", result.Count, len(result.Resources))
	for _, r := range result.Resources {
		formatInfo := ""
		if r.Format != "" {
			formatInfo = fmt.Sprintf(" (%s)", r.Format)
		}
		fmt.Fprintf(&b, "- **%s**%s\n", r.Name, formatInfo)
		fmt.Fprintf(&b, "  - Resource ID: `%s`\n", r.ID)
		fmt.Fprintf(&b, "  - Download: %s\n", a.edx.DownloadURL(r.ID))
	}
	return text(b.String()), nil, nil
}

type listDatasetsIn struct {
	Limit  int `json:"limit,omitempty" jsonschema:"maximum datasets (default 50)"`
	Offset int `json:"offset,omitempty" jsonschema:"pagination offset"`
}

func (a *app) listCLAIMMDatasets(ctx context.Context, req *mcp.CallToolRequest, in listDatasetsIn) (*mcp.CallToolResult, any, error) {
	if a.edx == nil {
		return nil, nil, errEDXDisabled
	}
	subs, err := a.edx.ListGroupSubmissions(ctx, "", in.Limit, in.Offset)
	if err != nil {
		return nil, nil, err
	}
	if len(subs) == 0 {
		return text("No datasets found in the CLaiMM group."), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**CLaiMM Datasets** (%d found)\n\n", len(subs))
	for _, sub := range subs {
		title := sub.Title
		if title == "" {
			title = sub.Name
		}
		fmt.Fprintf(&b, "- **%s**\n", title)
		fmt.Fprintf(&b, "  - ID: `%s`\n", sub.ID)
		fmt.Fprintf(&b, "  - Files: %d\n", len(sub.Resources))
		if len(sub.Tags) > 0 {
			fmt.Fprintf(&b, "  - Tags: %s\n", strings.Join(head(sub.Tags, 5), ", "))
		}
	}
	return text(b.String()), nil, nil
}

type datasetIn struct {
	DatasetID string `json:"dataset_id" jsonschema:"EDX dataset (submission) id"`
}

func (a *app) getDatasetDetails(ctx context.Context, req *mcp.CallToolRequest, in datasetIn) (*mcp.CallToolResult, any, error) {
	if a.edx == nil {
		return nil, nil, errEDXDisabled
	}
	sub, err := a.edx.GetSubmission(ctx, in.DatasetID)
	if err != nil {
		return nil, nil, err
	}

	title := sub.Title
	if title == "" {
		title = sub.Name
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", title)
	fmt.Fprintf(&b, "- ID: `%s`\n", sub.ID)
	if sub.Organization != "" {
		fmt.Fprintf(&b, "- Organization: %s\n", sub.Organization)
	}
	if len(sub.Tags) > 0 {
		fmt.Fprintf(&b, "- Tags: %s\n", strings.Join(sub.Tags, ", "))
	}
	if sub.Notes != "" {
		fmt.Fprintf(&b, "\n%s\n", truncate(sub.Notes, 800))
	}
	fmt.Fprintf(&b, "\n**Files (%d):**\n", len(sub.Resources))
	for _, r := range sub.Resources {
		size := "unknown size"
		if r.Size > 0 {
			size = fmt.Sprintf("%d bytes", r.Size)
		}
		fmt.Fprintf(&b, "- %s (%s, %s)\n", r.Name, orUnknown(r.Format), size)
		fmt.Fprintf(&b, "  - Resource ID: `%s`\n", r.ID)
		fmt.Fprintf(&b, "  - Download: %s\n", a.edx.DownloadURL(r.ID))
	}
	return text(b.String()), nil, nil
}

type resourceIn struct {
	ResourceID string `json:"resource_id" jsonschema:"EDX resource id"`
}

func (a *app) getResourceDetails(ctx context.Context, req *mcp.CallToolRequest, in resourceIn) (*mcp.CallToolResult, any, error) {
	if a.edx == nil {
		return nil, nil, errEDXDisabled
	}
	r, err := a.edx.GetResource(ctx, in.ResourceID)
	if err != nil {
		return nil, nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", r.Name)
	fmt.Fprintf(&b, "- Resource ID: `%s`\n", r.ID)
	fmt.Fprintf(&b, "- Format: %s\n", orUnknown(r.Format))
	if r.Size > 0 {
		fmt.Fprintf(&b, "- Size: %d bytes\n", r.Size)
	}
	if r.PackageID != "" {
		fmt.Fprintf(&b, "- Dataset ID: `%s`\n", r.PackageID)
	}
	if r.Description != "" {
		fmt.Fprintf(&b, "- Description: %s\n", truncate(r.Description, 400))
	}
	fmt.Fprintf(&b, "- Download: %s\n", a.edx.DownloadURL(r.ID))
	return text(b.String()), nil, nil
}

func (a *app) getDownloadURL(ctx context.Context, req *mcp.CallToolRequest, in resourceIn) (*mcp.CallToolResult, any, error) {
	if a.edx == nil {
		return nil, nil, errEDXDisabled
	}
	return text(a.edx.DownloadURL(in.ResourceID)), nil, nil
}

// ---- literature and statistics tools ----

type arxivIn struct {
	Query      string `json:"query" jsonschema:"search text; supports ArXiv field prefixes like ti: and au:"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"maximum papers (default 10, max 100)"`
	SortBy     string `json:"sort_by,omitempty" jsonschema:"relevance, lastUpdatedDate, or submittedDate"`
}

func (a *app) searchArxiv(ctx context.Context, req *mcp.CallToolRequest, in arxivIn) (*mcp.CallToolResult, any, error) {
	papers, err := a.arxiv.Search(ctx, arxiv.Query{Text: in.Query, MaxResults: in.MaxResults, SortBy: in.SortBy})
	if err != nil {
		return nil, nil, err
	}
	if len(papers) == 0 {
		return text(fmt.Sprintf("No ArXiv papers found for %q.", in.Query)), nil, nil
	}

	parts := make([]string, 0, len(papers))
	for _, p := range papers {
		parts = append(parts, arxiv.FormatPaper(p))
	}
	return text(strings.Join(parts, "\n\n---\n\n")), nil, nil
}

type bgsIn struct {
	Commodity     string `json:"commodity,omitempty" jsonschema:"BGS commodity name, e.g. 'lithium minerals'; empty lists the critical-minerals commodity names"`
	Country       string `json:"country,omitempty" jsonschema:"country name"`
	CountryISO    string `json:"country_iso,omitempty" jsonschema:"ISO2 or ISO3 country code"`
	YearFrom      int    `json:"year_from,omitempty"`
	YearTo        int    `json:"year_to,omitempty"`
	StatisticType string `json:"statistic_type,omitempty" jsonschema:"Production, Imports, or Exports (default Production)"`
	Limit         int    `json:"limit,omitempty" jsonschema:"maximum records (default 50)"`
}

func (a *app) bgsProduction(ctx context.Context, req *mcp.CallToolRequest, in bgsIn) (*mcp.CallToolResult, any, error) {
	if in.Commodity == "" {
		return text("Known critical-minerals commodities:\n- " + strings.Join(bgs.CriticalMinerals(), "\n- ")), nil, nil
	}

	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}
	records, err := a.bgs.Search(ctx, bgs.SearchParams{
		Commodity:     in.Commodity,
		Country:       in.Country,
		CountryISO:    in.CountryISO,
		YearFrom:      in.YearFrom,
		YearTo:        in.YearTo,
		StatisticType: in.StatisticType,
		Limit:         limit,
	})
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return text(fmt.Sprintf("No BGS records found for %q.", in.Commodity)), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**BGS World Mineral Statistics: %s** (%d records)\n\n", in.Commodity, len(records))
	b.WriteString("| Year | Country | Statistic | Quantity | Units |\n")
	b.WriteString("|------|---------|-----------|----------|-------|\n")
	for _, r := range records {
		qty := "-"
		if r.Quantity != nil {
			qty = fmt.Sprintf("%g", *r.Quantity)
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n", r.Year, r.Country, r.StatisticType, qty, r.Units)
	}
	return text(b.String()), nil, nil
}

type comtradeIn struct {
	Mineral   string `json:"mineral,omitempty" jsonschema:"critical mineral key (lithium, cobalt, rare_earth, ...); empty lists the known keys"`
	Commodity string `json:"commodity,omitempty" jsonschema:"explicit HS code(s), overrides mineral presets"`
	Reporter  string `json:"reporter,omitempty" jsonschema:"reporter country code, e.g. 842 for USA; 0 for all"`
	Partner   string `json:"partner,omitempty" jsonschema:"partner country code; 0 for world"`
	Flow      string `json:"flow,omitempty" jsonschema:"M (imports), X (exports), or M,X"`
	Period    string `json:"period,omitempty" jsonschema:"year or comma-separated years"`
}

func (a *app) comtradeTrade(ctx context.Context, req *mcp.CallToolRequest, in comtradeIn) (*mcp.CallToolResult, any, error) {
	if in.Mineral == "" && in.Commodity == "" {
		var b strings.Builder
		b.WriteString("Known mineral keys:\n")
		for _, k := range comtrade.Minerals() {
			codes, _ := comtrade.HSCodes(k)
			fmt.Fprintf(&b, "- %s (%s): HS %s\n", k, comtrade.MineralNames[k], strings.Join(codes, ", "))
		}
		return text(b.String()), nil, nil
	}

	params := comtrade.TradeParams{
		Reporter:  in.Reporter,
		Partner:   in.Partner,
		Flow:      in.Flow,
		Period:    in.Period,
		Commodity: in.Commodity,
	}
	var records []comtrade.TradeRecord
	var err error
	if in.Commodity != "" {
		if params.Reporter == "" {
			params.Reporter = "0"
		}
		records, err = a.comtrade.GetTradeData(ctx, params)
	} else {
		records, err = a.comtrade.GetCriticalMineralTrade(ctx, in.Mineral, params)
	}
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return text("No trade records found."), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**UN Comtrade** (%d records)\n\n", len(records))
	b.WriteString("| Period | Reporter | Partner | Flow | HS Code | Value (USD) | Net Weight (kg) |\n")
	b.WriteString("|--------|----------|---------|------|---------|-------------|------------------|\n")
	for _, r := range records {
		value, weight := "-", "-"
		if r.TradeValue != nil {
			value = fmt.Sprintf("%.0f", *r.TradeValue)
		}
		if r.NetWeight != nil {
			weight = fmt.Sprintf("%.0f", *r.NetWeight)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			r.Period, r.ReporterName(), r.PartnerName(), r.FlowCode, r.CommodityCode, value, weight)
	}
	return text(b.String()), nil, nil
}

type ostiIn struct {
	Query       string `json:"query,omitempty" jsonschema:"text matched against titles and descriptions"`
	Commodity   string `json:"commodity,omitempty" jsonschema:"commodity category code: HREE, LREE, CO, LI, GA, GR, NI, CU, GE, OTH"`
	ProductType string `json:"product_type,omitempty" jsonschema:"Technical Report or Journal Article"`
	YearFrom    int    `json:"year_from,omitempty"`
	YearTo      int    `json:"year_to,omitempty"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum documents (default 20)"`
}

func (a *app) searchOSTI(ctx context.Context, req *mcp.CallToolRequest, in ostiIn) (*mcp.CallToolResult, any, error) {
	if a.catalog == nil {
		return nil, nil, fmt.Errorf("OSTI catalog is not loaded (set OSTI_DATA_PATH or -osti-data)")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 20
	}
	docs := a.catalog.Search(osti.SearchParams{
		Query:       in.Query,
		Commodity:   in.Commodity,
		ProductType: in.ProductType,
		YearFrom:    in.YearFrom,
		YearTo:      in.YearTo,
		Limit:       limit,
	})
	if len(docs) == 0 {
		return text("No OSTI documents matched."), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**OSTI Documents** (%d found)\n\n", len(docs))
	for _, d := range docs {
		fmt.Fprintf(&b, "- **%s**\n", d.Title)
		fmt.Fprintf(&b, "  - OSTI ID: `%s`\n", d.OSTIID)
		if len(d.Authors) > 0 {
			fmt.Fprintf(&b, "  - Authors: %s\n", strings.Join(head(d.Authors, 4), ", "))
		}
		if d.PublicationDate != "" {
			fmt.Fprintf(&b, "  - Published: %s\n", d.PublicationDate)
		}
		if d.CommodityCategory != "" {
			fmt.Fprintf(&b, "  - Commodity: %s\n", d.CommodityCategory)
		}
		if d.DOI != "" {
			fmt.Fprintf(&b, "  - DOI: %s\n", d.DOI)
		}
	}
	return text(b.String()), nil, nil
}

type scholarIn struct {
	Query      string `json:"query" jsonschema:"search text"`
	YearFrom   int    `json:"year_from,omitempty"`
	YearTo     int    `json:"year_to,omitempty"`
	NumResults int    `json:"num_results,omitempty" jsonschema:"maximum papers (default 10, max 20)"`
}

func (a *app) searchScholar(ctx context.Context, req *mcp.CallToolRequest, in scholarIn) (*mcp.CallToolResult, any, error) {
	papers, err := a.scholar.Search(ctx, scholar.Query{
		Text:       in.Query,
		YearFrom:   in.YearFrom,
		YearTo:     in.YearTo,
		NumResults: in.NumResults,
	})
	if err != nil {
		return nil, nil, err
	}
	if len(papers) == 0 {
		return text(fmt.Sprintf("No Scholar results for %q.", in.Query)), nil, nil
	}

	parts := make([]string, 0, len(papers))
	for _, p := range papers {
		parts = append(parts, scholar.FormatPaper(p))
	}
	return text(strings.Join(parts, "\n---\n")), nil, nil
}

// ---- small rendering helpers ----

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func overflow(total, shown int) string {
	if total > shown {
		return fmt.Sprintf(" ... (+%d more)", total-shown)
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
