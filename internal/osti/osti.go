// Package osti serves a local catalog of DOE research documents from the
// Office of Scientific and Technical Information, filtered to critical
// minerals and materials topics.
package osti

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// CatalogFile is the expected catalog filename inside a data directory.
const CatalogFile = "document_catalog.json"

// Commodity category codes used across the catalog.
var commodities = map[string]string{
	"HREE": "Heavy Rare Earth Elements",
	"LREE": "Light Rare Earth Elements",
	"CO":   "Cobalt",
	"LI":   "Lithium",
	"GA":   "Gallium",
	"GR":   "Graphite",
	"NI":   "Nickel",
	"CU":   "Copper",
	"GE":   "Germanium",
	"OTH":  "Other Critical Materials",
}

// Commodities returns the commodity code to name mapping.
func Commodities() map[string]string {
	out := make(map[string]string, len(commodities))
	for k, v := range commodities {
		out[k] = v
	}
	return out
}

// Document is one catalog entry.
type Document struct {
	OSTIID            string   `json:"osti_id"`
	Title             string   `json:"title"`
	Authors           []string `json:"authors,omitempty"`
	PublicationDate   string   `json:"publication_date,omitempty"`
	Description       string   `json:"description,omitempty"`
	Subjects          []string `json:"subjects,omitempty"`
	CommodityCategory string   `json:"commodity_category,omitempty"`
	DOI               string   `json:"doi,omitempty"`
	ProductType       string   `json:"product_type,omitempty"`
	ResearchOrgs      []string `json:"research_orgs,omitempty"`
	SponsorOrgs       []string `json:"sponsor_orgs,omitempty"`
}

// year extracts the publication year, or zero.
func (d Document) year() int {
	s := d.PublicationDate
	if len(s) < 4 {
		return 0
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0
	}
	return y
}

// Statistics summarize the loaded catalog.
type Statistics struct {
	TotalDocuments int            `json:"total_documents"`
	ByCommodity    map[string]int `json:"by_commodity"`
	ByProductType  map[string]int `json:"by_product_type"`
	YearFrom       int            `json:"year_from,omitempty"`
	YearTo         int            `json:"year_to,omitempty"`
}

// Catalog is an in-memory OSTI document catalog. Read-only after Load.
type Catalog struct {
	docs []Document
	byID map[string]int
}

// Load reads a catalog from a directory or a JSON file path. The file holds
// either a bare array of documents or an object with a "documents" key.
func Load(path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("osti: %w", err)
	}
	if info.IsDir() {
		path = filepath.Join(path, CatalogFile)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("osti: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from raw JSON.
func Parse(data []byte) (*Catalog, error) {
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		var wrapped struct {
			Documents []Document `json:"documents"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("osti: decoding catalog: %w", err)
		}
		docs = wrapped.Documents
	}

	byID := make(map[string]int, len(docs))
	for i, d := range docs {
		if d.OSTIID != "" {
			byID[d.OSTIID] = i
		}
	}
	return &Catalog{docs: docs, byID: byID}, nil
}

// Len reports the number of documents loaded.
func (c *Catalog) Len() int { return len(c.docs) }

// Get looks a document up by its OSTI id.
func (c *Catalog) Get(ostiID string) (Document, bool) {
	i, ok := c.byID[ostiID]
	if !ok {
		return Document{}, false
	}
	return c.docs[i], true
}

// SearchParams filter a catalog search. Zero values leave the filter open.
type SearchParams struct {
	Query       string // substring match on title and description
	Commodity   string // category code, e.g. "LI"
	ProductType string // e.g. "Technical Report"
	YearFrom    int
	YearTo      int
	Limit       int // defaults to 50
}

// Search scans the catalog, applying every filter. Text matching is
// case-insensitive.
func (c *Catalog) Search(p SearchParams) []Document {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}
	query := strings.ToLower(p.Query)
	commodity := strings.ToUpper(p.Commodity)
	productType := strings.ToLower(p.ProductType)

	var out []Document
	for _, d := range c.docs {
		if query != "" &&
			!strings.Contains(strings.ToLower(d.Title), query) &&
			!strings.Contains(strings.ToLower(d.Description), query) {
			continue
		}
		if commodity != "" && !strings.EqualFold(d.CommodityCategory, commodity) {
			continue
		}
		if productType != "" && !strings.Contains(strings.ToLower(d.ProductType), productType) {
			continue
		}
		if y := d.year(); (p.YearFrom != 0 && (y == 0 || y < p.YearFrom)) ||
			(p.YearTo != 0 && (y == 0 || y > p.YearTo)) {
			continue
		}
		out = append(out, d)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// ByCommodity returns documents in one commodity category.
func (c *Catalog) ByCommodity(commodity string, limit int) []Document {
	if limit <= 0 {
		limit = 100
	}
	return c.Search(SearchParams{Commodity: commodity, Limit: limit})
}

// Recent returns the newest documents by publication date.
func (c *Catalog) Recent(limit int) []Document {
	if limit <= 0 {
		limit = 20
	}
	sorted := make([]Document, len(c.docs))
	copy(sorted, c.docs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PublicationDate > sorted[j].PublicationDate
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// Stats computes catalog summary statistics.
func (c *Catalog) Stats() Statistics {
	st := Statistics{
		TotalDocuments: len(c.docs),
		ByCommodity:    map[string]int{},
		ByProductType:  map[string]int{},
	}
	for _, d := range c.docs {
		if d.CommodityCategory != "" {
			st.ByCommodity[d.CommodityCategory]++
		}
		if d.ProductType != "" {
			st.ByProductType[d.ProductType]++
		}
		if y := d.year(); y != 0 {
			if st.YearFrom == 0 || y < st.YearFrom {
				st.YearFrom = y
			}
			if y > st.YearTo {
				st.YearTo = y
			}
		}
	}
	return st
}
