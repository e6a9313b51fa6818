package osti

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleCatalog = `{
  "documents": [
    {
      "osti_id": "2342032",
      "title": "Rare Earth Extraction from Coal Byproducts",
      "authors": ["A. Chemist"],
      "publication_date": "2023-05-01",
      "description": "Solvent extraction of HREE from ash.",
      "commodity_category": "HREE",
      "product_type": "Technical Report",
      "doi": "10.2172/2342032"
    },
    {
      "osti_id": "2342033",
      "title": "Lithium Recovery Kinetics",
      "publication_date": "2021-01-15",
      "description": "Direct lithium extraction study.",
      "commodity_category": "LI",
      "product_type": "Journal Article"
    },
    {
      "osti_id": "2342034",
      "title": "Cobalt Supply Chain Review",
      "publication_date": "2019-08-01",
      "commodity_category": "CO",
      "product_type": "Technical Report"
    },
    {
      "osti_id": "2342035",
      "title": "Untitled Notes",
      "description": "No date, no category."
    }
  ]
}`

func loadSample(t *testing.T) *Catalog {
	t.Helper()
	c, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}
	return c
}

func TestParseBareArray(t *testing.T) {
	t.Parallel()

	c, err := Parse([]byte(`[{"osti_id": "1", "title": "T"}]`))
	if err != nil {
		t.Fatalf("Parse() err=%v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d", c.Len())
	}
	if _, err := Parse([]byte(`not json`)); err == nil {
		t.Fatal("Parse() accepted garbage")
	}
}

func TestLoadFromDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, CatalogFile), []byte(sampleCatalog), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	if c.Len() != 4 {
		t.Fatalf("Len = %d, want 4", c.Len())
	}

	if _, err := Load(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("Load() on a missing path err=nil")
	}
}

func TestGet(t *testing.T) {
	t.Parallel()

	c := loadSample(t)
	d, ok := c.Get("2342033")
	if !ok || d.Title != "Lithium Recovery Kinetics" {
		t.Fatalf("Get = %+v, %v", d, ok)
	}
	if _, ok := c.Get("999"); ok {
		t.Fatal("Get found a nonexistent id")
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()

	c := loadSample(t)
	cases := []struct {
		name    string
		params  SearchParams
		wantIDs []string
	}{
		{"query matches title case-insensitively", SearchParams{Query: "lithium"}, []string{"2342033"}},
		{"query matches description", SearchParams{Query: "solvent extraction"}, []string{"2342032"}},
		{"commodity code is case-insensitive", SearchParams{Commodity: "hree"}, []string{"2342032"}},
		{"product type filter", SearchParams{ProductType: "Technical Report"}, []string{"2342032", "2342034"}},
		{"year range excludes undated docs", SearchParams{YearFrom: 2020}, []string{"2342032", "2342033"}},
		{"year upper bound", SearchParams{YearTo: 2020}, []string{"2342034"}},
		{"combined filters", SearchParams{ProductType: "Technical Report", YearFrom: 2023}, []string{"2342032"}},
		{"limit caps results", SearchParams{Limit: 1}, []string{"2342032"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := c.Search(tc.params)
			var ids []string
			for _, d := range got {
				ids = append(ids, d.OSTIID)
			}
			if len(ids) != len(tc.wantIDs) {
				t.Fatalf("ids = %v, want %v", ids, tc.wantIDs)
			}
			for i := range ids {
				if ids[i] != tc.wantIDs[i] {
					t.Fatalf("ids = %v, want %v", ids, tc.wantIDs)
				}
			}
		})
	}
}

func TestRecent(t *testing.T) {
	t.Parallel()

	c := loadSample(t)
	got := c.Recent(2)
	if len(got) != 2 {
		t.Fatalf("Recent = %d docs, want 2", len(got))
	}
	if got[0].OSTIID != "2342032" || got[1].OSTIID != "2342033" {
		t.Errorf("Recent order = %s, %s", got[0].OSTIID, got[1].OSTIID)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	st := loadSample(t).Stats()
	if st.TotalDocuments != 4 {
		t.Errorf("TotalDocuments = %d", st.TotalDocuments)
	}
	if st.ByCommodity["HREE"] != 1 || st.ByCommodity["LI"] != 1 || st.ByCommodity["CO"] != 1 {
		t.Errorf("ByCommodity = %v", st.ByCommodity)
	}
	if st.ByProductType["Technical Report"] != 2 {
		t.Errorf("ByProductType = %v", st.ByProductType)
	}
	if st.YearFrom != 2019 || st.YearTo != 2023 {
		t.Errorf("year range = %d..%d", st.YearFrom, st.YearTo)
	}
}

func TestCommoditiesCopy(t *testing.T) {
	t.Parallel()

	m := Commodities()
	if m["LI"] != "Lithium" {
		t.Fatalf("Commodities()[LI] = %q", m["LI"])
	}
	m["LI"] = "mutated"
	if Commodities()["LI"] == "mutated" {
		t.Fatal("Commodities() shares the underlying map")
	}
}
