package edx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Options{
		BaseURL:         srv.URL + "/api/3/action",
		APIKey:          "test-key",
		Group:           "claimm-mine-waste",
		UserAgent:       "EDX-USER",
		DownloadBaseURL: srv.URL,
		Client:          srv.Client(),
	})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return c
}

func writeResult(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()
	if err := json.NewEncoder(w).Encode(map[string]any{"success": true, "result": result}); err != nil {
		t.Errorf("encoding response: %v", err)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{BaseURL: "https://example.test"}); err == nil {
		t.Fatal("New() accepted an empty api key")
	}
	if _, err := New(Options{APIKey: "k"}); err == nil {
		t.Fatal("New() accepted an empty base url")
	}
}

func TestDownloadURL(t *testing.T) {
	t.Parallel()

	c, err := New(Options{BaseURL: "https://edx.netl.doe.gov/api/3/action", APIKey: "k"})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	got := c.DownloadURL("abc-123")
	want := "https://edx.netl.doe.gov/resource/abc-123/download"
	if got != want {
		t.Fatalf("DownloadURL = %q, want %q", got, want)
	}
}

func TestSearchResources(t *testing.T) {
	t.Parallel()

	var gotQuery, gotKey string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/resource_search") {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("query")
		gotKey = r.Header.Get("X-CKAN-API-Key")
		writeResult(t, w, map[string]any{
			"count": 2,
			"results": []map[string]any{
				{"id": "r1", "name": "tailings.csv", "format": "CSV", "size": 1234},
				{"id": "r2", "name": "assays.xlsx", "format": "XLSX"},
			},
		})
	})

	res, err := c.SearchResources(context.Background(), SearchResourcesParams{Query: "tailings", Format: "CSV"})
	if err != nil {
		t.Fatalf("SearchResources() err=%v", err)
	}
	if gotQuery != "name:tailings format:CSV" {
		t.Errorf("query param = %q", gotQuery)
	}
	if gotKey != "test-key" {
		t.Errorf("X-CKAN-API-Key = %q", gotKey)
	}
	if res.Count != 2 || len(res.Resources) != 2 {
		t.Fatalf("Count/len = %d/%d", res.Count, len(res.Resources))
	}
	if res.Resources[0].ID != "r1" || res.Resources[0].Size != 1234 {
		t.Errorf("first resource = %+v", res.Resources[0])
	}
}

func TestGetSubmission(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/package_show") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("id"); got != "sub-1" {
			t.Errorf("id param = %q", got)
		}
		writeResult(t, w, map[string]any{
			"id":           "sub-1",
			"name":         "mine-waste-2024",
			"title":        "Mine Waste 2024",
			"organization": map[string]any{"title": "NETL"},
			"tags":         []map[string]any{{"name": "tailings"}, {"name": "lithium"}},
			"resources": []map[string]any{
				{"id": "r1", "name": "data.csv", "format": "CSV"},
			},
		})
	})

	sub, err := c.GetSubmission(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("GetSubmission() err=%v", err)
	}
	if sub.Organization != "NETL" {
		t.Errorf("Organization = %q", sub.Organization)
	}
	if !reflect.DeepEqual(sub.Tags, []string{"tailings", "lithium"}) {
		t.Errorf("Tags = %v", sub.Tags)
	}
	// Resources inherit the submission id when the payload omits package_id.
	if sub.Resources[0].PackageID != "sub-1" {
		t.Errorf("PackageID = %q, want sub-1", sub.Resources[0].PackageID)
	}
}

func TestListGroupSubmissionsDefaultsGroup(t *testing.T) {
	t.Parallel()

	var gotID, gotInclude string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotID = r.URL.Query().Get("id")
		gotInclude = r.URL.Query().Get("include_datasets")
		writeResult(t, w, map[string]any{
			"packages": []map[string]any{
				{"id": "p1", "name": "one"},
				{"id": "p2", "name": "two"},
			},
		})
	})

	subs, err := c.ListGroupSubmissions(context.Background(), "", 0, 0)
	if err != nil {
		t.Fatalf("ListGroupSubmissions() err=%v", err)
	}
	if gotID != "claimm-mine-waste" {
		t.Errorf("group id = %q, want configured default", gotID)
	}
	if gotInclude != "true" {
		t.Errorf("include_datasets = %q", gotInclude)
	}
	if len(subs) != 2 || subs[1].Name != "two" {
		t.Fatalf("subs = %+v", subs)
	}
}

func TestSearchSubmissionsFilterQuery(t *testing.T) {
	t.Parallel()

	var gotFQ, gotQ string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQ = r.URL.Query().Get("q")
		gotFQ = r.URL.Query().Get("fq")
		writeResult(t, w, map[string]any{"results": []map[string]any{{"id": "p1", "name": "one"}}})
	})

	subs, err := c.SearchSubmissions(context.Background(), SearchSubmissionsParams{
		Query:  "lithium",
		Groups: []string{"claimm"},
		Tags:   []string{"tailings"},
	})
	if err != nil {
		t.Fatalf("SearchSubmissions() err=%v", err)
	}
	if gotQ != "lithium" {
		t.Errorf("q = %q", gotQ)
	}
	if gotFQ != "groups:claimm AND tags:tailings" {
		t.Errorf("fq = %q", gotFQ)
	}
	if len(subs) != 1 {
		t.Fatalf("subs = %+v", subs)
	}
}

func TestActionAPIError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   map[string]any{"message": "Not found", "__type": "Not Found Error"},
		})
	})

	_, err := c.GetResource(context.Background(), "missing")
	if err == nil {
		t.Fatal("GetResource() err=nil for api error envelope")
	}
	if !strings.Contains(err.Error(), "Not Found Error") {
		t.Fatalf("err = %v, want upstream error detail", err)
	}
}

func TestActionHTTPError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	})

	_, err := c.GetResource(context.Background(), "r1")
	if err == nil || !strings.Contains(err.Error(), "HTTP 403") {
		t.Fatalf("err = %v, want HTTP 403", err)
	}
}

func TestTabularResources(t *testing.T) {
	t.Parallel()

	in := []Resource{
		{ID: "1", Format: "CSV"},
		{ID: "2", Format: "pdf"},
		{ID: "3", Format: "xlsx"},
		{ID: "4", Format: " XLS "},
		{ID: "5", Format: ""},
		{ID: "6", Format: "tsv"},
	}
	got := TabularResources(in)
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	if !reflect.DeepEqual(ids, []string{"1", "3", "4", "6"}) {
		t.Fatalf("ids = %v", ids)
	}
}
