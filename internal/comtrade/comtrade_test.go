package comtrade

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, apiKey string, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{APIKey: apiKey, BaseURL: srv.URL, Client: srv.Client()})
}

func TestGetTradeDataParamsAndParsing(t *testing.T) {
	t.Parallel()

	var gotPath, gotKey string
	var gotQuery map[string]string
	c := newTestClient(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Ocp-Apim-Subscription-Key")
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{
					"period":       "2023",
					"reporterCode": 842,
					"reporterDesc": "USA",
					"partnerCode":  0,
					"flowCode":     "M",
					"flowDesc":     "Import",
					"cmdCode":      "2602",
					"cmdDesc":      "Manganese ores",
					"primaryValue": 123456.78,
					"netWgt":       1000.0,
				},
				{"period": []string{"malformed"}},
				{
					"period":       "2023",
					"reporterCode": 842,
					"partnerCode":  156,
					"partnerDesc":  "China",
					"flowCode":     "X",
					"cmdCode":      "2602",
				},
			},
		})
	})

	records, err := c.GetTradeData(context.Background(), TradeParams{
		Reporter:  "842",
		Commodity: "2602",
		Period:    "2023",
	})
	if err != nil {
		t.Fatalf("GetTradeData() err=%v", err)
	}

	if gotPath != "/data/v1/get/C/A/HS" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("subscription key header = %q", gotKey)
	}
	if gotQuery["partnerCode"] != "0" || gotQuery["flowCode"] != "M" || gotQuery["maxRecords"] != "500" {
		t.Errorf("defaulted query = %v", gotQuery)
	}

	// The malformed row is skipped, not fatal.
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	r0 := records[0]
	if r0.Reporter != "USA" || r0.CommodityCode != "2602" {
		t.Errorf("records[0] = %+v", r0)
	}
	if r0.TradeValue == nil || *r0.TradeValue != 123456.78 {
		t.Errorf("TradeValue = %v", r0.TradeValue)
	}
}

func TestGetTradeDataRequiresReporter(t *testing.T) {
	t.Parallel()

	c := New(Options{})
	if _, err := c.GetTradeData(context.Background(), TradeParams{}); err == nil {
		t.Fatal("GetTradeData() accepted an empty reporter")
	}
}

func TestGetCriticalMineralTrade(t *testing.T) {
	t.Parallel()

	var gotCmd, gotFlow, gotReporter string
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		gotCmd = r.URL.Query().Get("cmdCode")
		gotFlow = r.URL.Query().Get("flowCode")
		gotReporter = r.URL.Query().Get("reporterCode")
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{}})
	})

	if _, err := c.GetCriticalMineralTrade(context.Background(), "Rare Earth", TradeParams{Period: "2023"}); err != nil {
		t.Fatalf("GetCriticalMineralTrade() err=%v", err)
	}
	if gotCmd != "2846,280530" {
		t.Errorf("cmdCode = %q, want preset codes joined", gotCmd)
	}
	if gotFlow != FlowBoth || gotReporter != "0" {
		t.Errorf("flow/reporter = %q/%q", gotFlow, gotReporter)
	}

	_, err := c.GetCriticalMineralTrade(context.Background(), "unobtainium", TradeParams{})
	if err == nil || !strings.Contains(err.Error(), "unknown mineral") {
		t.Fatalf("err = %v, want unknown mineral", err)
	}
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		statusCode int
		want       string
	}{
		{"connected", http.StatusOK, "connected"},
		{"unauthorized", http.StatusUnauthorized, "unauthorized"},
		{"server error", http.StatusInternalServerError, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, "k", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
			})
			st := c.CheckStatus(context.Background())
			if st.Status != tc.want {
				t.Errorf("Status = %q, want %q", st.Status, tc.want)
			}
			if !st.APIKeyConfigured {
				t.Error("APIKeyConfigured = false with key set")
			}
		})
	}
}

func TestReferenceEndpoints(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/reference/Reporters.json"):
			json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{{"id": 842, "text": "USA", "iso3": "USA"}}})
		case strings.HasSuffix(r.URL.Path, "/reference/HS.json"):
			json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{{"id": "2602", "text": "Manganese ores", "parent": "26"}}})
		default:
			http.NotFound(w, r)
		}
	})

	reporters, err := c.Reporters(context.Background())
	if err != nil {
		t.Fatalf("Reporters() err=%v", err)
	}
	if len(reporters) != 1 || reporters[0].ISO3 != "USA" {
		t.Fatalf("reporters = %+v", reporters)
	}

	commodities, err := c.Commodities(context.Background(), "")
	if err != nil {
		t.Fatalf("Commodities() err=%v", err)
	}
	if len(commodities) != 1 || commodities[0].Parent != "26" {
		t.Fatalf("commodities = %+v", commodities)
	}
}

func TestTradeRecordNames(t *testing.T) {
	t.Parallel()

	r := TradeRecord{ReporterCode: 842, PartnerCode: 0}
	if got := r.ReporterName(); got != "Country 842" {
		t.Errorf("ReporterName = %q", got)
	}
	if got := r.PartnerName(); got != "World" {
		t.Errorf("PartnerName = %q", got)
	}
	r = TradeRecord{Reporter: "USA", PartnerCode: 156, Partner: "China"}
	if r.ReporterName() != "USA" || r.PartnerName() != "China" {
		t.Errorf("names = %q/%q", r.ReporterName(), r.PartnerName())
	}
}

func TestHSCodesLookup(t *testing.T) {
	t.Parallel()

	codes, ok := HSCodes("lithium")
	if !ok || len(codes) != 4 {
		t.Fatalf("HSCodes(lithium) = %v, %v", codes, ok)
	}
	codes[0] = "mutated"
	if again, _ := HSCodes("lithium"); again[0] == "mutated" {
		t.Fatal("HSCodes shares backing array with callers")
	}
	if _, ok := HSCodes("nope"); ok {
		t.Fatal("HSCodes accepted an unknown mineral")
	}
	if got := Minerals(); len(got) != len(MineralNames) {
		t.Fatalf("Minerals() = %d entries, want %d", len(got), len(MineralNames))
	}
}
