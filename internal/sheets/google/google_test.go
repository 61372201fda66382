package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	goption "google.golang.org/api/option"

	"financas/internal/core"
	"financas/internal/report"
	ports "financas/internal/sheets"
)

// fakeSheetsAPI answers the subset of the Sheets v4 API used by Export.
type fakeSheetsAPI struct {
	mu       sync.Mutex
	titles   []string
	gets     int
	added    []string
	cleared  []string
	updated  map[string][][]any
	failPath string
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	if f.failPath != "" && strings.Contains(path, f.failPath) {
		http.Error(w, `{"error":{"code":400,"message":"boom"}}`, http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/v4/spreadsheets/sheet-1"):
		f.gets++
		type props struct {
			Title string `json:"title"`
		}
		type sheet struct {
			Properties props `json:"properties"`
		}
		resp := struct {
			Sheets []sheet `json:"sheets"`
		}{}
		for _, t := range f.titles {
			resp.Sheets = append(resp.Sheets, sheet{Properties: props{Title: t}})
		}
		json.NewEncoder(w).Encode(resp)

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req struct {
			Requests []struct {
				AddSheet struct {
					Properties struct {
						Title string `json:"title"`
					} `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			f.added = append(f.added, rq.AddSheet.Properties.Title)
			f.titles = append(f.titles, rq.AddSheet.Properties.Title)
		}
		w.Write([]byte(`{}`))

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		f.cleared = append(f.cleared, path)
		w.Write([]byte(`{}`))

	case r.Method == http.MethodPut:
		var vr struct {
			Values [][]any `json:"values"`
		}
		json.NewDecoder(r.Body).Decode(&vr)
		rng := path[strings.LastIndex(path, "/")+1:]
		f.updated[rng] = vr.Values
		w.Write([]byte(`{}`))

	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, api *fakeSheetsAPI) *Client {
	t.Helper()
	api.updated = map[string][][]any{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), "sheet-1",
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func sampleReport() report.Report {
	return report.Report{
		GeneratedAt: time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC),
		Totals:      report.Totals{Period: "2024-03", TotalIncome: core.Money{Cents: 500000}},
		PendingInstallments: []report.PendingInstallment{
			{CardName: "Visa", Store: "Loja", PurchaseItem: "100", MonthYear: "2024-04", Amount: core.Money{Cents: 10000}},
		},
		FutureProjections: []report.Projection{{Period: "2024-04", Amount: core.Money{Cents: 10000}}},
	}
}

func TestClient_ExportCreatesMissingTabs(t *testing.T) {
	api := &fakeSheetsAPI{titles: []string{ports.SummaryTab}}
	c := newTestClient(t, api)

	if err := c.Export(context.Background(), sampleReport()); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	want := []string{ports.PendingTab, ports.HistoryTab, ports.ProjectionsTab}
	if strings.Join(api.added, "|") != strings.Join(want, "|") {
		t.Errorf("added tabs = %v, want %v", api.added, want)
	}
	if len(api.cleared) != 4 {
		t.Errorf("cleared %d ranges, want 4", len(api.cleared))
	}
	if len(api.updated) != 4 {
		t.Fatalf("updated %d ranges, want 4", len(api.updated))
	}

	pending := api.updated["'"+ports.PendingTab+"'!A1"]
	if len(pending) != 2 {
		t.Fatalf("pending tab rows = %d, want header + 1", len(pending))
	}
	if pending[1][1] != "Visa" {
		t.Errorf("pending card = %v, want Visa", pending[1][1])
	}
}

func TestClient_ExportCachesTabTitles(t *testing.T) {
	api := &fakeSheetsAPI{}
	c := newTestClient(t, api)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := c.Export(ctx, sampleReport()); err != nil {
			t.Fatalf("Export() #%d error = %v", i, err)
		}
	}

	if api.gets != 1 {
		t.Errorf("spreadsheet metadata fetched %d times, want 1", api.gets)
	}
	if len(api.added) != 4 {
		t.Errorf("added %d tabs, want 4", len(api.added))
	}
}

func TestClient_ExportWriteFailure(t *testing.T) {
	api := &fakeSheetsAPI{failPath: ":clear"}
	c := newTestClient(t, api)

	err := c.Export(context.Background(), sampleReport())
	if err == nil {
		t.Fatal("expected error when clearing fails")
	}
	if !strings.Contains(err.Error(), "clear") {
		t.Errorf("unexpected error: %v", err)
	}
	if _, ok := c.titles.Get(ports.SummaryTab); ok {
		t.Error("failed tab should be forgotten")
	}
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), "  ", goption.WithoutAuthentication())
	if err == nil || err.Error() != "missing spreadsheet id" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	for _, key := range []string{"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS"} {
		old, had := os.LookupEnv(key)
		os.Unsetenv(key)
		if had {
			t.Cleanup(func() { os.Setenv(key, old) })
		}
	}

	_, err := NewFromEnv(context.Background(), "sheet-1")
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestQuoteSheet(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Resumo", "'Resumo'"},
		{"Projeções", "'Projeções'"},
		{"Rock 'n' Roll", "'Rock ''n'' Roll'"},
	}
	for _, tt := range tests {
		if got := quoteSheet(tt.in); got != tt.want {
			t.Errorf("quoteSheet(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
