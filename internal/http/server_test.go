package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"summa/internal/services"
	"summa/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "summa.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	svc := services.NewInvoiceService(repo, nil)
	srv := NewServer(":0", repo, svc, Options{})
	t.Cleanup(func() {
		srv.caches.Stop()
		srv.limiter.Stop()
		svc.Close()
	})
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func createInvoice(t *testing.T, srv *Server, date, store string, total float64) int64 {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/invoices", map[string]any{
		"date": date, "store": store, "total": total,
		"items": []map[string]any{{"item_name": "Item", "item_price": total}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create invoice: status %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	return int64(body["id"].(float64))
}

func TestCreateAndListInvoices(t *testing.T) {
	srv := newTestServer(t)

	createInvoice(t, srv, "2025-06-01", "Rewe", 19.99)
	createInvoice(t, srv, "2025-06-15", "Saturn", 99.50)

	rec := doJSON(t, srv, http.MethodGet, "/api/invoices", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var invoices []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &invoices); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(invoices) != 2 {
		t.Fatalf("got %d invoices, want 2", len(invoices))
	}
	// Default sort: date descending.
	if invoices[0]["store"] != "Saturn" {
		t.Errorf("first invoice = %v, want Saturn", invoices[0]["store"])
	}
	if invoices[0]["total"].(float64) != 99.50 {
		t.Errorf("total = %v, want 99.50", invoices[0]["total"])
	}
}

func TestCreateInvoiceRejectsBadInput(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad date", map[string]any{"date": "June 1st", "store": "Rewe", "total": 10.0}},
		{"empty store", map[string]any{"date": "2025-06-01", "store": " ", "total": 10.0}},
		{"zero total", map[string]any{"date": "2025-06-01", "store": "Rewe", "total": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/api/invoices", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			body := decodeBody(t, rec)
			if body["success"] != false {
				t.Errorf("success = %v, want false", body["success"])
			}
		})
	}
}

func TestUpdateAndDeleteInvoice(t *testing.T) {
	srv := newTestServer(t)
	id := createInvoice(t, srv, "2025-06-01", "Rewe", 19.99)

	rec := doJSON(t, srv, http.MethodPut, "/api/invoices/"+itoa(id), map[string]any{
		"date": "2025-06-02", "store": "Aldi", "total": 25.00,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/invoices/"+itoa(id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/invoices", nil)
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("list after delete = %s, want []", got)
	}
}

func TestImportSkipsDuplicates(t *testing.T) {
	srv := newTestServer(t)
	createInvoice(t, srv, "2025-06-01", "Rewe", 10.00)

	rec := doJSON(t, srv, http.MethodPost, "/api/invoices/import", []map[string]any{
		{"date": "2025-06-01", "store": "Rewe", "total": 10.00},
		{"date": "2025-06-02", "store": "Lidl", "total": 5.00},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("import: status %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["imported"].(float64) != 1 || body["skipped"].(float64) != 1 {
		t.Errorf("imported=%v skipped=%v, want 1/1", body["imported"], body["skipped"])
	}
}

func TestBulkUpdateValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPut, "/api/invoices/bulk-update", map[string]any{
		"ids": []int64{}, "store": "Rewe",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing ids: status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPut, "/api/invoices/bulk-update", map[string]any{
		"ids": []int64{1},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing store and category: status = %d, want 400", rec.Code)
	}
}

func TestBulkUpdateAndDelete(t *testing.T) {
	srv := newTestServer(t)
	a := createInvoice(t, srv, "2025-06-01", "Rewe", 10.00)
	b := createInvoice(t, srv, "2025-06-02", "Lidl", 20.00)

	rec := doJSON(t, srv, http.MethodPut, "/api/invoices/bulk-update", map[string]any{
		"ids": []int64{a, b}, "category": "Groceries",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("bulk update: status %d body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["updated"].(float64); got != 2 {
		t.Errorf("updated = %v, want 2", got)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/categories", nil)
	var cats []string
	if err := json.Unmarshal(rec.Body.Bytes(), &cats); err != nil {
		t.Fatalf("decode categories: %v", err)
	}
	if len(cats) != 1 || cats[0] != "Groceries" {
		t.Errorf("categories = %v", cats)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/invoices/bulk-delete", map[string]any{
		"ids": []int64{a, b},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("bulk delete: status %d", rec.Code)
	}
	if got := decodeBody(t, rec)["deleted"].(float64); got != 2 {
		t.Errorf("deleted = %v, want 2", got)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	createInvoice(t, srv, "2025-05-10", "Rewe", 50.00)
	createInvoice(t, srv, "2025-06-05", "Rewe", 40.00)
	createInvoice(t, srv, "2025-06-20", "Saturn", 60.00)

	rec := doJSON(t, srv, http.MethodGet, "/api/stats?date_from=2025-06-01&date_to=2025-06-30", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: status %d", rec.Code)
	}
	body := decodeBody(t, rec)

	summary := body["summary"].(map[string]any)
	if summary["total_invoices"].(float64) != 2 {
		t.Errorf("total_invoices = %v, want 2", summary["total_invoices"])
	}
	if summary["total_amount"].(float64) != 100.0 {
		t.Errorf("total_amount = %v, want 100", summary["total_amount"])
	}

	cmp := body["comparison"].(map[string]any)
	if cmp["previous_total"].(float64) != 50.0 {
		t.Errorf("previous_total = %v, want 50", cmp["previous_total"])
	}
	if cmp["change_percent"].(float64) != 100.0 {
		t.Errorf("change_percent = %v, want 100", cmp["change_percent"])
	}
}

func TestListCacheInvalidatedOnWrite(t *testing.T) {
	srv := newTestServer(t)
	createInvoice(t, srv, "2025-06-01", "Rewe", 10.00)

	// Prime the cache.
	doJSON(t, srv, http.MethodGet, "/api/invoices", nil)

	createInvoice(t, srv, "2025-06-02", "Lidl", 20.00)

	rec := doJSON(t, srv, http.MethodGet, "/api/invoices", nil)
	var invoices []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &invoices); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(invoices) != 2 {
		t.Errorf("stale cache: got %d invoices, want 2", len(invoices))
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/invoices", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy header")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
