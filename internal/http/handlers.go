package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"summa/internal/core"
	applog "summa/internal/log"
	"summa/internal/storage"
)

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	key := "list:" + r.URL.RawQuery
	if cached, ok := s.listCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	q := r.URL.Query()
	invoices, err := s.repo.ListInvoices(r.Context(), storage.ListQuery{
		Search:    q.Get("search"),
		Store:     q.Get("store"),
		Category:  q.Get("category"),
		DateFrom:  q.Get("date_from"),
		DateTo:    q.Get("date_to"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "List invoices failed", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.listCache.Set(key, invoices)
	writeJSON(w, http.StatusOK, invoices)
}

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var inv core.Invoice
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := inv.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.svc.CreateInvoice(r.Context(), inv)
	if err != nil {
		slog.ErrorContext(r.Context(), "Create invoice failed", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.invalidateCaches()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (s *Server) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}

	var inv core.Invoice
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := inv.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.svc.UpdateInvoice(r.Context(), id, inv); err != nil {
		slog.ErrorContext(r.Context(), "Update invoice failed",
			applog.FieldInvoiceID, id, applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.invalidateCaches()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}

	if err := s.svc.DeleteInvoice(r.Context(), id); err != nil {
		slog.ErrorContext(r.Context(), "Delete invoice failed",
			applog.FieldInvoiceID, id, applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.invalidateCaches()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var invoices []core.Invoice
	if err := json.NewDecoder(r.Body).Decode(&invoices); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, inv := range invoices {
		if err := inv.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	imported, skipped, err := s.repo.Import(r.Context(), invoices)
	if err != nil {
		slog.ErrorContext(r.Context(), "Import failed", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.invalidateCaches()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"imported": imported,
		"skipped":  skipped,
	})
}

type bulkUpdateRequest struct {
	IDs      []int64 `json:"ids"`
	Store    string  `json:"store"`
	Category *string `json:"category"`
}

func (s *Server) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "Missing ids")
		return
	}
	// An absent category is not a clear; an empty string is.
	if req.Store == "" && req.Category == nil {
		writeError(w, http.StatusBadRequest, "Missing store or category")
		return
	}

	updated, err := s.svc.BulkUpdate(r.Context(), req.IDs, req.Store, req.Category)
	if err != nil {
		slog.ErrorContext(r.Context(), "Bulk update failed", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.invalidateCaches()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": updated})
}

type bulkDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "Missing ids")
		return
	}

	deleted, err := s.svc.BulkDelete(r.Context(), req.IDs)
	if err != nil {
		slog.ErrorContext(r.Context(), "Bulk delete failed", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.invalidateCaches()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}

func (s *Server) handleStores(w http.ResponseWriter, r *http.Request) {
	s.handleFacet(w, r, "stores", s.repo.Stores)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	s.handleFacet(w, r, "categories", s.repo.Categories)
}

func (s *Server) handleFacet(w http.ResponseWriter, r *http.Request, key string, fetch func(context.Context) ([]string, error)) {
	if cached, ok := s.facetCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	values, err := fetch(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Facet query failed", "facet", key, applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.facetCache.Set(key, values)
	writeJSON(w, http.StatusOK, values)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	key := "stats:" + r.URL.RawQuery
	if cached, ok := s.statsCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	q := r.URL.Query()
	stats, err := s.repo.Stats(r.Context(), q.Get("date_from"), q.Get("date_to"))
	if err != nil {
		slog.ErrorContext(r.Context(), "Stats query failed", applog.FieldError, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.statsCache.Set(key, stats)
	writeJSON(w, http.StatusOK, stats)
}
