// Package client is the typed consumer of the invoice REST API. It
// turns a period.State into the query parameters the server expects and
// decodes the response shapes; validation of date input stays on the
// server side.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"summa/internal/core"
	"summa/internal/period"
)

// Query is the filter set for listing invoices.
type Query struct {
	Search    string
	Store     string
	Category  string
	DateFrom  string
	DateTo    string
	SortBy    string // date, store or total
	SortOrder string // asc or desc
}

// FromState seeds a Query with the bounds of the current selection.
func FromState(s period.State) Query {
	return Query{DateFrom: s.DateFrom, DateTo: s.DateTo}
}

func (q Query) values() url.Values {
	v := url.Values{}
	v.Set("search", q.Search)
	v.Set("store", q.Store)
	v.Set("category", q.Category)
	v.Set("date_from", q.DateFrom)
	v.Set("date_to", q.DateTo)
	v.Set("sort_by", q.SortBy)
	v.Set("sort_order", q.SortOrder)
	return v
}

// Client talks to the invoice API server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// Invoices lists invoices matching the query.
func (c *Client) Invoices(ctx context.Context, q Query) ([]core.Invoice, error) {
	var invoices []core.Invoice
	if err := c.getJSON(ctx, "/api/invoices", q.values(), &invoices); err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return invoices, nil
}

// Stores lists the distinct store names.
func (c *Client) Stores(ctx context.Context) ([]string, error) {
	var stores []string
	if err := c.getJSON(ctx, "/api/stores", nil, &stores); err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	return stores, nil
}

// Categories lists the distinct category names.
func (c *Client) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	if err := c.getJSON(ctx, "/api/categories", nil, &categories); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// Facets fetches stores and categories concurrently; both populate the
// filter dropdowns and neither depends on the other.
func (c *Client) Facets(ctx context.Context) (stores, categories []string, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stores, err = c.Stores(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = c.Categories(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return stores, categories, nil
}

// Stats fetches the aggregate statistics for a date window. Empty
// bounds mean unbounded.
func (c *Client) Stats(ctx context.Context, dateFrom, dateTo string) (core.Stats, error) {
	v := url.Values{}
	v.Set("date_from", dateFrom)
	v.Set("date_to", dateTo)

	var stats core.Stats
	if err := c.getJSON(ctx, "/api/stats", v, &stats); err != nil {
		return core.Stats{}, fmt.Errorf("get stats: %w", err)
	}
	return stats, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
