package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"summa/internal/core"

	_ "modernc.org/sqlite"
)

// ListQuery is the filter/sort set for listing invoices. Zero values
// mean "not filtered"; malformed date strings are passed to SQL as-is
// (string comparison on ISO dates, the client does not pre-validate).
type ListQuery struct {
	Search    string
	Store     string
	Category  string
	DateFrom  string
	DateTo    string
	SortBy    string
	SortOrder string
}

// SQLiteRepository persists invoices with soft deletes.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateInvoice inserts an invoice with its items in one transaction.
func (r *SQLiteRepository) CreateInvoice(ctx context.Context, inv core.Invoice) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO invoices (date, store, category, total_cents) VALUES (?, ?, ?, ?)`,
		inv.Date, inv.Store, nullableText(inv.Category), inv.Total.Cents)
	if err != nil {
		return 0, fmt.Errorf("insert invoice: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("invoice id: %w", err)
	}

	if err := insertItems(ctx, tx, id, inv.Items); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Invoice saved",
		"id", id, "store", inv.Store, "total_cents", inv.Total.Cents, "items", len(inv.Items))
	return id, nil
}

// UpdateInvoice rewrites an invoice and replaces all of its items.
func (r *SQLiteRepository) UpdateInvoice(ctx context.Context, id int64, inv core.Invoice) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE invoices SET date = ?, store = ?, category = ?, total_cents = ? WHERE id = ?`,
		inv.Date, inv.Store, nullableText(inv.Category), inv.Total.Cents, id); err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = ?`, id); err != nil {
		return fmt.Errorf("delete old items: %w", err)
	}
	if err := insertItems(ctx, tx, id, inv.Items); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SoftDeleteInvoice marks an invoice deleted; rows stay in place.
func (r *SQLiteRepository) SoftDeleteInvoice(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE invoices SET deleted_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("soft delete invoice: %w", err)
	}
	return nil
}

// BulkUpdate sets the store and/or category on a set of invoices.
// An empty category pointer target clears the category.
func (r *SQLiteRepository) BulkUpdate(ctx context.Context, ids []int64, store string, category *string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var (
		setClauses []string
		params     []any
	)
	if store != "" {
		setClauses = append(setClauses, "store = ?")
		params = append(params, store)
	}
	if category != nil {
		setClauses = append(setClauses, "category = ?")
		params = append(params, nullableText(*category))
	}
	if len(setClauses) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`UPDATE invoices SET %s WHERE id IN (%s)`,
		strings.Join(setClauses, ", "), placeholders(len(ids)))
	for _, id := range ids {
		params = append(params, id)
	}

	res, err := r.db.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, fmt.Errorf("bulk update: %w", err)
	}
	return res.RowsAffected()
}

// BulkDelete soft-deletes a set of invoices.
func (r *SQLiteRepository) BulkDelete(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	params := make([]any, len(ids))
	for i, id := range ids {
		params[i] = id
	}
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE invoices SET deleted_at = CURRENT_TIMESTAMP WHERE id IN (%s)`, placeholders(len(ids))),
		params...)
	if err != nil {
		return 0, fmt.Errorf("bulk delete: %w", err)
	}
	return res.RowsAffected()
}

// Import inserts a batch of invoices, skipping any whose date, store
// and total match an existing row.
func (r *SQLiteRepository) Import(ctx context.Context, invoices []core.Invoice) (imported, skipped int, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, inv := range invoices {
		var existing int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM invoices WHERE date = ? AND store = ? AND total_cents = ?`,
			inv.Date, inv.Store, inv.Total.Cents).Scan(&existing)
		if err == nil {
			skipped++
			continue
		}
		if err != sql.ErrNoRows {
			return 0, 0, fmt.Errorf("duplicate check: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO invoices (date, store, category, total_cents) VALUES (?, ?, ?, ?)`,
			inv.Date, inv.Store, nullableText(inv.Category), inv.Total.Cents)
		if err != nil {
			return 0, 0, fmt.Errorf("insert imported invoice: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, 0, fmt.Errorf("imported invoice id: %w", err)
		}
		if err := insertItems(ctx, tx, id, inv.Items); err != nil {
			return 0, 0, err
		}
		imported++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit import: %w", err)
	}

	slog.InfoContext(ctx, "Import completed", "imported", imported, "skipped", skipped)
	return imported, skipped, nil
}

// GetInvoice returns a single live invoice with its items.
func (r *SQLiteRepository) GetInvoice(ctx context.Context, id int64) (core.Invoice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, date, store, COALESCE(category, ''), total_cents
		 FROM invoices WHERE id = ? AND deleted_at IS NULL`, id)

	var inv core.Invoice
	if err := row.Scan(&inv.ID, &inv.Date, &inv.Store, &inv.Category, &inv.Total.Cents); err != nil {
		if err == sql.ErrNoRows {
			return core.Invoice{}, fmt.Errorf("invoice %d: %w", id, sql.ErrNoRows)
		}
		return core.Invoice{}, fmt.Errorf("get invoice: %w", err)
	}

	items, err := r.itemsFor(ctx, inv.ID)
	if err != nil {
		return core.Invoice{}, err
	}
	inv.Items = items
	return inv, nil
}

// ListInvoices applies the filter set and sorting from the query.
func (r *SQLiteRepository) ListInvoices(ctx context.Context, q ListQuery) ([]core.Invoice, error) {
	query := `SELECT id, date, store, COALESCE(category, ''), total_cents
	          FROM invoices WHERE deleted_at IS NULL`
	var params []any

	if q.Search != "" {
		query += ` AND (store LIKE ? OR id IN
		           (SELECT invoice_id FROM invoice_items WHERE item_name LIKE ?))`
		like := "%" + q.Search + "%"
		params = append(params, like, like)
	}
	if q.Store != "" {
		query += ` AND store = ?`
		params = append(params, q.Store)
	}
	if q.Category != "" {
		query += ` AND category = ?`
		params = append(params, q.Category)
	}
	if q.DateFrom != "" {
		query += ` AND date >= ?`
		params = append(params, q.DateFrom)
	}
	if q.DateTo != "" {
		query += ` AND date <= ?`
		params = append(params, q.DateTo)
	}

	// Whitelisted sort columns only; everything else falls back to date.
	sortBy := q.SortBy
	switch sortBy {
	case "date", "store":
	case "total":
		sortBy = "total_cents"
	default:
		sortBy = "date"
	}
	order := "DESC"
	if q.SortOrder == "asc" {
		order = "ASC"
	}
	query += fmt.Sprintf(` ORDER BY %s %s`, sortBy, order)

	rows, err := r.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	invoices := []core.Invoice{}
	for rows.Next() {
		var inv core.Invoice
		if err := rows.Scan(&inv.ID, &inv.Date, &inv.Store, &inv.Category, &inv.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}

	for i := range invoices {
		items, err := r.itemsFor(ctx, invoices[i].ID)
		if err != nil {
			return nil, err
		}
		invoices[i].Items = items
	}
	return invoices, nil
}

// Stores lists distinct store names of live invoices.
func (r *SQLiteRepository) Stores(ctx context.Context) ([]string, error) {
	return r.distinct(ctx,
		`SELECT DISTINCT store FROM invoices WHERE deleted_at IS NULL ORDER BY store`)
}

// Categories lists distinct non-null categories of live invoices.
func (r *SQLiteRepository) Categories(ctx context.Context) ([]string, error) {
	return r.distinct(ctx,
		`SELECT DISTINCT category FROM invoices
		 WHERE deleted_at IS NULL AND category IS NOT NULL ORDER BY category`)
}

// Stats aggregates the window: summary, per-category and per-store
// breakdowns (stores capped at ten), plus a previous-period comparison
// when both bounds are present and parseable.
func (r *SQLiteRepository) Stats(ctx context.Context, dateFrom, dateTo string) (core.Stats, error) {
	conditions := `deleted_at IS NULL`
	var params []any
	if dateFrom != "" {
		conditions += ` AND date >= ?`
		params = append(params, dateFrom)
	}
	if dateTo != "" {
		conditions += ` AND date <= ?`
		params = append(params, dateTo)
	}

	var stats core.Stats

	var totalCents sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), SUM(total_cents) FROM invoices WHERE `+conditions, params...,
	).Scan(&stats.Summary.TotalInvoices, &totalCents)
	if err != nil {
		return core.Stats{}, fmt.Errorf("stats summary: %w", err)
	}
	stats.Summary.TotalAmount = core.Money{Cents: totalCents.Int64}
	if stats.Summary.TotalInvoices > 0 {
		stats.Summary.AverageInvoice = core.Money{
			Cents: totalCents.Int64 / int64(stats.Summary.TotalInvoices),
		}
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT COALESCE(category, ?), SUM(total_cents), COUNT(*)
		 FROM invoices WHERE `+conditions+`
		 GROUP BY category ORDER BY SUM(total_cents) DESC`,
		append([]any{core.UncategorizedLabel}, params...)...)
	if err != nil {
		return core.Stats{}, fmt.Errorf("stats by category: %w", err)
	}
	defer rows.Close()
	stats.ByCategory = []core.CategoryAmount{}
	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.Category, &ca.Amount.Cents, &ca.Count); err != nil {
			return core.Stats{}, fmt.Errorf("scan category row: %w", err)
		}
		stats.ByCategory = append(stats.ByCategory, ca)
	}
	if err := rows.Err(); err != nil {
		return core.Stats{}, fmt.Errorf("stats by category: %w", err)
	}

	storeRows, err := r.db.QueryContext(ctx,
		`SELECT store, SUM(total_cents), COUNT(*)
		 FROM invoices WHERE `+conditions+`
		 GROUP BY store ORDER BY SUM(total_cents) DESC LIMIT 10`, params...)
	if err != nil {
		return core.Stats{}, fmt.Errorf("stats by store: %w", err)
	}
	defer storeRows.Close()
	stats.ByStore = []core.StoreAmount{}
	for storeRows.Next() {
		var sa core.StoreAmount
		if err := storeRows.Scan(&sa.Store, &sa.Amount.Cents, &sa.Count); err != nil {
			return core.Stats{}, fmt.Errorf("scan store row: %w", err)
		}
		stats.ByStore = append(stats.ByStore, sa)
	}
	if err := storeRows.Err(); err != nil {
		return core.Stats{}, fmt.Errorf("stats by store: %w", err)
	}

	stats.Comparison = r.comparison(ctx, dateFrom, dateTo, totalCents.Int64)
	return stats, nil
}

// comparison sums the same-length window immediately before dateFrom.
// Unparseable bounds skip the comparison; the server stays lenient the
// way the API always has been.
func (r *SQLiteRepository) comparison(ctx context.Context, dateFrom, dateTo string, currentCents int64) core.Comparison {
	var cmp core.Comparison
	if dateFrom == "" || dateTo == "" {
		return cmp
	}
	start, err := core.ParseDate(dateFrom)
	if err != nil {
		return cmp
	}
	end, err := core.ParseDate(dateTo)
	if err != nil {
		return cmp
	}

	periodDays := int(end.Sub(start).Hours()/24) + 1
	prevEnd := start.AddDate(0, 0, -1)
	prevStart := prevEnd.AddDate(0, 0, -(periodDays - 1))

	var prevCents sql.NullInt64
	err = r.db.QueryRowContext(ctx,
		`SELECT SUM(total_cents) FROM invoices
		 WHERE deleted_at IS NULL AND date >= ? AND date <= ?`,
		core.FormatDate(prevStart), core.FormatDate(prevEnd)).Scan(&prevCents)
	if err != nil {
		slog.WarnContext(ctx, "Previous period query failed", "error", err)
		return cmp
	}

	cmp.PreviousTotal = core.Money{Cents: prevCents.Int64}
	if prevCents.Int64 > 0 {
		change := float64(currentCents-prevCents.Int64) / float64(prevCents.Int64) * 100
		// One decimal place on the wire.
		cmp.ChangePercent = math.Round(change*10) / 10
	}
	return cmp
}

func (r *SQLiteRepository) itemsFor(ctx context.Context, invoiceID int64) ([]core.InvoiceItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT item_name, item_price_cents FROM invoice_items WHERE invoice_id = ? ORDER BY id`,
		invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list items for invoice %d: %w", invoiceID, err)
	}
	defer rows.Close()

	items := []core.InvoiceItem{}
	for rows.Next() {
		var it core.InvoiceItem
		if err := rows.Scan(&it.Name, &it.Price.Cents); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *SQLiteRepository) distinct(ctx context.Context, query string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("distinct query: %w", err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func insertItems(ctx context.Context, tx *sql.Tx, invoiceID int64, items []core.InvoiceItem) error {
	for _, it := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO invoice_items (invoice_id, item_name, item_price_cents) VALUES (?, ?, ?)`,
			invoiceID, it.Name, it.Price.Cents); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
	}
	return nil
}

func nullableText(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
