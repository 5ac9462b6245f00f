package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"summa/internal/core"
	ports "summa/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// Ensure interface conformance
var _ ports.InvoiceAppender = (*Client)(nil)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_SHEET_NAME (default "Invoices")
// Auth: GOOGLE_CREDENTIALS_JSON, GOOGLE_CREDENTIALS_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	sheetName := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if sheetName == "" {
		sheetName = "Invoices"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// newSheetsService initializes a Sheets Service using service account credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON := strings.TrimSpace(os.Getenv("GOOGLE_CREDENTIALS_JSON"))
	credentialsFile := strings.TrimSpace(os.Getenv("GOOGLE_CREDENTIALS_FILE"))
	if credentialsJSON == "" && credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var creds []byte
	switch {
	case credentialsJSON != "":
		creds = []byte(credentialsJSON)
	case credentialsFile != "":
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		creds = data
	default:
		return nil, errors.New("missing credentials (set GOOGLE_CREDENTIALS_JSON, GOOGLE_CREDENTIALS_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created")
	return service, nil
}

// Append writes one invoice as a row: Date, Store, Category, Total, Items.
func (c *Client) Append(ctx context.Context, inv core.Invoice) (string, error) {
	if err := inv.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	items := make([]string, 0, len(inv.Items))
	for _, it := range inv.Items {
		items = append(items, fmt.Sprintf("%s (%.2f)", it.Name, it.Price.Float()))
	}

	rng := fmt.Sprintf("%s!A:E", c.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{{
		inv.Date,
		inv.Store,
		inv.Category,
		inv.Total.Float(),
		strings.Join(items, "; "),
	}}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}
