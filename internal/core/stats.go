package core

type (
	// StatsSummary holds the headline numbers for a filtered window.
	StatsSummary struct {
		TotalInvoices  int   `json:"total_invoices"`
		TotalAmount    Money `json:"total_amount"`
		AverageInvoice Money `json:"average_invoice"`
	}

	// CategoryAmount is spending aggregated per category.
	CategoryAmount struct {
		Category string `json:"category"`
		Amount   Money  `json:"amount"`
		Count    int    `json:"count"`
	}

	// StoreAmount is spending aggregated per store.
	StoreAmount struct {
		Store  string `json:"store"`
		Amount Money  `json:"amount"`
		Count  int    `json:"count"`
	}

	// Comparison relates the current window to the same-length window
	// immediately preceding it.
	Comparison struct {
		PreviousTotal Money   `json:"previous_total"`
		ChangePercent float64 `json:"change_percent"`
	}

	// Stats is the aggregate response for /api/stats.
	Stats struct {
		Summary    StatsSummary     `json:"summary"`
		ByCategory []CategoryAmount `json:"by_category"`
		ByStore    []StoreAmount    `json:"by_store"`
		Comparison Comparison       `json:"comparison"`
	}
)

// UncategorizedLabel is the bucket name used for invoices without a category.
const UncategorizedLabel = "Keine Kategorie"
