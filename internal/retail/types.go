// Package retail defines the canonical domain records shared by the ETL
// pipeline and the scoring service.
package retail

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CancellationPrefix marks cancelled invoices in the raw export. Rows whose
// invoice number carries this prefix never reach the curated layer.
const CancellationPrefix = "C"

// RawColumns is the exact header expected on the raw CSV export.
var RawColumns = []string{
	"InvoiceNo", "StockCode", "Description", "Quantity",
	"InvoiceDate", "UnitPrice", "CustomerID", "Country",
}

// RawRecord is one untyped row from the raw transaction export. All fields
// are strings; the Cleaner owns type correction.
type RawRecord struct {
	InvoiceNo   string
	StockCode   string
	Description string
	Quantity    string
	InvoiceDate string
	UnitPrice   string
	CustomerID  string
	Country     string
}

// IsCancellation reports whether the raw row is a cancellation.
func (r RawRecord) IsCancellation() bool {
	return strings.HasPrefix(r.InvoiceNo, CancellationPrefix)
}

// Transaction is one sanitized transaction line in the curated artifact.
// Column names follow the snake_case convention of the curated layer.
type Transaction struct {
	InvoiceNo   string    `parquet:"invoice_no" json:"invoice_no"`
	StockCode   string    `parquet:"stock_code" json:"stock_code"`
	Description string    `parquet:"description" json:"description"`
	Quantity    int64     `parquet:"quantity" json:"quantity"`
	InvoiceDate time.Time `parquet:"invoice_date,timestamp" json:"invoice_date"`
	UnitPrice   float64   `parquet:"unit_price" json:"unit_price"`
	CustomerID  string    `parquet:"customer_id" json:"customer_id"`
	Country     string    `parquet:"country" json:"country"`
}

// Revenue is the line revenue, quantity times unit price.
func (t Transaction) Revenue() decimal.Decimal {
	return decimal.NewFromInt(t.Quantity).Mul(decimal.NewFromFloat(t.UnitPrice))
}

// CustomerFeatures is one row of the customer feature table: RFM values plus
// the derived churn label, keyed by customer_id.
type CustomerFeatures struct {
	CustomerID string  `parquet:"customer_id" json:"customer_id"`
	Recency    int64   `parquet:"recency" json:"recency"`
	Frequency  int64   `parquet:"frequency" json:"frequency"`
	Monetary   float64 `parquet:"monetary" json:"monetary"`
	Churn      int64   `parquet:"churn" json:"churn"`
}

// ScoringInput is the request-scoped feature vector presented to the model.
// It mirrors CustomerFeatures minus the key and the label.
type ScoringInput struct {
	Recency   int     `json:"recency"`
	Frequency int     `json:"frequency"`
	Monetary  float64 `json:"monetary"`
}
