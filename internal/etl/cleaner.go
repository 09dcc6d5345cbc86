// Package etl implements the offline pipeline: cleaning raw transaction
// exports into the curated artifact and aggregating it into the customer
// feature table.
package etl

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/charmap"

	"retail-churn/internal/retail"
)

// invoiceDateLayouts are the timestamp formats seen in raw exports.
var invoiceDateLayouts = []string{
	"1/2/2006 15:04",
	"2006-01-02 15:04:05",
}

// CleanStats counts what each cleaning step removed.
type CleanStats struct {
	TotalRows         int
	MissingCustomerID int
	Cancellations     int
	NonPositiveQty    int
	Duplicates        int
	Retained          int
}

// ReadRaw loads the raw CSV export. The file is decoded as ISO-8859-1, the
// encoding the retail export ships in. A missing or unparsable source is a
// fatal pipeline error.
func ReadRaw(path string) ([]retail.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw source: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(f))
	r.FieldsPerRecord = len(retail.RawColumns)

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read raw header: %w", err)
	}
	for i, col := range retail.RawColumns {
		if strings.TrimSpace(header[i]) != col {
			return nil, fmt.Errorf("unexpected raw column %q at position %d, want %q", header[i], i, col)
		}
	}

	var rows []retail.RawRecord
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read raw row: %w", err)
		}
		rows = append(rows, retail.RawRecord{
			InvoiceNo:   rec[0],
			StockCode:   rec[1],
			Description: rec[2],
			Quantity:    rec[3],
			InvoiceDate: rec[4],
			UnitPrice:   rec[5],
			CustomerID:  rec[6],
			Country:     rec[7],
		})
	}
	return rows, nil
}

// Clean applies the cleaning steps in order: drop rows without a customer,
// correct types, drop cancellations and non-positive quantities, and drop
// exact duplicates. A row that survives the null filter but cannot be typed
// aborts the run; no partial output is ever produced.
func Clean(rows []retail.RawRecord) ([]retail.Transaction, CleanStats, error) {
	stats := CleanStats{TotalRows: len(rows)}
	seen := make(map[string]struct{})
	out := make([]retail.Transaction, 0, len(rows))

	for i, row := range rows {
		if strings.TrimSpace(row.CustomerID) == "" {
			stats.MissingCustomerID++
			continue
		}

		txn, err := typeRow(row)
		if err != nil {
			return nil, stats, fmt.Errorf("row %d: %w", i+1, err)
		}

		if row.IsCancellation() {
			stats.Cancellations++
			continue
		}
		if txn.Quantity <= 0 {
			stats.NonPositiveQty++
			continue
		}

		key := dedupeKey(txn)
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		out = append(out, txn)
	}

	stats.Retained = len(out)
	return out, stats, nil
}

// typeRow corrects the raw row's types into the curated schema.
func typeRow(row retail.RawRecord) (retail.Transaction, error) {
	qty, err := strconv.ParseInt(strings.TrimSpace(row.Quantity), 10, 64)
	if err != nil {
		return retail.Transaction{}, fmt.Errorf("invalid quantity %q: %w", row.Quantity, err)
	}

	price, err := strconv.ParseFloat(strings.TrimSpace(row.UnitPrice), 64)
	if err != nil {
		return retail.Transaction{}, fmt.Errorf("invalid unit price %q: %w", row.UnitPrice, err)
	}

	ts, err := parseInvoiceDate(row.InvoiceDate)
	if err != nil {
		return retail.Transaction{}, err
	}

	customerID, err := canonicalCustomerID(row.CustomerID)
	if err != nil {
		return retail.Transaction{}, err
	}

	return retail.Transaction{
		InvoiceNo:   strings.TrimSpace(row.InvoiceNo),
		StockCode:   strings.TrimSpace(row.StockCode),
		Description: strings.TrimSpace(row.Description),
		Quantity:    qty,
		InvoiceDate: ts,
		UnitPrice:   price,
		CustomerID:  customerID,
		Country:     strings.TrimSpace(row.Country),
	}, nil
}

func parseInvoiceDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range invoiceDateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid invoice date %q", s)
}

// canonicalCustomerID normalizes identifiers that arrive float-formatted
// ("17850.0") down to the plain integer string form.
func canonicalCustomerID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		frac := s[dot+1:]
		if strings.Trim(frac, "0") != "" {
			return "", fmt.Errorf("invalid customer id %q", s)
		}
		s = s[:dot]
	}
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return "", fmt.Errorf("invalid customer id %q: %w", s, err)
	}
	return s, nil
}

func dedupeKey(t retail.Transaction) string {
	return strings.Join([]string{
		t.InvoiceNo, t.StockCode, t.Description,
		strconv.FormatInt(t.Quantity, 10),
		t.InvoiceDate.Format(time.RFC3339),
		strconv.FormatFloat(t.UnitPrice, 'f', -1, 64),
		t.CustomerID, t.Country,
	}, "\x1f")
}

// RunCleaning executes the full cleaning stage: read the raw source, clean
// it, and publish the curated artifact. The artifact is written atomically;
// on any failure no artifact is produced.
func RunCleaning(inputPath, outputPath string) (CleanStats, error) {
	rows, err := ReadRaw(inputPath)
	if err != nil {
		return CleanStats{}, err
	}

	txns, stats, err := Clean(rows)
	if err != nil {
		return stats, err
	}

	if err := WriteTransactions(outputPath, txns); err != nil {
		return stats, err
	}

	log.WithFields(log.Fields{
		"input":               inputPath,
		"output":              outputPath,
		"total_rows":          stats.TotalRows,
		"missing_customer_id": stats.MissingCustomerID,
		"cancellations":       stats.Cancellations,
		"non_positive_qty":    stats.NonPositiveQty,
		"duplicates":          stats.Duplicates,
		"retained":            stats.Retained,
	}).Info("Cleaning finished")
	return stats, nil
}
