package etl

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"retail-churn/internal/retail"
)

// FeatureSet is the output of one feature-builder run: the customer feature
// table plus the run metadata that makes recency reproducible.
type FeatureSet struct {
	RunID        uuid.UUID
	SnapshotDate time.Time
	Customers    []retail.CustomerFeatures
}

type customerAgg struct {
	lastInvoice time.Time
	invoices    map[string]struct{}
	monetary    decimal.Decimal
}

// BuildFeatures aggregates sanitized transactions into one feature row per
// customer. The snapshot date is one day past the latest invoice, so recency
// is never negative. churnWindowDays is the inactivity window beyond which a
// customer is labeled churned.
func BuildFeatures(txns []retail.Transaction, churnWindowDays int) (*FeatureSet, error) {
	if len(txns) == 0 {
		return nil, fmt.Errorf("no transactions to build features from")
	}

	var maxDate time.Time
	aggs := make(map[string]*customerAgg)
	for _, t := range txns {
		if t.InvoiceDate.After(maxDate) {
			maxDate = t.InvoiceDate
		}
		agg, ok := aggs[t.CustomerID]
		if !ok {
			agg = &customerAgg{invoices: make(map[string]struct{})}
			aggs[t.CustomerID] = agg
		}
		if t.InvoiceDate.After(agg.lastInvoice) {
			agg.lastInvoice = t.InvoiceDate
		}
		agg.invoices[t.InvoiceNo] = struct{}{}
		agg.monetary = agg.monetary.Add(t.Revenue())
	}

	snapshot := maxDate.Add(24 * time.Hour)

	customers := make([]retail.CustomerFeatures, 0, len(aggs))
	for id, agg := range aggs {
		recency := int64(snapshot.Sub(agg.lastInvoice).Hours() / 24)
		var churn int64
		if recency > int64(churnWindowDays) {
			churn = 1
		}
		customers = append(customers, retail.CustomerFeatures{
			CustomerID: id,
			Recency:    recency,
			Frequency:  int64(len(agg.invoices)),
			Monetary:   agg.monetary.InexactFloat64(),
			Churn:      churn,
		})
	}
	sort.Slice(customers, func(i, j int) bool {
		return customers[i].CustomerID < customers[j].CustomerID
	})

	return &FeatureSet{
		RunID:        uuid.New(),
		SnapshotDate: snapshot,
		Customers:    customers,
	}, nil
}

// RunFeatureBuild executes the full feature stage: load the curated
// artifact, aggregate it, and publish the feature artifact.
func RunFeatureBuild(inputPath, outputPath string, churnWindowDays int) (*FeatureSet, error) {
	txns, err := ReadTransactions(inputPath)
	if err != nil {
		return nil, err
	}

	fs, err := BuildFeatures(txns, churnWindowDays)
	if err != nil {
		return nil, err
	}

	if err := WriteFeatures(outputPath, fs.Customers); err != nil {
		return nil, err
	}

	var churned int
	for _, c := range fs.Customers {
		churned += int(c.Churn)
	}
	log.WithFields(log.Fields{
		"input":         inputPath,
		"output":        outputPath,
		"run_id":        fs.RunID,
		"snapshot_date": fs.SnapshotDate.Format(time.RFC3339),
		"customers":     len(fs.Customers),
		"churned":       churned,
	}).Info("Feature build finished")
	return fs, nil
}
