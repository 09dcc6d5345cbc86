package etl

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"retail-churn/internal/retail"
)

// writeParquet writes rows to path atomically: the file is staged alongside
// the target and renamed into place only after a successful close, so a
// failed run never publishes a partial artifact.
func writeParquet[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to stage artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := parquet.NewGenericWriter[T](tmp)
	if _, err := w.Write(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write artifact rows: %w", err)
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to finalize artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to publish artifact: %w", err)
	}
	return nil
}

func readParquet[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	return rows, nil
}

// WriteTransactions publishes the curated transaction artifact.
func WriteTransactions(path string, txns []retail.Transaction) error {
	return writeParquet(path, txns)
}

// ReadTransactions loads the curated transaction artifact.
func ReadTransactions(path string) ([]retail.Transaction, error) {
	return readParquet[retail.Transaction](path)
}

// WriteFeatures publishes the customer feature artifact.
func WriteFeatures(path string, features []retail.CustomerFeatures) error {
	return writeParquet(path, features)
}

// ReadFeatures loads the customer feature artifact.
func ReadFeatures(path string) ([]retail.CustomerFeatures, error) {
	return readParquet[retail.CustomerFeatures](path)
}
