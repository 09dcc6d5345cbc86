// Package clickhouse provides the warehouse sink for customer feature runs.
// Optimized for columnar analytics over per-run feature snapshots.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"retail-churn/internal/etl"
)

// CustomerFeatureRow is one feature-table row as stored in the warehouse.
type CustomerFeatureRow struct {
	RunID        uuid.UUID       `ch:"run_id"`
	SnapshotDate time.Time       `ch:"snapshot_date"`
	CustomerID   string          `ch:"customer_id"`
	Recency      int64           `ch:"recency"`
	Frequency    int64           `ch:"frequency"`
	Monetary     decimal.Decimal `ch:"monetary"`
	Churn        uint8           `ch:"churn"`
	CreatedAt    time.Time       `ch:"created_at"`
}

// Config holds ClickHouse connection configuration
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultConfig returns default development configuration
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "retail_churn",
		Username: "default",
		Password: "",
		Debug:    false,
	}
}

// Store is the ClickHouse-backed feature store
type Store struct {
	conn clickhouse.Conn
	cfg  *Config
}

// NewStore creates a new ClickHouse feature store
func NewStore(cfg *Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	return &Store{conn: conn, cfg: cfg}, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// EnsureSchema creates the feature table if it does not exist. Rows from a
// re-published run collapse via ReplacingMergeTree on created_at.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS customer_features (
			run_id        UUID,
			snapshot_date DateTime,
			customer_id   String,
			recency       Int64,
			frequency     Int64,
			monetary      Decimal(18, 2),
			churn         UInt8,
			created_at    DateTime
		)
		ENGINE = ReplacingMergeTree(created_at)
		ORDER BY (run_id, customer_id)
	`
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create customer_features table: %w", err)
	}
	return nil
}

// PublishFeatureSet batch-inserts a full feature run. The run either lands
// completely or the publish fails; readers key on run_id so a failed publish
// is never half-visible as the latest run.
func (s *Store) PublishFeatureSet(ctx context.Context, fs *etl.FeatureSet) error {
	if len(fs.Customers) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO customer_features (
			run_id, snapshot_date, customer_id,
			recency, frequency, monetary, churn, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	now := time.Now()
	for _, c := range fs.Customers {
		row := CustomerFeatureRow{
			RunID:        fs.RunID,
			SnapshotDate: fs.SnapshotDate,
			CustomerID:   c.CustomerID,
			Recency:      c.Recency,
			Frequency:    c.Frequency,
			Monetary:     decimal.NewFromFloat(c.Monetary).Round(2),
			Churn:        uint8(c.Churn),
			CreatedAt:    now,
		}
		if err := batch.Append(
			row.RunID, row.SnapshotDate, row.CustomerID,
			row.Recency, row.Frequency, row.Monetary, row.Churn, row.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	return batch.Send()
}

// CountRun returns the number of feature rows stored for a run.
func (s *Store) CountRun(ctx context.Context, runID uuid.UUID) (uint64, error) {
	var count uint64
	query := `SELECT count() FROM customer_features FINAL WHERE run_id = ?`
	if err := s.conn.QueryRow(ctx, query, runID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count run %s: %w", runID, err)
	}
	return count, nil
}
