// Churn CLI - retail churn pipeline and scoring service
//
// Usage:
//   churn ingest --input data/raw/OnlineRetail.csv
//   churn clean --input data/raw/OnlineRetail.csv --output data/curated/cleaned_online_retail.parquet
//   churn features --input data/curated/cleaned_online_retail.parquet --output data/curated/customer_features.parquet
//   churn serve --model models/artifacts/churn_model_v1.json
package main

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"retail-churn/api"
	"retail-churn/db/clickhouse"
	"retail-churn/internal/alert"
	"retail-churn/internal/config"
	"retail-churn/internal/etl"
	"retail-churn/internal/scoring"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "churn",
		Usage:   "Customer churn pipeline and prediction API for retail transaction logs",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"CHURN_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-host",
				Value:   "localhost",
				Usage:   "ClickHouse host",
				EnvVars: []string{"CLICKHOUSE_HOST"},
			},
			&cli.IntFlag{
				Name:    "clickhouse-port",
				Value:   9000,
				Usage:   "ClickHouse native port",
				EnvVars: []string{"CLICKHOUSE_PORT"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-database",
				Value:   "retail_churn",
				Usage:   "ClickHouse database",
				EnvVars: []string{"CLICKHOUSE_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-user",
				Value:   "default",
				Usage:   "ClickHouse user",
				EnvVars: []string{"CLICKHOUSE_USER"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-password",
				Value:   "",
				Usage:   "ClickHouse password",
				EnvVars: []string{"CLICKHOUSE_PASSWORD"},
			},
		},
		Before: func(c *cli.Context) error {
			return initLogging(c.String("log-level"))
		},

		Commands: []*cli.Command{
			ingestCommand(),
			cleanCommand(),
			featuresCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initLogging(level string) error {
	log.SetFormatter(&log.JSONFormatter{})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	return nil
}

// =============================================================================
// INGEST COMMAND
// =============================================================================

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Validate the raw transaction export and print a preview",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "Path to the raw transaction CSV",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "preview",
				Value: 5,
				Usage: "Number of rows to preview",
			},
		},
		Action: runIngest,
	}
}

func runIngest(c *cli.Context) error {
	rows, err := etl.ReadRaw(c.String("input"))
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"input": c.String("input"),
		"rows":  len(rows),
	}).Info("Raw source loaded")

	preview := c.Int("preview")
	if preview > len(rows) {
		preview = len(rows)
	}
	for _, row := range rows[:preview] {
		fmt.Printf("%s  %s  qty=%s  price=%s  customer=%s  %s\n",
			row.InvoiceNo, row.StockCode, row.Quantity, row.UnitPrice, row.CustomerID, row.Country)
	}
	return nil
}

// =============================================================================
// CLEAN COMMAND
// =============================================================================

func cleanCommand() *cli.Command {
	return &cli.Command{
		Name:  "clean",
		Usage: "Clean the raw export into the curated transaction artifact",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "Path to the raw transaction CSV",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    "Path for the curated parquet artifact",
				Required: true,
			},
		},
		Action: runClean,
	}
}

func runClean(c *cli.Context) error {
	_, err := etl.RunCleaning(c.String("input"), c.String("output"))
	return err
}

// =============================================================================
// FEATURES COMMAND
// =============================================================================

func featuresCommand() *cli.Command {
	return &cli.Command{
		Name:  "features",
		Usage: "Build the customer feature table from the curated artifact",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "Path to the curated parquet artifact",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    "Path for the feature parquet artifact",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "churn-window-days",
				Value:   90,
				Usage:   "Inactivity window beyond which a customer is labeled churned",
				EnvVars: []string{"CHURN_WINDOW_DAYS"},
			},
			&cli.BoolFlag{
				Name:  "clickhouse",
				Value: false,
				Usage: "Also publish the feature run to the ClickHouse feature store",
			},
		},
		Action: runFeatures,
	}
}

func runFeatures(c *cli.Context) error {
	fs, err := etl.RunFeatureBuild(c.String("input"), c.String("output"), c.Int("churn-window-days"))
	if err != nil {
		return err
	}

	if !c.Bool("clickhouse") {
		return nil
	}

	store, err := clickhouse.NewStore(&clickhouse.Config{
		Host:     c.String("clickhouse-host"),
		Port:     c.Int("clickhouse-port"),
		Database: c.String("clickhouse-database"),
		Username: c.String("clickhouse-user"),
		Password: c.String("clickhouse-password"),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	defer store.Close()

	ctx := c.Context
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := store.PublishFeatureSet(ctx, fs); err != nil {
		return fmt.Errorf("failed to publish feature run: %w", err)
	}

	log.WithFields(log.Fields{
		"run_id":        fs.RunID,
		"snapshot_date": fs.SnapshotDate.Format(time.RFC3339),
		"customers":     len(fs.Customers),
	}).Info("Feature run published to ClickHouse")
	return nil
}

// =============================================================================
// SERVE COMMAND
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the churn prediction API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Value:   "models/artifacts/churn_model_v1.json",
				Usage:   "Path to the fit model artifact",
				EnvVars: []string{"CHURN_MODEL_PATH"},
			},
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "API server port",
				EnvVars: []string{"CHURN_PORT"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	// A missing or corrupt model artifact fails startup.
	model, err := scoring.LoadModel(c.String("model"))
	if err != nil {
		return err
	}

	cfg := config.Load()
	if cfg.WebhookURL == config.PlaceholderWebhookURL {
		log.Warn("CHURN_ALERT_WEBHOOK_URL not set; alert deliveries will fail silently")
	}

	serverCfg := api.DefaultConfig()
	serverCfg.Port = c.Int("port")

	server := api.NewServer(model, alert.NewDispatcher(cfg), serverCfg)
	return server.StartWithGracefulShutdown()
}
