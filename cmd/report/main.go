package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/stocklens/internal/cache"
	"github.com/andresuchdata/stocklens/internal/config"
	"github.com/andresuchdata/stocklens/internal/domain"
	"github.com/andresuchdata/stocklens/internal/platform"
	"github.com/andresuchdata/stocklens/internal/repository"
	"github.com/andresuchdata/stocklens/internal/repository/postgres"
	"github.com/andresuchdata/stocklens/internal/sellthrough"
	"github.com/andresuchdata/stocklens/internal/service"
	"github.com/andresuchdata/stocklens/internal/storage"
	"github.com/andresuchdata/stocklens/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Log.Debug().Err(err).Msg("no .env file loaded")
	}
	decimal.MarshalJSONWithoutQuotes = true

	app := &cli.App{
		Name:  "report",
		Usage: "Run a one-shot inventory availability report",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "months",
				Usage:   "Trailing window length in months",
				EnvVars: []string{"REPORT_RANGE_MONTHS"},
			},
			&cli.StringFlag{
				Name:    "policy",
				Usage:   "Reconstruction policy: forward or backward",
				EnvVars: []string{"REPORT_POLICY"},
			},
			&cli.BoolFlag{
				Name:  "merge",
				Usage: "Join the sell-through export into the report",
			},
			&cli.StringFlag{
				Name:  "sell-through-file",
				Usage: "Local sell-through export (.csv or .xlsx), overrides SELL_THROUGH_URL",
			},
			&cli.StringFlag{
				Name:  "sell-through-object",
				Usage: "Export key or prefix in the configured object storage, overrides --sell-through-file",
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Write the report JSON to this file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "upload",
				Usage: "Upload the report JSON to the configured object storage",
			},
		},
		Action: runReport,
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("report failed")
	}
}

func runReport(c *cli.Context) error {
	cfg := config.Load()

	reportCfg := cfg.Report
	if c.Int("months") > 0 {
		reportCfg.RangeMonths = c.Int("months")
	}
	if c.String("policy") != "" {
		reportCfg.Policy = c.String("policy")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	client := platform.NewClient(platform.Config{
		StoreDomain: cfg.Platform.StoreDomain,
		AccessToken: cfg.Platform.AccessToken,
		APIVersion:  cfg.Platform.APIVersion,
	}, nil)

	var loader service.SellThroughLoader
	if spec := c.String("sell-through-object"); spec != "" {
		loader = objectLoader(cfg.Storage, spec)
	} else {
		loader = buildLoader(c.String("sell-through-file"), cfg.SellThrough.URL, client)
	}

	var runs repository.ReportRunRepository
	if cfg.Database.Enabled {
		db, err := postgres.NewDB(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		runs = repository.NewReportRunRepository(db)
	}

	svc := service.NewReportService(client, loader, cache.NewNoopReportCache(), runs, reportCfg, cfg.SellThrough.Required)

	report, err := svc.Run(c.Context, service.RunOptions{
		Months: reportCfg.RangeMonths,
		Merge:  c.Bool("merge"),
	})
	if err != nil {
		// Still emit the single failure envelope the contract promises.
		payload, _ := json.Marshal(domain.Report{OK: false, Error: err.Error()})
		fmt.Println(string(payload))
		return err
	}

	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if out := c.String("out"); out != "" {
		if err := os.WriteFile(out, payload, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		logger.Log.Info().Str("path", out).Msg("report written")
	} else {
		fmt.Println(string(payload))
	}

	if c.Bool("upload") {
		if err := uploadReport(c.Context, cfg.Storage, report, payload); err != nil {
			return err
		}
	}

	return nil
}

func buildLoader(localPath, url string, client *platform.Client) service.SellThroughLoader {
	if localPath != "" {
		return func(ctx context.Context) (map[string]domain.ExternalSkuRecord, error) {
			body, err := sellthrough.LoadFile(localPath)
			if err != nil {
				return nil, err
			}
			return sellthrough.Records(body)
		}
	}
	if url != "" {
		return func(ctx context.Context) (map[string]domain.ExternalSkuRecord, error) {
			body, err := sellthrough.Fetch(ctx, client.HTTPClient(), url)
			if err != nil {
				return nil, err
			}
			return sellthrough.Records(body)
		}
	}
	return nil
}

// objectLoader sources the sell-through export from object storage: resolve
// the newest export under the given key/prefix, download it, parse it.
func objectLoader(cfg config.StorageConfig, spec string) service.SellThroughLoader {
	return func(ctx context.Context) (map[string]domain.ExternalSkuRecord, error) {
		store, err := storage.NewMinioClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize object storage: %w", err)
		}
		key, err := resolveExportKey(ctx, store, spec)
		if err != nil {
			return nil, err
		}
		dest := filepath.Join(os.TempDir(), "stocklens", filepath.Base(key))
		if err := store.DownloadObject(ctx, key, dest); err != nil {
			return nil, err
		}
		body, err := sellthrough.LoadFile(dest)
		if err != nil {
			return nil, err
		}
		return sellthrough.Records(body)
	}
}

// resolveExportKey treats spec as a prefix and picks the newest (highest
// sorting) csv/xlsx key under it. An exact key lists as itself and passes
// through unchanged.
func resolveExportKey(ctx context.Context, store storage.ObjectStorage, spec string) (string, error) {
	objects, err := store.ListObjects(ctx, spec)
	if err != nil {
		return "", fmt.Errorf("failed to list exports under %s: %w", spec, err)
	}

	var keys []string
	for _, obj := range objects {
		lower := strings.ToLower(obj.Key)
		if strings.HasSuffix(lower, ".csv") || strings.HasSuffix(lower, ".xlsx") {
			keys = append(keys, obj.Key)
		}
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("no export found under %s", spec)
	}
	sort.Strings(keys)
	return keys[len(keys)-1], nil
}

func uploadReport(ctx context.Context, cfg config.StorageConfig, report *domain.Report, payload []byte) error {
	store, err := storage.NewMinioClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}
	key := fmt.Sprintf("reports/availability_%s_%s.json", report.EndDate, uuid.NewString())
	if err := store.UploadObject(ctx, key, payload); err != nil {
		return err
	}
	logger.Log.Info().Str("key", key).Msg("report uploaded")
	return nil
}
