package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cannaflow/cannaflow/pkg/compliance"
	"github.com/cannaflow/cannaflow/pkg/infrastructure/config"
	"github.com/cannaflow/cannaflow/pkg/storage"
	"github.com/cannaflow/cannaflow/pkg/storage/postgres"
)

const usage = `Usage: cannaflow-compliance <command> [flags]

Commands:
  status     Show retention status for the stored compliance logs
  settings   Show or update compliance settings
  issues     List outstanding compliance issues
  log        Record a sale, inventory, or cash-float event
  summary    Generate a daily summary
  archive    Archive expired logs to the export directory
  export     Export compliance logs

Run 'cannaflow-compliance <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	ctx := context.Background()
	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "status":
		err = runStatus(ctx, args)
	case "settings":
		err = runSettings(ctx, args)
	case "issues":
		err = runIssues(ctx, args)
	case "log":
		err = runLog(ctx, args)
	case "summary":
		err = runSummary(ctx, args)
	case "archive":
		err = runArchive(ctx, args)
	case "export":
		err = runExport(ctx, args)
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", command, usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds an engine over the configured backend.
func setup(ctx context.Context, configPath string) (*compliance.Engine, func(), error) {
	if configPath == "" {
		if defaultPath, err := config.GetDefaultConfigPath(); err == nil {
			configPath = defaultPath
		}
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var store storage.Store
	cleanup := func() {}
	switch cfg.Storage.Backend {
	case "memory":
		store = storage.NewMemoryStore()
	case "file":
		store, err = storage.NewFileStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, err
		}
	case "postgres":
		pg, err := postgres.New(ctx, &postgres.Config{
			ConnectionString: cfg.Storage.Postgres.ConnectionString,
			MaxConnections:   int32(cfg.Storage.Postgres.MaxConnections),
			ConnectTimeout:   time.Duration(cfg.Storage.Postgres.ConnectTimeout) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := pg.MigrateToLatest(); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		store = pg
		cleanup = pg.Close
	default:
		return nil, nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}

	engine := compliance.New(store,
		compliance.WithSink(compliance.NewFileSink(cfg.Export.Dir)),
	)
	if err := engine.Initialize(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return engine, cleanup, nil
}

func runStatus(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("status", flag.ExitOnError)
	configFile := flags.String("config", "", "Configuration file path")
	flags.Parse(args)

	engine, cleanup, err := setup(ctx, *configFile)
	if err != nil {
		return err
	}
	defer cleanup()

	status, err := engine.RetentionStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Retention period: %d years\n", status.RetentionPeriodYears)
	fmt.Printf("Total logs:       %d\n", status.TotalLogs)
	fmt.Printf("Current:          %d\n", status.CurrentLogs)
	fmt.Printf("Expiring soon:    %d\n", status.ExpiringLogs)
	fmt.Printf("Expired:          %d\n", status.ExpiredLogs)
	if status.OldestLog != nil {
		fmt.Printf("Oldest log:       %s\n", status.OldestLog.Format(time.RFC3339))
	}
	if status.NewestLog != nil {
		fmt.Printf("Newest log:       %s\n", status.NewestLog.Format(time.RFC3339))
	}
	return nil
}

func runSettings(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("settings", flag.ExitOnError)
	configFile := flags.String("config", "", "Configuration file path")
	province := flags.String("province", "", "Set the province code (BC, ON, AB, QC, ...)")
	businessName := flags.String("business-name", "", "Set the business name")
	licenseNumber := flags.String("license", "", "Set the license number")
	location := flags.String("location", "", "Set the store location")
	retention := flags.Int("retention-years", 0, "Set the retention period in years")
	format := flags.String("export-format", "", "Set the default export format (csv, json, xml)")
	flags.Parse(args)

	engine, cleanup, err := setup(ctx, *configFile)
	if err != nil {
		return err
	}
	defer cleanup()

	var patch compliance.SettingsPatch
	changed := false
	if *province != "" {
		p := compliance.Province(*province)
		patch.Province = &p
		changed = true
	}
	if *businessName != "" {
		patch.BusinessName = businessName
		changed = true
	}
	if *licenseNumber != "" {
		patch.LicenseNumber = licenseNumber
		changed = true
	}
	if *location != "" {
		patch.Location = location
		changed = true
	}
	if *retention != 0 {
		patch.RetentionPeriodYears = retention
		changed = true
	}
	if *format != "" {
		f := compliance.ExportFormat(*format)
		patch.ExportFormat = &f
		changed = true
	}

	settings, err := engine.Settings(ctx)
	if err != nil {
		return err
	}
	if changed {
		settings, err = engine.UpdateSettings(ctx, patch)
		if err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runIssues(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("issues", flag.ExitOnError)
	configFile := flags.String("config", "", "Configuration file path")
	flags.Parse(args)

	engine, cleanup, err := setup(ctx, *configFile)
	if err != nil {
		return err
	}
	defer cleanup()

	issues, err := engine.CheckIssues(ctx)
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		fmt.Println("No outstanding compliance issues.")
		return nil
	}

	for _, issue := range issues {
		fmt.Printf("[%s] %s\n", issue.Severity, issue.Message)
		fmt.Printf("        action: %s\n", issue.Action)
	}
	return nil
}

func runLog(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("log", flag.ExitOnError)
	configFile := flags.String("config", "", "Configuration file path")
	kind := flags.String("kind", "sale", "Event kind: sale, inventory, cashfloat")
	total := flags.Float64("total", 0, "Sale total")
	tax := flags.Float64("tax", 0, "Sale tax")
	staff := flags.String("staff", "", "Staff identifier")
	productName := flags.String("product", "", "Product name (inventory)")
	adjustment := flags.String("adjustment", "", "Adjustment type: received, sold, returned, destroyed")
	quantity := flags.Float64("quantity", 0, "Adjustment quantity (inventory)")
	reason := flags.String("reason", "", "Adjustment reason (inventory)")
	activity := flags.String("activity", "", "Activity type: open, close, adjustment (cashfloat)")
	amount := flags.Float64("amount", 0, "Cash amount (cashfloat)")
	notes := flags.String("notes", "", "Notes (cashfloat)")
	flags.Parse(args)

	engine, cleanup, err := setup(ctx, *configFile)
	if err != nil {
		return err
	}
	defer cleanup()

	var entry *compliance.LogEntry
	switch *kind {
	case "sale":
		entry, err = engine.LogSale(ctx, compliance.SaleRecord{
			Total:   *total,
			Tax:     *tax,
			StaffID: *staff,
		})
	case "inventory":
		entry, err = engine.LogInventoryAdjustment(ctx, compliance.InventoryAdjustment{
			ProductName:    *productName,
			AdjustmentType: *adjustment,
			Quantity:       *quantity,
			Reason:         *reason,
			StaffID:        *staff,
		})
	case "cashfloat":
		entry, err = engine.LogCashFloat(ctx, compliance.CashFloatActivity{
			ActivityType: *activity,
			Amount:       *amount,
			StaffID:      *staff,
			Notes:        *notes,
		})
	default:
		return fmt.Errorf("unknown event kind: %s", *kind)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Recorded %s log %s\n", entry.Type, entry.ID)
	return nil
}

func runSummary(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("summary", flag.ExitOnError)
	configFile := flags.String("config", "", "Configuration file path")
	date := flags.String("date", "", "Day to summarize as YYYY-MM-DD (default: today)")
	flags.Parse(args)

	engine, cleanup, err := setup(ctx, *configFile)
	if err != nil {
		return err
	}
	defer cleanup()

	entry, err := engine.GenerateDailySummary(ctx, *date)
	if err != nil {
		return err
	}

	fmt.Printf("Generated summary %s\n", entry.Data["id"])
	fmt.Printf("  Sales:       $%.2f across %v transactions\n",
		entry.Data["totalSales"], entry.Data["transactionCount"])
	fmt.Printf("  Tax:         $%.2f\n", entry.Data["totalTax"])
	fmt.Printf("  Inventory:   %v adjustments\n", entry.Data["inventoryAdjustments"])
	fmt.Printf("  Cash float:  %v activities\n", entry.Data["cashFloatActivities"])
	return nil
}

func runArchive(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("archive", flag.ExitOnError)
	configFile := flags.String("config", "", "Configuration file path")
	flags.Parse(args)

	engine, cleanup, err := setup(ctx, *configFile)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := engine.ArchiveExpired(ctx)
	if err != nil {
		return err
	}

	fmt.Println(result.Message)
	if result.ArchiveLocation != "" {
		fmt.Printf("Archive written to %s\n", result.ArchiveLocation)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("export", flag.ExitOnError)
	configFile := flags.String("config", "", "Configuration file path")
	format := flags.String("format", "", "Export format: csv, json, xml (default: configured format)")
	logType := flags.String("type", "", "Limit to one log type (sale, inventory, cash_float, daily_summary, audit)")
	start := flags.String("start", "", "Window start as YYYY-MM-DD (default: yesterday)")
	end := flags.String("end", "", "Window end as YYYY-MM-DD (default: now)")
	flags.Parse(args)

	engine, cleanup, err := setup(ctx, *configFile)
	if err != nil {
		return err
	}
	defer cleanup()

	options := compliance.ExportOptions{
		Format:  compliance.ExportFormat(*format),
		LogType: compliance.LogType(*logType),
	}
	if *start != "" {
		t, err := time.ParseInLocation("2006-01-02", *start, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
		options.StartDate = &t
	}
	if *end != "" {
		t, err := time.ParseInLocation("2006-01-02", *end, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
		// Include the whole end day.
		t = t.Add(24*time.Hour - time.Millisecond)
		options.EndDate = &t
	}

	result, err := engine.Export(ctx, options)
	if err != nil {
		return err
	}

	fmt.Printf("Exported %d logs to %s\n", result.Count, result.Location)
	return nil
}
