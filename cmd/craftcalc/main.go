package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"craft-flipping/pkg/config"
	"craft-flipping/pkg/database"
	"craft-flipping/pkg/jobs"
	"craft-flipping/pkg/logging"
	"craft-flipping/pkg/profit"
	"craft-flipping/pkg/storage"
	"craft-flipping/pkg/tracker"
)

func main() {
	var (
		configPath = flag.String("config", "config.yml", "Path to config.yml")
		apiKey     = flag.String("apikey", "", "Validate and save a DonutSMP API key")
		refresh    = flag.Bool("refresh", false, "Reload auction data before anything else")
		status     = flag.Bool("status", false, "Show cache and refresh status")
		budget     = flag.Float64("budget", 0, "List profitable crafts whose materials cost at most this much")
		item       = flag.String("item", "", "Show the recipe breakdown for one item (id or name)")
		all        = flag.Bool("all", false, "Rank every priced craft by profit")
		limit      = flag.Int("limit", 10, "Maximum rows to print")
		reportName = flag.String("report", "", "Run a named report from config.yml")
		allReports = flag.Bool("reports", false, "Run all enabled reports from config.yml")
		capture    = flag.String("capture", "", "Read auction prices from a chat log (- for stdin)")
		autoToggle = flag.String("autorefresh", "", "Turn periodic refresh on or off for the bot and collector")
		intervalM  = flag.Int("interval-minutes", 0, "Set the periodic refresh interval in minutes")
		history    = flag.String("history", "", "Show archived lowest prices for one item (needs DATABASE_URL)")
		window     = flag.Duration("window", 24*time.Hour, "How far back -history looks")
		outputDir  = flag.String("output", "", "Also write rankings and reports as markdown into this directory")
		help       = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		printHelp()
		return
	}

	if *reportName != "" && *allReports {
		log.Fatal("Cannot specify both -report and -reports. Use either one or the other.")
	}

	cfg, err := config.LoadConfigForCLI(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	t, err := tracker.NewFromConfig(cfg, nil, logger)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	ctx := context.Background()

	if *apiKey != "" {
		fmt.Println("Validating API key...")
		if ok := <-t.ValidateCredential(ctx, *apiKey); !ok {
			log.Fatal("Invalid API key! Please check and try again.")
		}
		fmt.Println("API key set successfully!")
		fmt.Println("Use -refresh to load auction data")
	}

	settingsChanged := *autoToggle != "" || *intervalM != 0
	if *autoToggle != "" {
		enabled, err := config.ParseToggle(*autoToggle)
		if err != nil {
			log.Fatalf("Invalid -autorefresh: %v", err)
		}
		if err := t.Settings().SetAutoRefresh(enabled); err != nil {
			log.Fatalf("Failed to save settings: %v", err)
		}
		if enabled {
			fmt.Println("Auto refresh turned on")
		} else {
			fmt.Println("Auto refresh turned off")
		}
	}
	if *intervalM != 0 {
		if err := t.Settings().SetRefreshIntervalMinutes(*intervalM); err != nil {
			log.Fatalf("Invalid -interval-minutes: %v", err)
		}
		fmt.Printf("Refresh interval set to %d minutes\n", *intervalM)
	}

	wantsRanking := *budget > 0 || *item != "" || *all || *reportName != "" || *allReports
	if *refresh || (wantsRanking && t.Status().CredentialSet && t.Cache().NeedsRefresh()) {
		fmt.Println("Refreshing auction data...")
		outcome := t.RefreshNow(ctx)
		fmt.Println(outcome.Message)
	}

	// a refresh replaces the cache, so chat prices go in after it
	capturePath := *capture
	if capturePath == "" {
		capturePath = cfg.Capture.Path
	}
	if capturePath == "-" {
		stats, err := t.ConsumeChat(ctx, os.Stdin)
		if err != nil {
			log.Printf("Chat capture failed: %v", err)
		}
		fmt.Printf("Captured %d prices from %d chat lines\n", stats.Ingested, stats.Lines)
	} else if err := t.CaptureFile(ctx, capturePath); err != nil {
		log.Printf("Chat capture failed: %v", err)
	}

	if *status {
		fmt.Print(t.Status().String())
	}

	if *item != "" {
		calc, err := t.Detail(*item)
		switch {
		case errors.Is(err, tracker.ErrUnknownGood):
			fmt.Printf("No item matches %q\n", *item)
		case err != nil:
			fmt.Printf("%v\n", err)
		default:
			fmt.Print(t.Formatter().FormatDetail(calc))
		}
	}

	if *budget > 0 {
		report := &profit.Report{
			Name:        "Profitable Crafts",
			Budget:      *budget,
			Results:     head(t.FindProfitable(*budget), *limit),
			GeneratedAt: time.Now(),
		}
		fmt.Print(t.Formatter().FormatForTerminal(report))
		saveMarkdown(*outputDir, "profitable", report.GeneratedAt, t.Formatter().FormatForMarkdown(report))
	}

	if *all {
		report := &profit.Report{
			Name:        "All Crafts",
			Results:     head(t.AllProfits(), *limit),
			GeneratedAt: time.Now(),
		}
		fmt.Print(t.Formatter().FormatForTerminal(report))
		saveMarkdown(*outputDir, "all", report.GeneratedAt, t.Formatter().FormatForMarkdown(report))
	}

	if *reportName != "" || *allReports {
		runReports(ctx, cfg, t, logger, *reportName, *outputDir)
	}

	if *history != "" {
		showHistory(ctx, cfg, t, *history, *window)
	}

	if !*status && *apiKey == "" && !*refresh && !wantsRanking && *history == "" && *capture == "" && !settingsChanged {
		fmt.Print(t.Status().String())
		fmt.Println("\nUse -help to see available flags.")
	}
}

func runReports(ctx context.Context, cfg *config.Config, t *tracker.Tracker, logger *logging.Logger, name, outputDir string) {
	if name != "" && cfg.GetReportByName(name) == nil {
		available := make([]string, len(cfg.Reports))
		for i, r := range cfg.Reports {
			available[i] = fmt.Sprintf("  - \"%s\"", r.Name)
		}
		log.Fatalf("Report \"%s\" not found in configuration.\n\nAvailable reports:\n%s",
			name, strings.Join(available, "\n"))
	}

	executor := jobs.NewExecutor(cfg, t, t.Formatter(), nil, logger)
	formatter := executor.Formatter()

	var results []*jobs.ReportResult
	if name != "" {
		result, err := executor.ExecuteReportWithResult(ctx, name)
		if err != nil {
			log.Fatalf("Failed to run report %s: %v", name, err)
		}
		results = []*jobs.ReportResult{result}
	} else {
		results = executor.RunAll(ctx)
	}

	successCount := 0
	for _, result := range results {
		fmt.Print(formatter.FormatForTerminal(result))
		if result.Success {
			successCount++
			saveMarkdown(outputDir, result.ReportName, result.StartTime, formatter.FormatForMarkdown(result))
		}
	}

	fmt.Println("\n✅ Report execution complete!")
	fmt.Printf("   Total reports: %d\n", len(results))
	fmt.Printf("   Successful: %d\n", successCount)
	fmt.Printf("   Failed: %d\n", len(results)-successCount)
}

func showHistory(ctx context.Context, cfg *config.Config, t *tracker.Tracker, query string, window time.Duration) {
	good, ok := t.Lookup(query)
	if !ok {
		fmt.Printf("No item matches %q\n", query)
		return
	}

	dbConfig, err := database.ConfigFromURL(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Price history needs the snapshot archive: %v", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := database.Connect(connectCtx, dbConfig)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	summary, err := storage.NewQueryRepository(db.Pool).GetHistorySummary(ctx, good.ID, window)
	if err != nil {
		log.Fatalf("Failed to load price history: %v", err)
	}

	fmt.Printf("\n📈 %s over the last %s\n", good.Name, window)
	if summary.Points == 0 {
		fmt.Println("   No archived prices in this window")
		return
	}
	fmt.Printf("   Snapshots: %d\n", summary.Points)
	fmt.Printf("   Lowest:    $%.2f\n", summary.Min)
	fmt.Printf("   Highest:   $%.2f\n", summary.Max)
	fmt.Printf("   Average:   $%.2f\n", summary.Average)
	fmt.Printf("   Latest:    $%.2f (%+.1f%%)\n", summary.Last, summary.Change()*100)
}

func head(calcs []profit.Calculation, n int) []profit.Calculation {
	if n > 0 && len(calcs) > n {
		return calcs[:n]
	}
	return calcs
}

func saveMarkdown(dir, name string, at time.Time, content string) {
	if dir == "" {
		return
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("Failed to create output directory: %v", err)
		return
	}

	slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
	filename := filepath.Join(dir, filepath.Clean(fmt.Sprintf("%s_%s.md", slug, at.Format("2006-01-02_15-04-05"))))
	if err := os.WriteFile(filename, []byte(content), 0644); err != nil {
		log.Printf("Failed to write markdown file %s: %v", filename, err)
		return
	}
	fmt.Printf("📄 Results saved to: %s\n", filename)
}

func printHelp() {
	fmt.Println("⚒️  Craft Flipping Calculator")
	fmt.Println("=============================")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  -apikey=KEY        Validate and save your DonutSMP API key")
	fmt.Println("  -refresh           Reload auction data")
	fmt.Println("  -status            Show cache and refresh status")
	fmt.Println("  -budget=N          List profitable crafts costing at most N")
	fmt.Println("  -item=\"Name\"       Recipe breakdown for one item")
	fmt.Println("  -all               Rank every priced craft")
	fmt.Println("  -limit=N           Rows to print (default 10)")
	fmt.Println("  -report=\"Name\"     Run a report from config.yml")
	fmt.Println("  -reports           Run all enabled reports")
	fmt.Println("  -capture=FILE      Read prices from a chat log (- reads stdin)")
	fmt.Println("  -history=\"Name\"    Archived price history for one item")
	fmt.Println("  -autorefresh=on|off Periodic refresh for the bot and collector")
	fmt.Println("  -interval-minutes=N Periodic refresh interval")
	fmt.Println("  -window=DUR        History window (default 24h)")
	fmt.Println("  -output=DIR        Save markdown copies of rankings")
	fmt.Println("  -config=FILE       Config file (default config.yml)")
	fmt.Println("  -help              Show this help message")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  ./craftcalc -apikey=abc123 -refresh")
	fmt.Println("  ./craftcalc -budget=5000 -limit=20")
	fmt.Println("  ./craftcalc -item=\"Iron Pickaxe\"")
}
