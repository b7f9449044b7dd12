package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jemadeira/extrato/internal/audit"
	"github.com/jemadeira/extrato/internal/classify"
	"github.com/jemadeira/extrato/internal/config"
	"github.com/jemadeira/extrato/internal/domain"
	"github.com/jemadeira/extrato/internal/logger"
	"github.com/jemadeira/extrato/internal/ofx"
	"github.com/jemadeira/extrato/internal/pipeline"
)

func main() {
	log := logger.New("extrato")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "process":
		runProcess(log)
	case "inspect":
		runInspect(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Extrato CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  process   Parse, classify and summarize OFX statement files")
	fmt.Println("  inspect   Parse OFX files and print the raw records")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runProcess(log zerolog.Logger) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to pipeline config JSON (optional)")
	auditDir := fs.String("audit-dir", "audit", "Directory for classification decision logs")
	bank := fs.String("bank", "", "Bank variant for every file: bb or itau (default auto-detect)")
	fs.Parse(os.Args[2:])

	paths := fs.Args()
	if len(paths) == 0 {
		log.Fatal().Msg("Usage: cli process [options] FILE.ofx|DIR [...]")
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFile(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("Failed to load config")
		}
	}

	variant := domain.Bank(*bank)
	if *bank != "" && !variant.Valid() {
		log.Fatal().Str("bank", *bank).Msg("Unknown bank variant")
	}

	files, err := readFiles(paths, variant)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read statement files")
	}

	auditLog, err := audit.NewFileLog(*auditDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audit log")
	}
	defer auditLog.Close()

	reasoner := classify.NewGeminiReasoner(cfg.Model)
	p, err := pipeline.New(cfg, reasoner, auditLog)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build pipeline")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	state, err := p.Execute(ctx, files)
	if err != nil {
		printRunReport(state.Run)
		log.Fatal().Err(err).Str("failed_stage", string(state.Run.FailedStage)).Msg("Processing failed")
	}

	printRunReport(state.Run)
	printReport(state)
	fmt.Printf("\nDecision log: %s\n", auditLog.Path())
}

func runInspect(log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	bank := fs.String("bank", "", "Bank variant: bb or itau (default auto-detect)")
	fs.Parse(os.Args[2:])

	paths := fs.Args()
	if len(paths) == 0 {
		log.Fatal().Msg("Usage: cli inspect [options] FILE.ofx [FILE.ofx ...]")
	}

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("Failed to open file")
		}

		variant := domain.Bank(*bank)
		if *bank == "" {
			variant, err = ofx.DetectBank(f, filepath.Base(path))
			if err != nil {
				f.Close()
				log.Fatal().Err(err).Str("file", path).Msg("Failed to detect bank variant")
			}
			if _, err := f.Seek(0, 0); err != nil {
				f.Close()
				log.Fatal().Err(err).Str("file", path).Msg("Failed to rewind file")
			}
		}

		parser, err := ofx.New(variant)
		if err != nil {
			f.Close()
			log.Fatal().Err(err).Msg("Failed to build parser")
		}

		records, err := parser.Parse(f, filepath.Base(path))
		f.Close()
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("Parse failed")
		}

		fmt.Printf("\n=== %s (%s, %d records) ===\n", path, variant, len(records))
		for i, rec := range records {
			fmt.Printf("\n%d. line %d\n", i+1, rec.Line)
			keys := make([]string, 0, len(rec.Fields))
			for k := range rec.Fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("   %-12s %s\n", k, rec.Fields[k])
			}
		}
	}
	fmt.Println()
}

// readFiles loads the given statement files. A directory argument expands to
// every .ofx file directly inside it.
func readFiles(paths []string, bank domain.Bank) ([]pipeline.File, error) {
	var expanded []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			expanded = append(expanded, path)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(path, "*.ofx"))
		if err != nil {
			return nil, err
		}
		expanded = append(expanded, matches...)
	}
	if len(expanded) == 0 {
		return nil, fmt.Errorf("no statement files found")
	}

	files := make([]pipeline.File, 0, len(expanded))
	for _, path := range expanded {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		files = append(files, pipeline.File{
			Name: filepath.Base(path),
			Bank: bank,
			Data: data,
		})
	}
	return files, nil
}

func printRunReport(run pipeline.RunReport) {
	fmt.Println("\n=== Run Report ===")
	fmt.Printf("Stage:       %s\n", run.Stage)
	if run.Stage == pipeline.StageFailed {
		fmt.Printf("Failed at:   %s\n", run.FailedStage)
	}
	fmt.Printf("Parsed:      %d records\n", run.TotalParsed)
	fmt.Printf("Normalized:  %d transactions\n", run.TotalNormalized)
	fmt.Printf("Categories:  %d by rule, %d by model, %d fallback\n",
		run.RuleCount, run.AICount, run.FallbackCount)

	if run.BalanceDropped > 0 {
		fmt.Printf("Dropped:     %d balance records\n", run.BalanceDropped)
	}
	for _, fe := range run.FileErrors {
		fmt.Printf("File error:  %s: %v\n", fe.File, fe.Err)
	}
	for _, skip := range run.SkippedRecords {
		fmt.Printf("Skipped:     %v\n", skip)
	}
}

func printReport(state *pipeline.State) {
	if state.Report == nil {
		return
	}

	fmt.Println("\n=== Summary by Period and Category ===")
	period := ""
	for _, s := range state.Report.Summaries {
		if s.Period != period {
			period = s.Period
			fmt.Printf("\n%s\n%s\n", period, strings.Repeat("-", len(period)))
		}
		line := fmt.Sprintf("  %-22s credits %12s  debits %12s  net %12s  (%d txns",
			s.Category, s.Credits.StringFixed(2), s.Debits.StringFixed(2), s.Net.StringFixed(2), s.Count)
		if s.FallbackCount > 0 {
			line += fmt.Sprintf(", %d fallback", s.FallbackCount)
		}
		fmt.Println(line + ")")
	}

	fmt.Println("\n=== Totals ===")
	fmt.Printf("Credits: %s\n", state.Report.TotalCredits.StringFixed(2))
	fmt.Printf("Debits:  %s\n", state.Report.TotalDebits.StringFixed(2))
	fmt.Printf("Net:     %s\n", state.Report.Net.StringFixed(2))
}
