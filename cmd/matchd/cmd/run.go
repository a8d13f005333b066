package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"settlement-matching-service/cmd/matchd/config"
	"settlement-matching-service/internal/engine"
	"settlement-matching-service/internal/matcher"
	"settlement-matching-service/internal/models"
	"settlement-matching-service/internal/reporter"
	"settlement-matching-service/internal/store"
	"settlement-matching-service/internal/verify"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the run command
var (
	recordType    string
	recordIDs     []string
	autoApply     bool
	dryRun        bool
	actor         string
	databaseURL   string
	verifyURL     string
	verifyAPIKey  string
	verifyTimeout time.Duration
	profile       string
	showProgress  bool
	outputFormat  string
	outputFile    string

	entityRulesFile string
	entityRules     []string

	amountTolerance float64
	dateGraceDays   int
	highThreshold   float64
	mediumThreshold float64
	maxPending      int
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a matching pass over unmatched records",
	Long: `Run scores every unmatched source record of the given type against the
windowed pool of unlinked ledger transactions.

High-confidence matches are applied automatically when --auto-apply is
set; ambiguous matches are sent to the verification service (if
configured) and surviving suggestions are queued for manual review.

Examples:
  # Match all open invoices, applying confident links
  matchd run --type invoice --auto-apply

  # Re-score two payslips without writing anything
  matchd run --type payslip --records ps-001,ps-002 --dry-run

  # Stricter matching with verification enabled
  matchd run --type invoice --profile strict \
    --verify-url http://verifier:9400/review --auto-apply`,

	PreRunE: validateRunFlags,
	RunE:    executeRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&recordType, "type", "t", "", "record type: invoice or payslip (required)")
	runCmd.Flags().StringSliceVarP(&recordIDs, "records", "r", []string{}, "restrict the run to these record IDs")
	runCmd.Flags().BoolVar(&autoApply, "auto-apply", false, "apply high-confidence matches automatically")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "score and verify without writing anything")
	runCmd.Flags().StringVar(&actor, "actor", "matchd", "actor recorded in audit entries")

	runCmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (required)")

	runCmd.Flags().StringVar(&verifyURL, "verify-url", "", "verification service endpoint (empty disables verification)")
	runCmd.Flags().StringVar(&verifyAPIKey, "verify-api-key", "", "verification service API key")
	runCmd.Flags().DurationVar(&verifyTimeout, "verify-timeout", 30*time.Second, "per-batch verification timeout")

	runCmd.Flags().StringVar(&profile, "profile", "default", "matching profile: default, strict, relaxed")
	runCmd.Flags().Float64VarP(&amountTolerance, "amount-tolerance", "a", 0, "amount tolerance percentage override")
	runCmd.Flags().IntVarP(&dateGraceDays, "date-grace-days", "d", 0, "early-settlement grace window override in days")
	runCmd.Flags().Float64Var(&highThreshold, "high-threshold", 0, "auto-apply score threshold override")
	runCmd.Flags().Float64Var(&mediumThreshold, "medium-threshold", 0, "review floor score threshold override")
	runCmd.Flags().IntVar(&maxPending, "max-pending", 0, "max persisted suggestions per record override")

	runCmd.Flags().BoolVar(&showProgress, "progress", false, "log progress while the run executes")
	runCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "report format: console, json")
	runCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "report file path (default: stdout)")
	runCmd.Flags().StringVar(&entityRulesFile, "entity-rules-file", "", "CSV file mapping counterparty patterns to entities")
	runCmd.Flags().StringSliceVar(&entityRules, "entity-rules", []string{}, "inline pattern=entity rules, applied after the rules file")

	runCmd.MarkFlagRequired("type")

	viper.BindPFlag("type", runCmd.Flags().Lookup("type"))
	viper.BindPFlag("records", runCmd.Flags().Lookup("records"))
	viper.BindPFlag("auto-apply", runCmd.Flags().Lookup("auto-apply"))
	viper.BindPFlag("dry-run", runCmd.Flags().Lookup("dry-run"))
	viper.BindPFlag("actor", runCmd.Flags().Lookup("actor"))
	viper.BindPFlag("database-url", runCmd.Flags().Lookup("database-url"))
	viper.BindPFlag("verify-url", runCmd.Flags().Lookup("verify-url"))
	viper.BindPFlag("verify-api-key", runCmd.Flags().Lookup("verify-api-key"))
	viper.BindPFlag("verify-timeout", runCmd.Flags().Lookup("verify-timeout"))
	viper.BindPFlag("profile", runCmd.Flags().Lookup("profile"))
	viper.BindPFlag("amount-tolerance", runCmd.Flags().Lookup("amount-tolerance"))
	viper.BindPFlag("date-grace-days", runCmd.Flags().Lookup("date-grace-days"))
	viper.BindPFlag("high-threshold", runCmd.Flags().Lookup("high-threshold"))
	viper.BindPFlag("medium-threshold", runCmd.Flags().Lookup("medium-threshold"))
	viper.BindPFlag("max-pending", runCmd.Flags().Lookup("max-pending"))
	viper.BindPFlag("progress", runCmd.Flags().Lookup("progress"))
	viper.BindPFlag("output-format", runCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", runCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("entity-rules-file", runCmd.Flags().Lookup("entity-rules-file"))
	viper.BindPFlag("entity-rules", runCmd.Flags().Lookup("entity-rules"))
}

func validateRunFlags(cmd *cobra.Command, args []string) error {
	recordType = viper.GetString("type")
	recordIDs = viper.GetStringSlice("records")
	autoApply = viper.GetBool("auto-apply")
	dryRun = viper.GetBool("dry-run")
	actor = viper.GetString("actor")
	databaseURL = viper.GetString("database-url")
	verifyURL = viper.GetString("verify-url")
	verifyAPIKey = viper.GetString("verify-api-key")
	verifyTimeout = viper.GetDuration("verify-timeout")
	profile = viper.GetString("profile")
	amountTolerance = viper.GetFloat64("amount-tolerance")
	dateGraceDays = viper.GetInt("date-grace-days")
	highThreshold = viper.GetFloat64("high-threshold")
	mediumThreshold = viper.GetFloat64("medium-threshold")
	maxPending = viper.GetInt("max-pending")
	showProgress = viper.GetBool("progress")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	entityRulesFile = viper.GetString("entity-rules-file")
	entityRules = viper.GetStringSlice("entity-rules")

	if _, err := models.ParseRecordType(recordType); err != nil {
		return err
	}
	if databaseURL == "" {
		return fmt.Errorf("database URL is required (flag --database-url or MATCHD_DATABASE_URL)")
	}
	if !reporter.OutputFormat(outputFormat).IsValid() {
		return fmt.Errorf("unsupported output format %q (expected console or json)", outputFormat)
	}
	return nil
}

func executeRun(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := runMatching(ctx)
	if err != nil {
		// An aborted run still carries the partial report: links applied
		// before the failure were committed and must be shown.
		if report != nil {
			if werr := writeReport(report); werr != nil {
				fmt.Fprintf(os.Stderr, "failed to write partial report: %v\n", werr)
			}
		}
		os.Exit(handler.HandleError(err))
	}

	if err := writeReport(report); err != nil {
		os.Exit(handler.HandleError(err))
	}
	return nil
}

func runMatching(ctx context.Context) (*engine.RunReport, error) {
	parsedType, err := models.ParseRecordType(recordType)
	if err != nil {
		return nil, err
	}

	matcherConfig, err := config.CreateMatcherConfig(profile, config.MatchingOverrides{
		AmountTolerancePercent: amountTolerance,
		DateGraceDays:          dateGraceDays,
		HighThreshold:          highThreshold,
		MediumThreshold:        mediumThreshold,
		MaxPendingPerRecord:    maxPending,
	})
	if err != nil {
		return nil, err
	}

	storeConfig, err := config.CreateStoreConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	resolver, err := config.CreateEntityResolver(entityRulesFile, entityRules)
	if err != nil {
		return nil, err
	}

	pool, err := store.Connect(ctx, storeConfig)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	matchStore := store.New(pool)
	scorer := matcher.NewScorer(matcherConfig, resolver)

	var refiner engine.Refiner
	verifierConfig, err := config.CreateVerifierConfig(verifyURL, verifyAPIKey, verifyTimeout)
	if err != nil {
		return nil, err
	}
	if verifierConfig != nil {
		verifier, err := verify.NewHTTPVerifier(verifierConfig)
		if err != nil {
			return nil, err
		}
		refiner = verify.NewBatcher(verifier, matcherConfig)
	}

	progressInterval := time.Duration(0)
	if showProgress {
		progressInterval = 5 * time.Second
	}

	eng := engine.New(matchStore, matchStore, scorer, refiner)
	return eng.Run(ctx, engine.Options{
		RecordType:       parsedType,
		RecordIDs:        recordIDs,
		AutoApply:        autoApply,
		DryRun:           dryRun,
		Actor:            actor,
		ProgressInterval: progressInterval,
	})
}

func writeReport(report *engine.RunReport) error {
	reportConfig := reporter.DefaultReportConfig()
	reportConfig.Format = reporter.OutputFormat(outputFormat)

	generator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return err
	}

	writer := os.Stdout
	if outputFile != "" {
		file, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		writer = file
	}

	return generator.GenerateReport(report, writer)
}
