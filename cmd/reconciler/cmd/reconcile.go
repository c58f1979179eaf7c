package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"reconciliation-core/cmd/reconciler/config"
	"reconciliation-core/internal/bankrecovery"
	"reconciliation-core/internal/models"
	"reconciliation-core/internal/orchestrator"
	"reconciliation-core/internal/reporter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	ocrFile         string
	invoiceFile     string
	outputFormat    string
	outputFile      string
	showProgress    bool
	maxClusterWorkers int
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run the five-stage pipeline over an OCR statement and its invoices",
	Long: `Reconcile decodes an OCR'd bank statement and a set of CFDI
invoices, then runs BankRecovery, SafePeel, Cluster, LexSolver, and
RescueLoop in sequence to produce a ReconciliationResult.

This command requires:
- An OCR document file (JSON, shaped like bankrecovery.OcrDocument)
- An invoice file (JSON array, shaped like []models.Invoice)

Examples:
  # Basic reconciliation
  reconciler reconcile --ocr-file statement.json --invoice-file invoices.json

  # JSON output to a file, with progress on stderr
  reconciler reconcile --ocr-file statement.json --invoice-file invoices.json \
    --output-format json --output-file result.json --progress

  # Cap per-cluster solver parallelism
  reconciler reconcile --ocr-file statement.json --invoice-file invoices.json \
    --max-cluster-workers 4`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVar(&ocrFile, "ocr-file", "", "path to the OCR document JSON file (required)")
	reconcileCmd.Flags().StringVar(&invoiceFile, "invoice-file", "", "path to the invoice JSON file (required)")

	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")

	reconcileCmd.Flags().BoolVar(&showProgress, "progress", false, "show stage progress on stderr")
	reconcileCmd.Flags().IntVar(&maxClusterWorkers, "max-cluster-workers", 0, "max concurrent cluster solves (0 = unbounded)")

	reconcileCmd.MarkFlagRequired("ocr-file")
	reconcileCmd.MarkFlagRequired("invoice-file")

	viper.BindPFlag("ocr-file", reconcileCmd.Flags().Lookup("ocr-file"))
	viper.BindPFlag("invoice-file", reconcileCmd.Flags().Lookup("invoice-file"))
	viper.BindPFlag("output-format", reconcileCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", reconcileCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("progress", reconcileCmd.Flags().Lookup("progress"))
	viper.BindPFlag("max-cluster-workers", reconcileCmd.Flags().Lookup("max-cluster-workers"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	ocrFile = viper.GetString("ocr-file")
	invoiceFile = viper.GetString("invoice-file")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	showProgress = viper.GetBool("progress")
	maxClusterWorkers = viper.GetInt("max-cluster-workers")

	if err := validateFileExists(ocrFile, "OCR document file"); err != nil {
		return err
	}
	if err := validateFileExists(invoiceFile, "invoice file"); err != nil {
		return err
	}

	validFormats := map[string]bool{"console": true, "json": true, "csv": true}
	if !validFormats[outputFormat] {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", outputFormat)
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("%s is not readable: %w", description, err)
	}
	file.Close()

	return nil
}

func loadOcrDocument(path string) (bankrecovery.OcrDocument, error) {
	var doc bankrecovery.OcrDocument
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("failed to read OCR document file: %w", err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("failed to parse OCR document JSON: %w", err)
	}
	return doc, nil
}

func loadInvoices(path string) ([]models.Invoice, error) {
	var invoices []models.Invoice
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read invoice file: %w", err)
	}
	if err := json.Unmarshal(data, &invoices); err != nil {
		return nil, fmt.Errorf("failed to parse invoice JSON: %w", err)
	}
	return invoices, nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Starting reconciliation...\n")
		fmt.Fprintf(os.Stderr, "OCR file: %s\n", ocrFile)
		fmt.Fprintf(os.Stderr, "Invoice file: %s\n", invoiceFile)
		fmt.Fprintf(os.Stderr, "Output format: %s\n", outputFormat)
		if outputFile != "" {
			fmt.Fprintf(os.Stderr, "Output file: %s\n", outputFile)
		}
	}

	cfg, err := config.LoadReconcilerConfig()
	if err != nil {
		return fmt.Errorf("failed to load reconciliation config: %w", err)
	}

	doc, err := loadOcrDocument(ocrFile)
	if err != nil {
		return err
	}
	invoices, err := loadInvoices(invoiceFile)
	if err != nil {
		return err
	}

	orch := orchestrator.New(cfg, nil, nil, nil, maxClusterWorkers)

	if showProgress {
		orch.AddProgressCallback(func(p orchestrator.Progress) {
			fmt.Fprintf(os.Stderr, "\r[%d/%d] %s (%.1f%% complete)",
				p.CompletedSteps, p.TotalSteps, p.CurrentStep, p.PercentComplete)
		})
	}

	result, recErr := orch.Run(ctx, doc, invoices, time.Now())
	if showProgress {
		fmt.Fprintf(os.Stderr, "\n")
	}
	if recErr != nil && result == nil {
		return recErr
	}

	reportConfig := config.ReportConfigForFormat(outputFormat)
	reportGenerator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return fmt.Errorf("failed to create report generator: %w", err)
	}

	var output *os.File
	if outputFile != "" {
		output, err = os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	} else {
		output = os.Stdout
	}

	if err := reportGenerator.GenerateReport(result, output); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "\nReconciliation finished with status %s.\n", result.Status)
		fmt.Fprintf(os.Stderr, "Invoices=%d Payments=%d Matched=%d Partial=%d ManualReview=%d\n",
			result.Summary.InvoiceCount, result.Summary.PaymentCount,
			result.Summary.MatchedPairCount, result.Summary.PartialMatchCount, result.Summary.ManualReviewCount)
	}

	if recErr != nil {
		return recErr
	}
	return nil
}
