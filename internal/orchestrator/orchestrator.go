// Package orchestrator wires the five pipeline stages — BankRecovery,
// SafePeel, Cluster, LexSolver, and RescueLoop — into the single
// reconciliation run spec.md §1's pipeline diagram describes, mirroring
// internal/reconciler.ReconciliationOrchestrator's progress-callback and
// structured-logging idiom but driving the OCR/CFDI domain pipeline in
// place of the teacher's CSV transaction matcher.
//
// Stages run strictly in sequence, per spec.md §5: only the per-cluster
// LexSolver solve is embarrassingly parallel, since clusters share no
// state once Cluster has partitioned them.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"reconciliation-core/internal/bankrecovery"
	"reconciliation-core/internal/cluster"
	"reconciliation-core/internal/config"
	"reconciliation-core/internal/embedder"
	"reconciliation-core/internal/lexsolver"
	"reconciliation-core/internal/models"
	"reconciliation-core/internal/rescue"
	"reconciliation-core/internal/safepeel"
	recerrors "reconciliation-core/pkg/errors"
	"reconciliation-core/pkg/logger"
)

// Progress mirrors internal/reconciler.ReconciliationProgress, tracking
// the fixed five-stage pipeline instead of file-by-file parsing steps.
type Progress struct {
	TotalSteps      int
	CompletedSteps  int
	CurrentStep     string
	PercentComplete float64
}

// ProgressCallback is invoked by Run after each stage completes.
type ProgressCallback func(Progress)

const totalSteps = 5

// Orchestrator drives one end-to-end reconciliation run. It holds no
// state between calls to Run beyond its configuration, logger, and
// registered progress callbacks, so one Orchestrator can safely serve
// concurrent runs as long as each Run gets its own input.
type Orchestrator struct {
	cfg      *config.Config
	embedder embedder.Embedder
	backend  lexsolver.Backend
	log      logger.Logger

	maxClusterWorkers int

	progressCallbacks []ProgressCallback
	progressMutex     sync.RWMutex
}

// New builds an Orchestrator. backend and emb may be nil to take the
// package defaults (lexsolver.NewDefaultBackend, embedder.NewZeroEmbedder);
// maxClusterWorkers <= 0 means "one worker per cluster, unbounded",
// matching conc/pool's default when WithMaxGoroutines is never called.
func New(cfg *config.Config, emb embedder.Embedder, backend lexsolver.Backend, log logger.Logger, maxClusterWorkers int) *Orchestrator {
	if emb == nil {
		emb = embedder.NewZeroEmbedder(16)
	}
	if backend == nil {
		backend = lexsolver.NewDefaultBackend()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Orchestrator{
		cfg:               cfg,
		embedder:          emb,
		backend:           backend,
		log:               log.WithComponent("orchestrator"),
		maxClusterWorkers: maxClusterWorkers,
	}
}

// AddProgressCallback registers a callback invoked after each stage.
func (o *Orchestrator) AddProgressCallback(cb ProgressCallback) {
	o.progressMutex.Lock()
	defer o.progressMutex.Unlock()
	o.progressCallbacks = append(o.progressCallbacks, cb)
}

func (o *Orchestrator) reportProgress(step string, completed int) {
	p := Progress{
		TotalSteps:      totalSteps,
		CompletedSteps:  completed,
		CurrentStep:     step,
		PercentComplete: 100 * float64(completed) / float64(totalSteps),
	}
	o.progressMutex.RLock()
	defer o.progressMutex.RUnlock()
	for _, cb := range o.progressCallbacks {
		cb(p)
	}
}

// Run executes the full pipeline over one OCR bank statement and its
// already-parsed invoice set. now stamps every commit-level and audit
// decision; in production it is time.Now, fixed here for determinism
// in tests and replays. Cancelling ctx aborts at the next stage
// boundary or solver checkpoint; no partial cluster result from an
// in-flight stage enters the final aggregation, per spec.md §5.
func (o *Orchestrator) Run(ctx context.Context, doc bankrecovery.OcrDocument, invoices []models.Invoice, now time.Time) (*models.ReconciliationResult, *recerrors.ReconcilerError) {
	result := &models.ReconciliationResult{Status: models.StatusCompleted}

	// Stage A: BankRecovery.
	o.log.WithField("pages", len(doc.Pages)).Info("recovering payments from OCR statement")
	recovered, recErr := bankrecovery.Recover(doc, 0, now)
	if recErr != nil {
		return o.failed(result, recErr)
	}
	payments := toPayments(recovered.Payments, now)
	o.reportProgress("bankrecovery", 1)

	if err := ctx.Err(); err != nil {
		return o.cancelled(result, "bankrecovery")
	}

	// Stage B: SafePeel.
	o.log.WithFields(logger.Fields{"invoices": len(invoices), "payments": len(payments)}).Info("peeling unambiguous matches")
	peelResult := safepeel.Run(invoices, payments, now, o.cfg)
	result.MatchedPairs = append(result.MatchedPairs, peelResult.Matches...)
	result.AuditLog = append(result.AuditLog, peelResult.AuditLog...)
	o.reportProgress("safepeel", 2)

	if err := ctx.Err(); err != nil {
		return o.cancelled(result, "safepeel")
	}

	// Stage C: Cluster.
	o.log.WithFields(logger.Fields{
		"residual_invoices": len(peelResult.ResidualInvoices),
		"residual_payments": len(peelResult.ResidualPayments),
	}).Info("clustering residuals")
	clusterResult, err := cluster.Partition(ctx, peelResult.ResidualInvoices, peelResult.ResidualPayments, o.embedder, o.cfg)
	if err != nil {
		return o.failed(result, recerrors.Wrap(err, recerrors.CategoryInternal, recerrors.CodeUnexpectedError, "cluster partition failed"))
	}
	o.reportProgress("cluster", 3)

	if err := ctx.Err(); err != nil {
		return o.cancelled(result, "cluster")
	}

	// Stage D: LexSolver, one worker per cluster via conc's result pool,
	// since a solved cluster touches nothing outside its own node set.
	o.log.WithField("clusters", len(clusterResult.Clusters)).Info("solving clusters")
	outcomes, solveErr := o.solveClusters(ctx, clusterResult.Clusters)
	if solveErr != nil {
		return o.failed(result, solveErr)
	}
	o.reportProgress("lexsolver", 4)

	if err := ctx.Err(); err != nil {
		return o.cancelled(result, "lexsolver")
	}

	// Stage E: RescueLoop.
	o.log.Info("running rescue loop over flagged clusters")
	rescueResult := rescue.Run(clusterResult.Clusters, outcomes, clusterResult.OrphanInvoices, clusterResult.OrphanPayments, o.cfg, o.backend, now)
	result.AuditLog = append(result.AuditLog, rescueResult.AuditLog...)
	result.ManualReview = append(result.ManualReview, rescueResult.AmbiguousCases...)
	o.reportProgress("rescue", 5)

	for _, outcome := range rescueResult.Outcomes {
		result.MatchedPairs = append(result.MatchedPairs, outcome.MatchedPairs...)
		result.PartialMatches = append(result.PartialMatches, outcome.PartialMatches...)
		result.UnmatchedInvoices = append(result.UnmatchedInvoices, outcome.UnassignedInvoiceIDs...)
		result.UnmatchedPayments = append(result.UnmatchedPayments, outcome.UnassignedPaymentIDs...)
	}
	for _, inv := range rescueResult.RemainingOrphanInvoices {
		result.UnmatchedInvoices = append(result.UnmatchedInvoices, inv.ID)
	}
	for _, p := range rescueResult.RemainingOrphanPayments {
		result.UnmatchedPayments = append(result.UnmatchedPayments, p.ID)
	}

	result.Summary = summarize(result, len(invoices), len(payments))
	return result, nil
}

// solveClusters runs lexsolver.Solve over every cluster concurrently,
// bounded by o.maxClusterWorkers, and returns outcomes in the same
// order as clusters. Once ctx is cancelled, every cluster task that has
// not started yet skips its solve and yields an InternalError;
// solveClusters returns the first error it finds among the results, and
// Run records it as a failed run.
func (o *Orchestrator) solveClusters(ctx context.Context, clusters []*models.Cluster) ([]*lexsolver.Outcome, *recerrors.ReconcilerError) {
	type indexed struct {
		idx     int
		outcome *lexsolver.Outcome
		err     *recerrors.ReconcilerError
	}

	p := pool.NewWithResults[indexed]()
	if o.maxClusterWorkers > 0 {
		p = p.WithMaxGoroutines(o.maxClusterWorkers)
	}

	// The stage-level ProgressCallback only reports "lexsolver started"
	// vs. "lexsolver done" (one of five steps); a large cluster batch
	// solved concurrently across workers needs its own finer-grained,
	// throttled progress distinct from that coarse signal.
	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "lexsolver_clusters",
		Total:     int64(len(clusters)),
		Logger:    o.log,
	})

	for i, c := range clusters {
		i, c := i, c
		p.Go(func() indexed {
			if ctx.Err() != nil {
				return indexed{idx: i, err: recerrors.InternalError(recerrors.CodeUnexpectedError, "solveClusters", ctx.Err())}
			}
			outcome, recErr := lexsolver.Solve(c, o.cfg, o.backend)
			tracker.Increment()
			return indexed{idx: i, outcome: outcome, err: recErr}
		})
	}

	results := p.Wait()
	outcomes := make([]*lexsolver.Outcome, len(clusters))
	for _, r := range results {
		if r.err != nil {
			tracker.CompleteWithError(r.err)
			return nil, r.err
		}
		outcomes[r.idx] = r.outcome
	}
	tracker.Complete()
	return outcomes, nil
}

func (o *Orchestrator) failed(result *models.ReconciliationResult, recErr *recerrors.ReconcilerError) (*models.ReconciliationResult, *recerrors.ReconcilerError) {
	result.Status = models.StatusFailed
	result.Errors = append(result.Errors, recErr.Error())
	o.log.WithError(recErr).Error("reconciliation run failed")
	return result, recErr
}

func (o *Orchestrator) cancelled(result *models.ReconciliationResult, atStage string) (*models.ReconciliationResult, *recerrors.ReconcilerError) {
	recErr := recerrors.InternalError(recerrors.CodeUnexpectedError, "Run", context.Canceled).WithContext("stage", atStage)
	result.Status = models.StatusFailed
	result.Errors = append(result.Errors, recErr.Error())
	o.log.WithField("stage", atStage).Warn("reconciliation run cancelled")
	return result, recErr
}

// toPayments converts BankRecovery's output shape into the shared
// models.Payment the rest of the pipeline consumes, minting a fresh
// stable id per payment as spec.md §6 prescribes.
func toPayments(out []bankrecovery.PaymentOut, now time.Time) []models.Payment {
	payments := make([]models.Payment, len(out))
	for i, p := range out {
		direction := models.Credit
		if p.Direction == 1 {
			direction = models.Debit
		}
		date, hasDate := now, p.DateText != ""
		if hasDate {
			if parsed, err := time.Parse("2006-01-02", p.DateText); err == nil {
				date = parsed
			} else {
				hasDate = false
			}
		}
		payments[i] = models.Payment{
			Txn: models.Txn{
				ID:          models.NewTxnID(),
				Source:      models.SourceBank,
				AmountCents: p.AmountCents,
				Direction:   direction,
				Date:        date,
				HasDate:     hasDate,
				Description: p.Description,
			},
			BalanceBeforeCents: p.BalanceBefore,
			BalanceAfterCents:  p.BalanceAfter,
			OCRConfidence:      p.OCRConfidence,
			OCRRawText:         p.OCRRawText,
			SourcePage:         p.SourcePage,
			SourceRow:          p.SourceRow,
		}
	}
	return payments
}

func summarize(result *models.ReconciliationResult, invoiceCount, paymentCount int) models.Summary {
	s := models.Summary{
		InvoiceCount:      invoiceCount,
		PaymentCount:      paymentCount,
		MatchedPairCount:  len(result.MatchedPairs),
		PartialMatchCount: len(result.PartialMatches),
		UnmatchedInvoices: len(result.UnmatchedInvoices),
		UnmatchedPayments: len(result.UnmatchedPayments),
		ManualReviewCount: len(result.ManualReview),
	}
	for _, mp := range result.MatchedPairs {
		s.TotalMatchedCents += mp.PaymentTotal
		if mp.Gap > 0 {
			s.TotalResidualCents += mp.Gap
		}
	}
	for _, pm := range result.PartialMatches {
		s.TotalMatchedCents += pm.PaidCents
		s.TotalResidualCents += pm.RemainderCents
	}
	return s
}
