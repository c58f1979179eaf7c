package bankrecovery

import (
	"time"

	recerrors "reconciliation-core/pkg/errors"
)

// Recover runs the full BankRecovery pipeline over doc: boundary
// extraction, year inference, date anchoring, block segmentation,
// hypothesis generation, the global CSP solve, and emission. Failure
// at any required step aborts with a typed error; no partial result is
// returned, per spec.md §4.A "Failure semantics".
func Recover(doc OcrDocument, toleranceCents int64, now time.Time) (*Result, *recerrors.ReconcilerError) {
	if toleranceCents <= 0 {
		toleranceCents = defaultToleranceCents
	}

	startCents, endCents, foundStart, foundEnd := extractBoundaries(doc)
	if !foundStart || !foundEnd {
		return nil, recerrors.BoundariesMissing(doc.FilePath, !foundStart, !foundEnd)
	}

	year := inferYear(doc, now)

	anchors := findAnchors(doc)
	if len(anchors) == 0 {
		return nil, recerrors.NoAnchors(doc.FilePath, len(doc.Pages))
	}

	blocks := segmentBlocks(doc, anchors, year)

	assignment, ok := solveCSP(blocks, startCents, endCents, toleranceCents)
	if !ok {
		return nil, recerrors.CspInfeasible(startCents, endCents, toleranceCents, len(blocks))
	}

	return emit(blocks, assignment, startCents), nil
}

// emit walks the solved assignment in document order, accumulating a
// running balance from the known start balance, and builds one
// PaymentOut per non-null block, per spec.md §4.A.7.
func emit(blocks []block, assignment []choice, startCents int64) *Result {
	balance := startCents
	payments := make([]PaymentOut, 0, len(blocks))

	for i, b := range blocks {
		c := assignment[i]
		if c.kind == choiceNull {
			continue
		}

		before := balance
		var after int64
		direction := 0 // CREDIT
		if c.kind == choiceDebit {
			direction = 1
			after = before - c.variant.ValueCents
		} else {
			after = before + c.variant.ValueCents
		}
		balance = after

		payments = append(payments, PaymentOut{
			AmountCents:   c.variant.ValueCents,
			Direction:     direction,
			Year:          b.year,
			DateText:      b.date,
			Description:   b.description,
			BalanceBefore: before,
			BalanceAfter:  after,
			OCRConfidence: c.variant.Confidence,
			OCRRawText:    c.variant.OriginalToken,
			SourcePage:    b.page,
			SourceRow:     b.row,
		})
	}

	return &Result{Payments: payments}
}
