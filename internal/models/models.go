// Package models defines the shared data model for the reconciliation
// pipeline: transactions, payments, invoices, matches, clusters, and the
// append-only audit log. All monetary quantities are signed 64-bit
// integer cents; floating point is reserved for similarity scores.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Direction is the sign of a transaction relative to the bank account
// or invoice it belongs to.
type Direction int

const (
	Credit Direction = iota
	Debit
)

func (d Direction) String() string {
	if d == Debit {
		return "DEBIT"
	}
	return "CREDIT"
}

// SourceKind distinguishes the two streams the core reconciles.
type SourceKind int

const (
	SourceBank SourceKind = iota
	SourceCFDI
)

func (s SourceKind) String() string {
	if s == SourceCFDI {
		return "CFDI"
	}
	return "BANK"
}

// CommitLevel is a total order of irreversibility assigned by SafePeel.
// HARD is final; SOFT may be overturned by a strictly better match in a
// later run; SHADOW is provisional and lives in the forward buffer
// window; PENDING means no commit decision has been made yet.
type CommitLevel int

const (
	Pending CommitLevel = iota
	Shadow
	Soft
	Hard
)

func (c CommitLevel) String() string {
	switch c {
	case Hard:
		return "HARD"
	case Soft:
		return "SOFT"
	case Shadow:
		return "SHADOW"
	default:
		return "PENDING"
	}
}

// Less reports whether c is strictly less reversible than other, i.e.
// earlier in the HARD ≺ SOFT ≺ SHADOW ≺ PENDING order used by Promote.
func (c CommitLevel) Less(other CommitLevel) bool {
	return c > other
}

// PaymentMethod flags how an invoice is expected to be paid.
type PaymentMethod int

const (
	MethodLump PaymentMethod = iota
	MethodInstalment
)

func (m PaymentMethod) String() string {
	if m == MethodInstalment {
		return "INSTALMENT"
	}
	return "LUMP"
}

// Txn carries the fields shared by Payment and Invoice.
type Txn struct {
	ID              string
	Source          SourceKind
	AmountCents     int64
	Direction       Direction
	Date            time.Time
	HasDate         bool
	Counterparty    string
	CounterpartyTax string
	Description     string
	Reference       string
	Embedding       []float32
	CommitStatus    CommitLevel
}

// Payment is a bank-side transaction recovered by BankRecovery.
type Payment struct {
	Txn
	BalanceBeforeCents int64
	BalanceAfterCents  int64
	OCRConfidence      float64
	ShadowAmountCents  *int64
	OCRRawText         string
	SourcePage         int
	SourceRow          int
}

// Invoice is a CFDI-side document ingested from the out-of-scope XML
// parser, already in canonical form.
type Invoice struct {
	Txn
	DocumentID string
	Method     PaymentMethod
}

// NewTxnID returns a new stable identifier for a Txn-family entity.
func NewTxnID() string {
	return uuid.NewString()
}

// MatchedPair is a full match between one or more invoices and one or
// more payments, produced by SafePeel or LexSolver and never mutated
// after creation.
type MatchedPair struct {
	ID           string
	InvoiceIDs   []string
	PaymentIDs   []string
	InvoiceTotal int64
	PaymentTotal int64
	Gap          int64
	Confidence   Confidence
	CommitStatus CommitLevel
	SourceStage  string
}

// Confidence is a coarse, named confidence level distinct from the
// continuous similarity scores used inside Cluster and LexSolver.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "HIGH"
	case ConfidenceMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// NewMatchedPair builds a MatchedPair and computes its gap, enforcing
// the invariant invoice_total - payment_total == gap.
func NewMatchedPair(invoiceIDs, paymentIDs []string, invoiceTotal, paymentTotal int64, confidence Confidence, stage string) MatchedPair {
	return MatchedPair{
		ID:           uuid.NewString(),
		InvoiceIDs:   invoiceIDs,
		PaymentIDs:   paymentIDs,
		InvoiceTotal: invoiceTotal,
		PaymentTotal: paymentTotal,
		Gap:          invoiceTotal - paymentTotal,
		Confidence:   confidence,
		SourceStage:  stage,
	}
}

// PartialMatch pairs a single invoice with one or more payments that
// cover only part of its amount.
type PartialMatch struct {
	ID              string
	InvoiceID       string
	PaymentIDs      []string
	PaidCents       int64
	RemainderCents  int64
	ExpectedPartial bool
}

// NewPartialMatch builds a PartialMatch, enforcing
// paid + remainder == invoiceAmount.
func NewPartialMatch(invoiceID string, paymentIDs []string, invoiceAmount, paidCents int64, expected bool) PartialMatch {
	return PartialMatch{
		ID:              uuid.NewString(),
		InvoiceID:       invoiceID,
		PaymentIDs:      paymentIDs,
		PaidCents:       paidCents,
		RemainderCents:  invoiceAmount - paidCents,
		ExpectedPartial: expected,
	}
}

// AmbiguousCase is an escalation to human review produced by RescueLoop.
type AmbiguousCase struct {
	ID          string
	InvoiceIDs  []string
	PaymentIDs  []string
	Reason      string
	SolverDelta int64
	BestScore   float64
}

// NewAmbiguousCase builds an AmbiguousCase with a fresh stable id.
func NewAmbiguousCase(invoiceIDs, paymentIDs []string, reason string, delta int64, bestScore float64) AmbiguousCase {
	return AmbiguousCase{
		ID:          uuid.NewString(),
		InvoiceIDs:  invoiceIDs,
		PaymentIDs:  paymentIDs,
		Reason:      reason,
		SolverDelta: delta,
		BestScore:   bestScore,
	}
}

// AuditEntry is one append-only record in the human-debuggable trail.
type AuditEntry struct {
	Timestamp  time.Time
	Action     string
	TouchedIDs []string
	Message    string
	Details    map[string]interface{}
}

// NewAuditEntry builds an AuditEntry stamped with the given time.
func NewAuditEntry(at time.Time, action, message string, touchedIDs []string, details map[string]interface{}) AuditEntry {
	return AuditEntry{
		Timestamp:  at,
		Action:     action,
		TouchedIDs: touchedIDs,
		Message:    message,
		Details:    details,
	}
}

// Cluster is a solvable subproblem produced by the Cluster stage:
// residual invoices and payments plus the candidate edges between them
// and their weights. Its lifetime ends when LexSolver consumes it.
type Cluster struct {
	ID       string
	Invoices []Invoice
	Payments []Payment

	// InvoiceEdges[i] lists indices into Edges incident on Invoices[i];
	// PaymentEdges[j] the same for Payments[j]. Dense parallel-array
	// adjacency, not a pointer graph, per the affinity-graph design.
	InvoiceEdges [][]int
	PaymentEdges [][]int
	Edges        []Edge

	InvoiceTotal int64
	PaymentTotal int64
}

// Edge is a weighted candidate pairing between one invoice and one
// payment inside a Cluster.
type Edge struct {
	InvoiceIdx int
	PaymentIdx int
	Weight     float64
}

// NewCluster allocates a Cluster with a fresh stable id and zeroed
// adjacency tables sized to the given node counts.
func NewCluster(invoices []Invoice, payments []Payment) *Cluster {
	c := &Cluster{
		ID:           uuid.NewString(),
		Invoices:     invoices,
		Payments:     payments,
		InvoiceEdges: make([][]int, len(invoices)),
		PaymentEdges: make([][]int, len(payments)),
	}
	for _, inv := range invoices {
		c.InvoiceTotal += inv.AmountCents
	}
	for _, p := range payments {
		c.PaymentTotal += p.AmountCents
	}
	return c
}

// AddEdge appends a candidate edge and updates both adjacency tables.
func (c *Cluster) AddEdge(invoiceIdx, paymentIdx int, weight float64) {
	idx := len(c.Edges)
	c.Edges = append(c.Edges, Edge{InvoiceIdx: invoiceIdx, PaymentIdx: paymentIdx, Weight: weight})
	c.InvoiceEdges[invoiceIdx] = append(c.InvoiceEdges[invoiceIdx], idx)
	c.PaymentEdges[paymentIdx] = append(c.PaymentEdges[paymentIdx], idx)
}

// Status is the terminal state of a full pipeline run.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Summary is the aggregate statistics block of a ReconciliationResult.
type Summary struct {
	InvoiceCount       int
	PaymentCount       int
	MatchedPairCount   int
	PartialMatchCount  int
	UnmatchedInvoices  int
	UnmatchedPayments  int
	ManualReviewCount  int
	TotalMatchedCents  int64
	TotalResidualCents int64
}

// ReconciliationResult is the single output of the pipeline.
type ReconciliationResult struct {
	MatchedPairs      []MatchedPair
	PartialMatches    []PartialMatch
	UnmatchedInvoices []string
	UnmatchedPayments []string
	ManualReview      []AmbiguousCase
	AuditLog          []AuditEntry
	Summary           Summary
	Status            Status
	Errors            []string
	Warnings          []string
}
