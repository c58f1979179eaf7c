package bankrecovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// word builds a positioned OcrWord at the given x fraction of pageWidth.
func word(text string, x, pageWidth float64) OcrWord {
	return OcrWord{Text: text, Confidence: 0.95, BoundingBox: BoundingBox{X: x * pageWidth}}
}

func TestRecoverOCRCorrectionScenario(t *testing.T) {
	// Mirrors spec scenario 6: start=100000, end=80000, three blocks
	// whose candidate tokens include O->0 corrections, netting to -20000
	// cents.
	const pageWidth = 1000.0

	boundaryPage := OcrPage{
		PageNumber: 1,
		Width:      pageWidth,
		Height:     300,
		Rows: []OcrRow{
			{YPosition: 1, RawText: "saldo anterior 1000.00", Words: []OcrWord{
				word("saldo", 0, pageWidth), word("anterior", 0.1, pageWidth), word("1000.00", 0.2, pageWidth),
			}},
			{YPosition: 10, RawText: "01/06/2024 Payment one 150.0O", Words: []OcrWord{
				word("01/06/2024", 0, pageWidth), word("Payment", 0.1, pageWidth), word("one", 0.2, pageWidth),
				word("150.0O", 0.6, pageWidth),
			}},
			{YPosition: 50, RawText: "02/06/2024 Payment two 30.00", Words: []OcrWord{
				word("02/06/2024", 0, pageWidth), word("Payment", 0.1, pageWidth), word("two", 0.2, pageWidth),
				word("30.00", 0.6, pageWidth),
			}},
			{YPosition: 90, RawText: "03/06/2024 Payment three 8O.OO", Words: []OcrWord{
				word("03/06/2024", 0, pageWidth), word("Payment", 0.1, pageWidth), word("three", 0.2, pageWidth),
				word("8O.OO", 0.6, pageWidth),
			}},
			{YPosition: 200, RawText: "saldo final 800.00", Words: []OcrWord{
				word("saldo", 0, pageWidth), word("final", 0.1, pageWidth), word("800.00", 0.2, pageWidth),
			}},
		},
	}

	doc := OcrDocument{FilePath: "statement.pdf", TotalPages: 1, Pages: []OcrPage{boundaryPage}}

	result, recErr := Recover(doc, 100, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	// recErr is a *recerrors.ReconcilerError, not a plain error, so Nil
	// (reflection-based) rather than NoError (interface-nil gotcha) is
	// the correct check here.
	require.Nil(t, recErr, "Recover failed: %v", recErr)
	require.Len(t, result.Payments, 3)

	var net int64
	for _, p := range result.Payments {
		if p.Direction == 1 {
			net -= p.AmountCents
		} else {
			net += p.AmountCents
		}
	}
	if net != -20000 {
		t.Errorf("net change = %d, want -20000", net)
	}

	for _, p := range result.Payments {
		if p.BalanceAfter-p.BalanceBefore != signedAmount(p) {
			t.Errorf("balance recurrence violated for payment at page %d row %d", p.SourcePage, p.SourceRow)
		}
	}
}

func signedAmount(p PaymentOut) int64 {
	if p.Direction == 1 {
		return -p.AmountCents
	}
	return p.AmountCents
}

func TestRecoverFailsWithoutBoundaries(t *testing.T) {
	doc := OcrDocument{FilePath: "empty.pdf", Pages: []OcrPage{{PageNumber: 1, Width: 1000, Height: 100}}}
	_, recErr := Recover(doc, 100, time.Now())
	if recErr == nil {
		t.Fatal("expected BoundariesMissing error")
	}
}

func TestGenerateVariantsParsesEuropeanToken(t *testing.T) {
	variants := generateVariants("1.234,56")
	if len(variants) == 0 {
		t.Fatal("expected at least one variant for european-style token")
	}
	found := false
	for _, v := range variants {
		if v.Method == MethodEuropean && v.ValueCents == 123456 {
			found = true
		}
	}
	if !found {
		t.Error("expected a european variant parsing 1.234,56 as 1234.56")
	}
}

func TestGenerateVariantsRejectsMaskedCard(t *testing.T) {
	require.Empty(t, generateVariants("**** 1234"), "masked card token should yield no variants")
	require.Empty(t, generateVariants("1234"), "bare four-digit token should yield no variants")
}
