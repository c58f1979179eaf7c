package bankrecovery

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// numericTokenPattern matches currency-like tokens: optional currency
// symbol, digits, optional thousands separators, optional decimal part.
// It deliberately also matches OCR-garbled variants containing l, O, S
// in place of digits, since ocr-fix hypothesis generation needs to see
// those tokens too.
var numericTokenPattern = regexp.MustCompile(`[\$]?[\d lOSs][\d.,lOSs]{2,}`)

// maskedCardPattern matches tokens that look like a masked card number.
var maskedCardPattern = regexp.MustCompile(`\*`)

// bareFourDigitPattern matches a bare four-digit integer with no
// punctuation (rejected before hypothesis generation per spec.md §4.A.5).
var bareFourDigitPattern = regexp.MustCompile(`^\d{4}$`)

// extractNumericTokens returns every candidate numeric token found in
// text, in left-to-right order.
func extractNumericTokens(text string) []string {
	return numericTokenPattern.FindAllString(text, -1)
}

// isRejectedToken reports whether a token must be excluded from
// hypothesis generation entirely: masked card patterns, or bare
// four-digit integers with no punctuation.
func isRejectedToken(token string) bool {
	if maskedCardPattern.MatchString(token) {
		return true
	}
	if bareFourDigitPattern.MatchString(token) {
		return true
	}
	return false
}

const maxBalanceMagnitudeCents = int64(1e13) * 100

// parseStandard strips currency/space and thousand commas, then parses
// the result as a decimal amount. Confidence 0.9.
func parseStandard(token string) (Variant, bool) {
	cleaned := strings.NewReplacer("$", "", " ", "", ",", "").Replace(token)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return Variant{}, false
	}
	cents := d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if cents < 0 {
		cents = -cents
	}
	return Variant{ValueCents: cents, Confidence: 0.9, Method: MethodStandard, OriginalToken: token}, true
}

// europeanPattern detects the "1.234,56" shape: dots as thousands
// separators, comma as the decimal point.
var europeanPattern = regexp.MustCompile(`^\$?\d{1,3}(\.\d{3})+,\d{2}$`)

// parseEuropean applies the European decimal convention. Confidence 0.8.
func parseEuropean(token string) (Variant, bool) {
	if !europeanPattern.MatchString(token) {
		return Variant{}, false
	}
	cleaned := strings.NewReplacer("$", "", ".", "", ",", ".").Replace(token)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return Variant{}, false
	}
	cents := d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if cents < 0 {
		cents = -cents
	}
	return Variant{ValueCents: cents, Confidence: 0.8, Method: MethodEuropean, OriginalToken: token}, true
}

var ocrFixReplacer = strings.NewReplacer("l", "1", "O", "0", "S", "5", "s", "5")

// parseOCRFix translates common OCR misreads (l→1, O→0, S/s→5) then
// retries the standard parse. Confidence 0.7.
func parseOCRFix(token string) (Variant, bool) {
	fixed := ocrFixReplacer.Replace(token)
	if fixed == token {
		return Variant{}, false
	}
	v, ok := parseStandard(fixed)
	if !ok {
		return Variant{}, false
	}
	v.Confidence = 0.7
	v.Method = MethodOCRFix
	v.OriginalToken = token
	return v, true
}

// generateVariants expands one candidate numeric token into the set of
// Variant hypotheses, applying standard, european, and ocr-fix rules in
// order, per spec.md §4.A.5. Tokens that look like masked card numbers
// or bare four-digit integers contribute no variants.
func generateVariants(token string) []Variant {
	if isRejectedToken(token) {
		return nil
	}

	var out []Variant
	if v, ok := parseStandard(token); ok {
		out = append(out, v)
	}
	if v, ok := parseEuropean(token); ok {
		out = append(out, v)
	}
	if v, ok := parseOCRFix(token); ok {
		out = append(out, v)
	}
	return out
}

// firstBalanceToken scans text for the first numeric token that fits
// the valid-balance magnitude window (rejects card-number-sized values).
func firstBalanceToken(text string) (int64, bool) {
	for _, tok := range extractNumericTokens(text) {
		if isRejectedToken(tok) {
			continue
		}
		v, ok := parseStandard(tok)
		if !ok {
			continue
		}
		if v.ValueCents >= maxBalanceMagnitudeCents {
			continue
		}
		return v.ValueCents, true
	}
	return 0, false
}
