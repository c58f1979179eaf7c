package bankrecovery

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var startBalKeys = []string{"saldo anterior", "saldo inicial", "adeudo del periodo anterior"}
var endBalKeys = []string{"saldo final", "nuevo saldo", "total a pagar"}
var yearKeywords = []string{"periodo", "fecha", "corte", "date", "year"}

// extractBoundaries scans the first three pages (and the last page as
// a fallback for the end balance) for the document's start and end
// balance, per spec.md §4.A.1.
func extractBoundaries(doc OcrDocument) (startCents, endCents int64, foundStart, foundEnd bool) {
	scanPages := firstNPages(doc, 3)

	startCents, foundStart = scanForBoundary(scanPages, startBalKeys)
	endCents, foundEnd = scanForBoundary(scanPages, endBalKeys)

	if !foundEnd && len(doc.Pages) > 0 {
		last := doc.Pages[len(doc.Pages)-1]
		endCents, foundEnd = scanForBoundary([]OcrPage{last}, endBalKeys)
	}

	return startCents, endCents, foundStart, foundEnd
}

func firstNPages(doc OcrDocument, n int) []OcrPage {
	if len(doc.Pages) < n {
		return doc.Pages
	}
	return doc.Pages[:n]
}

func scanForBoundary(pages []OcrPage, keys []string) (int64, bool) {
	for _, page := range pages {
		for i, row := range page.Rows {
			lower := strings.ToLower(row.RawText)
			if !containsAny(lower, keys) {
				continue
			}
			if cents, ok := firstBalanceToken(row.RawText); ok {
				return cents, true
			}
			// Fall back to the next row, per spec.md §4.A.1.
			if i+1 < len(page.Rows) {
				if cents, ok := firstBalanceToken(page.Rows[i+1].RawText); ok {
					return cents, true
				}
			}
		}
	}
	return 0, false
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// inferYear scans the first three pages for four-digit years in
// [2000, currentYear+1], weighting candidates that co-occur with
// period/date keywords by 2, tie-breaking toward the larger year.
// Defaults to the current year when no candidate is found.
func inferYear(doc OcrDocument, now time.Time) int {
	currentYear := now.Year()
	weights := make(map[int]int)

	for _, page := range firstNPages(doc, 3) {
		for _, row := range page.Rows {
			lower := strings.ToLower(row.RawText)
			weight := 1
			if containsAny(lower, yearKeywords) {
				weight = 2
			}
			for _, tok := range fourDigitTokens(row.RawText) {
				year, err := strconv.Atoi(tok)
				if err != nil {
					continue
				}
				if year < 2000 || year > currentYear+1 {
					continue
				}
				weights[year] += weight
			}
		}
	}

	best, bestWeight := currentYear, -1
	for year, w := range weights {
		if w > bestWeight || (w == bestWeight && year > best) {
			best, bestWeight = year, w
		}
	}
	if bestWeight < 0 {
		return currentYear
	}
	return best
}

var fourDigitPattern = regexp.MustCompile(`\b\d{4}\b`)

func fourDigitTokens(text string) []string {
	return fourDigitPattern.FindAllString(text, -1)
}
