package bankrecovery

import (
	"regexp"
	"strings"
)

// descriptionBlockFraction is the left-side width fraction searched
// for a date anchor's leading prefix. amountColumnThresholdFraction is
// the column split used during block segmentation to separate
// descriptive text from candidate numeric tokens. Spec.md §9 flags
// these two thresholds (40% / 50%) as possibly-unintentional; they are
// kept as two distinct named constants because they measure two
// different things — a leading-prefix search width versus a column
// split — rather than unified into one value.
const (
	descriptionBlockFraction      = 0.4
	amountColumnThresholdFraction = 0.5
)

var monthAbbrev = []string{
	"ene", "feb", "mar", "abr", "may", "jun", "jul", "ago", "sep", "oct", "nov", "dic",
	"jan", "apr", "aug", "dec",
}

var numericDatePattern = regexp.MustCompile(`^\d{1,2}[./-]\d{1,2}([./-]\d{2,4})?$`)

// anchor is an OCR row whose leading tokens form a date, marking the
// start of a transaction block.
type anchor struct {
	page     int
	row      int
	yPos     float64
	dateText string
}

// findAnchors scans every page for rows whose leading (left
// descriptionBlockFraction of page width) six-token prefix matches a
// known date pattern. Anchors are returned globally ordered by y
// position within page, then by page index.
func findAnchors(doc OcrDocument) []anchor {
	var anchors []anchor
	for _, page := range doc.Pages {
		for rowIdx, row := range page.Rows {
			prefix := leadingWords(row, page.Width, descriptionBlockFraction, 6)
			if dateText, ok := matchesDatePattern(prefix); ok {
				anchors = append(anchors, anchor{
					page:     page.PageNumber,
					row:      rowIdx,
					yPos:     row.YPosition,
					dateText: dateText,
				})
			}
		}
	}
	return anchors
}

func leadingWords(row OcrRow, pageWidth float64, fraction float64, limit int) []string {
	var out []string
	for _, w := range row.Words {
		if pageWidth > 0 && w.BoundingBox.X > pageWidth*fraction {
			break
		}
		out = append(out, w.Text)
		if len(out) >= limit {
			break
		}
	}
	if len(out) == 0 {
		// No positional data: fall back to the row's raw text tokens.
		out = strings.Fields(row.RawText)
		if len(out) > limit {
			out = out[:limit]
		}
	}
	return out
}

func matchesDatePattern(words []string) (string, bool) {
	if len(words) == 0 {
		return "", false
	}
	for i, w := range words {
		if numericDatePattern.MatchString(w) {
			return w, true
		}
		// "D MMM Y?" pattern: a leading integer followed by a month
		// abbreviation token.
		if isDayNumber(w) && i+1 < len(words) && isMonthAbbrev(words[i+1]) {
			return strings.Join(words[i:min(i+3, len(words))], " "), true
		}
	}
	return "", false
}

func isDayNumber(s string) bool {
	if s == "" || len(s) > 2 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isMonthAbbrev(s string) bool {
	lower := strings.ToLower(strings.TrimRight(s, "."))
	for _, m := range monthAbbrev {
		if lower == m {
			return true
		}
	}
	return false
}
