package bankrecovery

import "strings"

var noiseKeywords = []string{
	"puntos", "points", "beneficios", "total", "abonos", "cargos",
	"resumen", "tipo de cambio",
}

// segmentBlocks opens one block per anchor, extending from
// yPos-5 to the next anchor's yPos-2 (or page height), classifies
// words inside the block by x-position, and runs hypothesis
// generation over the numeric candidates. Rows whose text contains a
// noise keyword are skipped entirely.
func segmentBlocks(doc OcrDocument, anchors []anchor, year int) []block {
	blocks := make([]block, 0, len(anchors))

	pageByNumber := make(map[int]OcrPage, len(doc.Pages))
	for _, p := range doc.Pages {
		pageByNumber[p.PageNumber] = p
	}

	for i, a := range anchors {
		page, ok := pageByNumber[a.page]
		if !ok {
			continue
		}

		yStart := a.yPos - 5
		yEnd := page.Height
		if i+1 < len(anchors) && anchors[i+1].page == a.page {
			yEnd = anchors[i+1].yPos - 2
		}

		b := block{page: a.page, row: a.row, date: a.dateText, hasDate: true, year: year}
		var descParts []string

		for _, row := range page.Rows {
			if row.YPosition < yStart || row.YPosition >= yEnd {
				continue
			}
			lower := strings.ToLower(row.RawText)
			if containsAny(lower, noiseKeywords) {
				continue
			}

			for _, w := range row.Words {
				if page.Width > 0 && w.BoundingBox.X > page.Width*amountColumnThresholdFraction {
					// Hypothesis generation is sign-agnostic: a magnitude
					// hypothesis becomes either a debit or a credit
					// candidate only once the CSP solve picks a sign.
					b.variants = append(b.variants, generateVariants(w.Text)...)
				} else if w.Text != "" {
					descParts = append(descParts, w.Text)
				}
			}
		}

		b.description = strings.Join(descParts, " ")
		blocks = append(blocks, b)
	}

	return blocks
}
