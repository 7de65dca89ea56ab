package extract

// DefaultReceiptSchema returns a schema preconfigured for typical retail
// receipts: a receipt identifier, a transaction date, the total amount, and
// the change due. Callers can replace or extend any of these with AddField.
func DefaultReceiptSchema() *Schema {
	s := NewSchema()

	// Matches "#12345" or "Receipt: #9876".
	s.AddField("id",
		`#(\d+)`,
		`Receipt\s*[:\-]?\s*#?(\d+)`,
	)

	// ISO dates first so "2025-07-15" is not clipped to "25-07-15" by the
	// shorter day-first match.
	s.AddField("date",
		`(\d{4}[-/]\d{1,2}[-/]\d{1,2})`,
		`(\d{1,2}[-/]\d{1,2}[-/]\d{2,4})`,
	)

	// Totals capture the integer and fractional parts separately so that
	// receipts printed with either "123.45" or "123,45" reassemble to the
	// same "123.45".
	s.AddField("total",
		`Total\s*Amount\s*[:\-]?\s*\$?\s*([\d,]+)\s*[.,]\s*(\d{2})`,
		`Total\s*[:\-]?\s*\$?\s*([\d,]+)\s*[.,]\s*(\d{2})`,
		`Total.*?\$?\s*([\d,]+)[.,]\s*(\d{2})`,
	)

	s.AddField("change",
		`Change\s*Due\s*[:\-]?\s*\$?([\d,]+\.\d{2})`,
		`Change\s*[:\-]?\s*\$?([\d,]+\.\d{2})`,
	)

	return s
}
