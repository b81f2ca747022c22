package review

import (
	"bufio"
	"io"
	"strings"

	"CoopLedgerSaas/internal/model"
)

const csvHeader = "Account Holder Name,Transaction Date,Amount,Transaction Type,Description,Account Number"

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// WriteCSV writes rows as one line each with every field double-quoted.
// Embedded line breaks are flattened so the data line count equals len(rows).
func WriteCSV(w io.Writer, rows []model.ExtractedTransaction) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(csvHeader)
	bw.WriteByte('\n')
	for _, r := range rows {
		date := ""
		if r.TransactionDate != nil {
			date = r.TransactionDate.Format("2006-01-02")
		}
		fields := []string{
			r.AccountHolderName,
			date,
			r.Amount.StringFixed(2),
			string(r.TransactionType),
			r.Description,
			r.AccountNumber,
		}
		for i, f := range fields {
			if i > 0 {
				bw.WriteByte(',')
			}
			bw.WriteByte('"')
			bw.WriteString(strings.ReplaceAll(lineBreaks.Replace(f), `"`, `""`))
			bw.WriteByte('"')
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
