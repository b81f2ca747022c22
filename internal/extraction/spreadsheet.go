package extraction

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/model"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

type column int

const (
	colName column = iota
	colDate
	colAmount
	colCredit
	colDebit
	colType
	colDescription
	colAccount
	numColumns
)

var columnAliases = map[column][]string{
	colName:        {"account holder", "account holder name", "name", "account name", "member name", "customer name", "depositor", "depositor name", "payer", "payer name"},
	colDate:        {"transaction date", "date", "value date", "txn date", "trans date", "posting date", "tran date"},
	colAmount:      {"amount", "transaction amount", "txn amount", "amt"},
	colCredit:      {"credit", "credit amount", "credits", "deposit", "deposits", "deposit amount", "cr", "money in"},
	colDebit:       {"debit", "debit amount", "debits", "withdrawal", "withdrawals", "withdrawal amount", "dr", "money out"},
	colType:        {"transaction type", "type", "txn type", "cr/dr", "dr/cr", "credit/debit"},
	colDescription: {"description", "narration", "details", "remarks", "particulars", "memo", "transaction description"},
	colAccount:     {"account number", "account no", "acct no", "a/c no", "account", "acc no", "account #"},
}

var aliasIndex = func() map[string]column {
	idx := make(map[string]column)
	for col, names := range columnAliases {
		for _, n := range names {
			idx[n] = col
		}
	}
	return idx
}()

// Rows that carry an amount but are statement furniture, not transactions.
var summaryLabels = map[string]bool{
	"total": true, "grand total": true, "opening balance": true, "closing balance": true,
	"balance b/f": true, "balance c/f": true, "brought forward": true, "carried forward": true,
}

const headerScanRows = 15

// Spreadsheet extracts tabular rows from .xlsx, .xls and .csv statements.
type Spreadsheet struct{}

func (Spreadsheet) Extract(_ context.Context, f File) ([]model.NormalizedTransaction, error) {
	rows, err := readRows(f)
	if err != nil {
		return nil, err
	}
	header, cols, err := findHeader(rows)
	if err != nil {
		return nil, err
	}

	var out []model.NormalizedTransaction
	for i := header + 1; i < len(rows); i++ {
		row := rows[i]
		if isEmptyRow(row) {
			continue
		}
		txn, keep, err := rowToTransaction(row, cols)
		if err != nil {
			return nil, errs.Validation("row %d: %v", i+1, err)
		}
		if keep {
			out = append(out, txn)
		}
	}
	return out, nil
}

func readRows(f File) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(f.Name)) {
	case ".xlsx":
		return parseExcelFile(f.Data)
	case ".xls":
		return parseXLSFile(f.Data)
	case ".csv":
		return parseCSVFile(f.Data)
	}
	return nil, errs.Validation("unsupported spreadsheet format %q", filepath.Ext(f.Name))
}

func parseExcelFile(data []byte) ([][]string, error) {
	xl, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, errs.Validation("unreadable xlsx file: %v", err)
	}
	defer xl.Close()
	rows, err := xl.GetRows(xl.GetSheetName(0))
	if err != nil {
		return nil, errs.Validation("unreadable xlsx sheet: %v", err)
	}
	return rows, nil
}

func parseXLSFile(data []byte) ([][]string, error) {
	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, errs.Validation("unreadable xls file: %v", err)
	}
	sheet := book.GetSheet(0)
	if sheet == nil {
		return nil, errs.Validation("xls file has no sheets")
	}
	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		r := sheet.Row(i)
		if r == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, r.LastCol())
		for j := r.FirstCol(); j < r.LastCol(); j++ {
			cells[j] = r.Col(j)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// parseCSVFile reads UTF-8 CSV and falls back to Windows-1252 for files
// exported by older banking software.
func parseCSVFile(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	var src io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		src = transform.NewReader(src, charmap.Windows1252.NewDecoder())
	}
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, errs.Validation("unreadable csv file: %v", err)
	}
	return rows, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(h)
	h = strings.NewReplacer("_", " ", ".", "", ":", "", "\u00a0", " ").Replace(h)
	return cleanText(h)
}

// findHeader picks the row within the first rows of the sheet with the most
// recognised column names. The header must name an account holder and some
// amount column.
func findHeader(rows [][]string) (int, [numColumns]int, error) {
	best, bestHits := -1, 0
	var bestCols [numColumns]int
	limit := headerScanRows
	if len(rows) < limit {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		var cols [numColumns]int
		for c := range cols {
			cols[c] = -1
		}
		hits := 0
		for j, cell := range rows[i] {
			col, ok := aliasIndex[normalizeHeader(cell)]
			if !ok || cols[col] != -1 {
				continue
			}
			cols[col] = j
			hits++
		}
		hasAmount := cols[colAmount] != -1 || cols[colCredit] != -1 || cols[colDebit] != -1
		if cols[colName] == -1 || !hasAmount {
			continue
		}
		if hits > bestHits {
			best, bestHits, bestCols = i, hits, cols
		}
	}
	if best < 0 {
		return 0, bestCols, errs.Validation("no header row with account holder and amount columns found")
	}
	return best, bestCols, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// rowToTransaction converts one data row. keep is false for rows without a
// non-zero amount and for summary rows.
func rowToTransaction(row []string, cols [numColumns]int) (model.NormalizedTransaction, bool, error) {
	name := cleanText(cell(row, cols[colName]))
	if summaryLabels[strings.ToLower(name)] {
		return model.NormalizedTransaction{}, false, nil
	}

	txn := model.NormalizedTransaction{
		AccountHolderName: name,
		TransactionDate:   parseDate(cell(row, cols[colDate])),
		Description:       cleanText(cell(row, cols[colDescription])),
		AccountNumber:     cell(row, cols[colAccount]),
		ConfidenceScore:   model.SpreadsheetConfidence,
		Source:            model.SourceSpreadsheet,
		TransactionType:   model.Credit,
	}

	var hint model.TransactionType
	switch {
	case cols[colAmount] != -1:
		amt, h, ok, err := parseAmount(cell(row, cols[colAmount]))
		if err != nil {
			return txn, false, err
		}
		if !ok {
			return txn, false, nil
		}
		txn.Amount, hint = amt, h
	default:
		credit, _, _, err := parseAmount(cell(row, cols[colCredit]))
		if err != nil {
			return txn, false, fmt.Errorf("credit: %w", err)
		}
		debit, _, _, err := parseAmount(cell(row, cols[colDebit]))
		if err != nil {
			return txn, false, fmt.Errorf("debit: %w", err)
		}
		switch {
		case !credit.IsZero():
			txn.Amount, hint = credit.Abs(), model.Credit
		case !debit.IsZero():
			txn.Amount, hint = debit.Abs(), model.Debit
		}
	}
	if txn.Amount.IsZero() {
		return txn, false, nil
	}
	if txn.Amount.IsNegative() {
		txn.Amount = txn.Amount.Abs()
		hint = model.Debit
	}
	if hint != "" {
		txn.TransactionType = hint
	}
	if t, ok := typeFromText(cell(row, cols[colType])); ok {
		txn.TransactionType = t
	}
	return txn, true, nil
}
