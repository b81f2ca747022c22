package extraction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"CoopLedgerSaas/internal/model"

	"github.com/shopspring/decimal"
)

var amountJunk = regexp.MustCompile(`[^0-9.\-]`)

// parseAmount reads a statement amount. It accepts currency symbols and
// codes, thousands separators, parentheses or a sign for negatives and a
// trailing CR/DR marker, which is returned as a type hint. ok is false for
// blank cells.
func parseAmount(s string) (amt decimal.Decimal, hint model.TransactionType, ok bool, err error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == "-" || s == "--" {
		return decimal.Zero, "", false, nil
	}
	switch {
	case strings.HasSuffix(s, "CR"):
		hint = model.Credit
		s = strings.TrimSpace(strings.TrimSuffix(s, "CR"))
	case strings.HasSuffix(s, "DR"):
		hint = model.Debit
		s = strings.TrimSpace(strings.TrimSuffix(s, "DR"))
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	if strings.HasSuffix(s, "-") {
		negative = true
		s = strings.TrimSuffix(s, "-")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = amountJunk.ReplaceAllString(s, "")
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimPrefix(s, "-")
	}
	if s == "" {
		return decimal.Zero, hint, false, nil
	}
	amt, err = decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, "", false, fmt.Errorf("invalid amount %q", s)
	}
	if negative {
		amt = amt.Neg()
	}
	return amt, hint, true, nil
}

// typeFromText maps a free-form type cell to credit or debit.
func typeFromText(s string) (model.TransactionType, bool) {
	switch strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "."))) {
	case "cr", "c", "credit", "deposit", "receipt", "in", "money in", "contribution":
		return model.Credit, true
	case "dr", "d", "debit", "withdrawal", "payment", "out", "money out", "loan":
		return model.Debit, true
	}
	return "", false
}

// dd/mm layouts come before mm/dd: statements from the cooperative's banks
// use day-first dates.
var dateLayouts = []string{
	"02/01/2006", "2/1/2006", "02/01/06", "2/1/06",
	"02/01/2006 15:04", "02/01/2006 15:04:05", "02/01/2006 03:04:05 PM", "2/1/2006 3:04:05 PM",
	"02-01-2006", "2-1-2006", "02-01-06", "02.01.2006", "2.1.2006",
	"01/02/2006", "1/2/2006", "01/02/06",
	"02-Jan-2006", "2-Jan-2006", "02-Jan-06", "2-Jan-06", "02/Jan/2006", "02/Jan/06",
	"02 Jan 2006", "2 Jan 2006", "02 January 2006", "2 January 2006",
	"Jan 2, 2006", "January 2, 2006", "Jan 02 2006",
	"2006-01-02", "2006/01/02", "2006.01.02", "2006-1-2", "2006/1/2",
	"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02T15:04", time.RFC3339,
}

// excelEpoch is day zero of the 1900 date system, shifted to absorb Excel's
// phantom 1900-02-29.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// parseDate returns nil when s is blank or matches no known layout.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t)
		}
	}
	if t, ok := excelSerialDate(s); ok {
		return dateOnly(t)
	}
	return nil
}

func excelSerialDate(s string) (time.Time, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 1 || f > 2958465 {
		return time.Time{}, false
	}
	days := int(f)
	return excelEpoch.AddDate(0, 0, days), true
}

func dateOnly(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

var spaceRun = regexp.MustCompile(`\s+`)

func cleanText(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
