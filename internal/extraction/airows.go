package extraction

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"CoopLedgerSaas/internal/errs"
	"CoopLedgerSaas/internal/model"
)

const extractionPrompt = `You are reading a bank statement for a savings cooperative.
Extract every transaction and reply with ONLY a JSON array, no prose and no markdown.
Each element must have exactly these keys:
  "accountHolderName": string, the depositor or payee name as written,
  "transactionDate": string in YYYY-MM-DD format, or "" when unknown,
  "amount": positive number without currency symbols or separators,
  "transactionType": "credit" for money received, "debit" for money paid out,
  "description": string, the narration or reference,
  "accountNumber": string, or "" when absent.
If there are no transactions reply with [].`

// aiRow is one element of the model's reply. Amount is kept raw because
// models emit both numbers and quoted strings.
type aiRow struct {
	AccountHolderName string          `json:"accountHolderName"`
	TransactionDate   string          `json:"transactionDate"`
	Amount            json.RawMessage `json:"amount"`
	TransactionType   string          `json:"transactionType"`
	Description       string          `json:"description"`
	AccountNumber     string          `json:"accountNumber"`
}

// parseAIRows decodes the first JSON array in reply. A reply without an array
// yields no rows; an array that does not decode is an external service error.
// Rows without a positive amount are dropped.
func parseAIRows(reply string, confidence float64, source model.Source) ([]model.NormalizedTransaction, error) {
	list, ok := jsonArray(reply)
	if !ok {
		return nil, nil
	}
	var rows []aiRow
	if err := json.Unmarshal([]byte(list), &rows); err != nil {
		return nil, errs.External("AI response was not a valid transaction list", err)
	}

	out := make([]model.NormalizedTransaction, 0, len(rows))
	for _, r := range rows {
		raw := strings.Trim(strings.TrimSpace(string(r.Amount)), `"`)
		amt, hint, ok, err := parseAmount(raw)
		if err != nil || !ok || !amt.IsPositive() {
			continue
		}
		typ := model.Credit
		if hint != "" {
			typ = hint
		}
		if t, ok := typeFromText(r.TransactionType); ok {
			typ = t
		}
		out = append(out, model.NormalizedTransaction{
			AccountHolderName: cleanText(r.AccountHolderName),
			TransactionDate:   parseDate(r.TransactionDate),
			Amount:            amt,
			TransactionType:   typ,
			Description:       cleanText(r.Description),
			AccountNumber:     strings.TrimSpace(r.AccountNumber),
			ConfidenceScore:   confidence,
			Source:            source,
		})
	}
	return out, nil
}

// jsonArray returns the outermost bracketed span of reply.
func jsonArray(reply string) (string, bool) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end <= start {
		return "", false
	}
	return reply[start : end+1], true
}

// truncateUTF8 cuts s to at most n bytes without splitting a character.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
