package extraction

import (
	"testing"
	"time"

	"CoopLedgerSaas/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
		hint model.TransactionType
		ok   bool
	}{
		{"5,000.00", "5000", "", true},
		{"₹ 1,250.50", "1250.5", "", true},
		{"KES 300", "300", "", true},
		{"(75.25)", "-75.25", "", true},
		{"-40", "-40", "", true},
		{"40-", "-40", "", true},
		{"1,000.00 CR", "1000", model.Credit, true},
		{"250.00Dr", "250", model.Debit, true},
		{"", "0", "", false},
		{"-", "0", "", false},
	}
	for _, c := range cases {
		amt, hint, ok, err := parseAmount(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, amt.String(), c.in)
		assert.Equal(t, c.hint, hint, c.in)
		assert.Equal(t, c.ok, ok, c.in)
	}

	_, _, _, err := parseAmount("12.3.4")
	assert.Error(t, err)
}

func TestParseDateDayFirst(t *testing.T) {
	d := parseDate("03/04/2024")
	require.NotNil(t, d)
	assert.Equal(t, time.Date(2024, 4, 3, 0, 0, 0, 0, time.UTC), *d)

	d = parseDate("2024-03-15")
	require.NotNil(t, d)
	assert.Equal(t, time.March, d.Month())

	d = parseDate("15-Mar-24")
	require.NotNil(t, d)
	assert.Equal(t, 2024, d.Year())

	assert.Nil(t, parseDate(""))
	assert.Nil(t, parseDate("not a date"))
}

func TestParseDateExcelSerial(t *testing.T) {
	d := parseDate("45352")
	require.NotNil(t, d)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *d)

	d = parseDate("61")
	require.NotNil(t, d)
	assert.Equal(t, time.Date(1900, 3, 1, 0, 0, 0, 0, time.UTC), *d)
}

func TestTypeFromText(t *testing.T) {
	for _, s := range []string{"CR", "Credit", "deposit", " cr. "} {
		typ, ok := typeFromText(s)
		assert.True(t, ok, s)
		assert.Equal(t, model.Credit, typ, s)
	}
	for _, s := range []string{"DR", "debit", "Withdrawal"} {
		typ, ok := typeFromText(s)
		assert.True(t, ok, s)
		assert.Equal(t, model.Debit, typ, s)
	}
	_, ok := typeFromText("transfer")
	assert.False(t, ok)
}
