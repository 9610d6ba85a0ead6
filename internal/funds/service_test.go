package funds

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLossDebitClampsToAvailableMargin(t *testing.T) {
	// A loss inside available margin debits in full.
	got := lossDebit(dec("200"), dec("300"))
	assert.True(t, got.Equal(dec("200")), "debit %s", got)

	// A loss beyond available margin debits only what is there; the rest
	// is absorbed.
	got = lossDebit(dec("500"), dec("300"))
	assert.True(t, got.Equal(dec("300")), "debit %s", got)

	// An emptied account absorbs the whole loss.
	got = lossDebit(dec("500"), decimal.Zero)
	assert.True(t, got.IsZero(), "debit %s", got)

	// Exact boundary debits exactly the available margin.
	got = lossDebit(dec("300"), dec("300"))
	assert.True(t, got.Equal(dec("300")), "debit %s", got)
}
