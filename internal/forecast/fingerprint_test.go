package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func normalizeForTest(t *testing.T, records []TransactionRecord) *NormalizedInput {
	t.Helper()
	in, err := Normalize(records)
	require.NoError(t, err)
	return in
}

func TestFingerprintDeterministic(t *testing.T) {
	records := []TransactionRecord{
		{Date: "2026-01-01", Amount: 120, Type: "expense", Category: "groceries"},
		{Date: "2026-01-02", Amount: 3000, Type: "income", Category: "salary"},
	}

	a := Fingerprint("user-1", normalizeForTest(t, records), Horizon3Months)
	b := Fingerprint("user-1", normalizeForTest(t, records), Horizon3Months)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintIgnoresInputOrder(t *testing.T) {
	forward := []TransactionRecord{
		{Date: "2026-01-01", Amount: 120, Type: "expense", Category: "groceries"},
		{Date: "2026-01-02", Amount: 3000, Type: "income", Category: "salary"},
	}
	reversed := []TransactionRecord{forward[1], forward[0]}

	a := Fingerprint("user-1", normalizeForTest(t, forward), Horizon3Months)
	b := Fingerprint("user-1", normalizeForTest(t, reversed), Horizon3Months)
	assert.Equal(t, a, b)
}

func TestFingerprintSensitivity(t *testing.T) {
	base := []TransactionRecord{
		{Date: "2026-01-01", Amount: 120, Type: "expense", Category: "groceries"},
	}
	baseFP := Fingerprint("user-1", normalizeForTest(t, base), Horizon3Months)

	t.Run("different user", func(t *testing.T) {
		fp := Fingerprint("user-2", normalizeForTest(t, base), Horizon3Months)
		assert.NotEqual(t, baseFP, fp)
	})

	t.Run("different horizon", func(t *testing.T) {
		fp := Fingerprint("user-1", normalizeForTest(t, base), Horizon6Months)
		assert.NotEqual(t, baseFP, fp)
	})

	t.Run("different amount", func(t *testing.T) {
		changed := []TransactionRecord{
			{Date: "2026-01-01", Amount: 120.01, Type: "expense", Category: "groceries"},
		}
		fp := Fingerprint("user-1", normalizeForTest(t, changed), Horizon3Months)
		assert.NotEqual(t, baseFP, fp)
	})

	t.Run("different date", func(t *testing.T) {
		changed := []TransactionRecord{
			{Date: "2026-01-02", Amount: 120, Type: "expense", Category: "groceries"},
		}
		fp := Fingerprint("user-1", normalizeForTest(t, changed), Horizon3Months)
		assert.NotEqual(t, baseFP, fp)
	})
}
