package orders

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/medisim/internal/casedoc"
)

func loadCase(t *testing.T, raw string) *casedoc.Case {
	t.Helper()
	c, err := casedoc.Load([]byte(raw))
	require.NoError(t, err)
	return c
}

func TestFulfill_NotAllowed(t *testing.T) {
	// Scenario: allow-list has only Urinalysis.
	c := loadCase(t, "orders:\n  allowed: [Urinalysis]\n")

	f, err := Fulfill("Blood culture", c, time.Now())
	assert.Nil(t, f)
	assert.ErrorIs(t, err, ErrTestNotAllowed)
}

func TestFulfill_ChecksAllowListNotResults(t *testing.T) {
	c := loadCase(t, `
orders:
  allowed: [Urinalysis]
  results: {Urinalysis: Nitrites positive, CT abdomen: Normal}
`)
	_, err := Fulfill("CT abdomen", c, time.Now())
	assert.ErrorIs(t, err, ErrTestNotAllowed)

	_, err = Fulfill("urinalysis", c, time.Now())
	assert.ErrorIs(t, err, ErrTestNotAllowed, "match is exact")
}

func TestFulfill_ResultLookup(t *testing.T) {
	raw, err := os.ReadFile("../casedoc/testdata/case_uti_001.yaml")
	require.NoError(t, err)
	c, err := casedoc.Load(raw)
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	f, err := Fulfill("Urinalysis", c, now)
	require.NoError(t, err)
	assert.Equal(t, "Urinalysis", f.Order.TestName)
	assert.Equal(t, c.OrderResults["Urinalysis"], f.Result.Text)
	assert.Equal(t, now, f.Order.CreatedAt)
	assert.Equal(t, now, f.Result.CreatedAt)
}

func TestFulfill_Pending(t *testing.T) {
	c := loadCase(t, "orders:\n  allowed: [Urinalysis, CBC]\n  results: {Urinalysis: Normal}\n")

	f, err := Fulfill("CBC", c, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Pending", f.Result.Text)
}

func TestSuggest(t *testing.T) {
	c := loadCase(t, "orders:\n  allowed: [Urinalysis, Urine culture, Pregnancy test]\n")

	assert.Equal(t, []string{"Urinalysis", "Urine culture"}, Suggest("urin", c))
	assert.Equal(t, []string{"Pregnancy test"}, Suggest("pregnancy TEST please", c))
	assert.Empty(t, Suggest("CBC", c))
	assert.Nil(t, Suggest("  ", c))
}

func TestTestNames(t *testing.T) {
	fs := []Fulfillment{{Order: Order{TestName: "Urinalysis"}}, {Order: Order{TestName: "CBC"}}}
	assert.Equal(t, []string{"Urinalysis", "CBC"}, TestNames(fs))
}
