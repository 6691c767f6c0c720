package plans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedCatalog(t *testing.T) {
	env := map[string]string{"STRIPE_PRICE_PRO": "price_pro", "STRIPE_PRICE_BUSINESS": " price_biz "}
	c, err := parse(catalogYAML, func(k string) string { return env[k] })
	require.NoError(t, err)

	require.Len(t, c.All(), 3)
	free := c.Get(Free)
	assert.Equal(t, 1, free.Limits.MaxBots)
	assert.Empty(t, free.PriceID)

	p, ok := c.ByPriceID("price_biz")
	require.True(t, ok)
	assert.Equal(t, Business, p.ID)
	assert.Greater(t, p.Limits.MaxMessagesPerMonth, c.Get(Pro).Limits.MaxMessagesPerMonth)

	assert.Equal(t, Free, c.Get("enterprise").ID)
	_, ok = c.Lookup("enterprise")
	assert.False(t, ok)
	_, ok = c.ByPriceID("")
	assert.False(t, ok)
}

func TestParseRejectsBadCatalog(t *testing.T) {
	getenv := func(string) string { return "" }
	_, err := parse([]byte("plans:\n  - id: pro\n"), getenv)
	assert.Error(t, err)
	_, err = parse([]byte("plans:\n  - id: free\n  - id: free\n"), getenv)
	assert.Error(t, err)
	_, err = parse([]byte("plans: ["), getenv)
	assert.Error(t, err)
}
