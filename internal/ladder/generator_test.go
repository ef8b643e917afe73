package ladder_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyladder/internal/domain"
	"github.com/alanyoungcy/polyladder/internal/ladder"
)

func TestGenerate_DefaultLadder(t *testing.T) {
	start := time.Unix(1758560400, 0).UTC()
	p := ladder.DefaultPolicy()

	intents := ladder.Generate(p, start)
	require.Len(t, intents, 10)

	want := []string{"0.05", "0.04", "0.03", "0.02", "0.01"}
	for outcome := 0; outcome < 2; outcome++ {
		for i, price := range want {
			in := intents[outcome*5+i]
			assert.Equal(t, outcome, in.OutcomeIndex)
			assert.True(t, in.Price.Equal(decimal.RequireFromString(price)), "got %s want %s", in.Price, price)
			assert.True(t, in.Size.Equal(decimal.NewFromInt(10)))
			assert.Equal(t, domain.OrderSideBuy, in.Side)
			assert.Equal(t, domain.TimeInForceGTD, in.TimeInForce)
			assert.Equal(t, start.Add(8*time.Minute), in.Expiration)
		}
	}
}

func TestGenerate_GTCHasNoExpiration(t *testing.T) {
	p := ladder.DefaultPolicy()
	p.TimeInForce = domain.TimeInForceGTC

	for _, in := range ladder.Generate(p, time.Now()) {
		assert.False(t, in.HasExpiration())
	}
}

func TestGenerate_DoesNotClamp(t *testing.T) {
	p := ladder.DefaultPolicy()
	p.CountPerSide = 8

	intents := ladder.Generate(p, time.Now())
	require.Len(t, intents, 16)
	assert.True(t, intents[7].Price.Equal(decimal.RequireFromString("-0.02")))
	assert.Error(t, p.Validate())
}

func TestGenerate_ZeroCount(t *testing.T) {
	p := ladder.DefaultPolicy()
	p.CountPerSide = 0
	assert.Empty(t, ladder.Generate(p, time.Now()))
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, ladder.DefaultPolicy().Validate())

	p := ladder.DefaultPolicy()
	p.SizeStart = decimal.RequireFromString("2.5")
	assert.Error(t, p.Validate())

	p = ladder.DefaultPolicy()
	p.CancelAfter = 0
	assert.Error(t, p.Validate())

	p = ladder.DefaultPolicy()
	p.Side = "HOLD"
	assert.Error(t, p.Validate())
}

func TestGenerate_Properties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	start := time.Unix(1758560400, 0)

	properties.Property("count_per_side rungs per outcome on both sequences", prop.ForAll(
		func(count int, priceCents, stepCents, size, sizeStep int64) bool {
			p := ladder.Policy{
				CountPerSide: count,
				PriceStart:   decimal.New(priceCents, -2),
				PriceStep:    decimal.New(stepCents, -2),
				SizeStart:    decimal.NewFromInt(size),
				SizeStep:     decimal.NewFromInt(sizeStep),
				Side:         domain.OrderSideBuy,
				TimeInForce:  domain.TimeInForceGTD,
				CancelAfter:  time.Minute,
			}
			intents := ladder.Generate(p, start)
			if len(intents) != 2*count {
				return false
			}
			perOutcome := map[int]int{}
			for k, in := range intents {
				i := int64(k % count)
				perOutcome[in.OutcomeIndex]++
				if in.OutcomeIndex != k/count {
					return false
				}
				if !in.Price.Equal(decimal.New(priceCents+i*stepCents, -2)) {
					return false
				}
				if !in.Size.Equal(decimal.NewFromInt(size + i*sizeStep)) {
					return false
				}
				if !in.Expiration.Equal(start.Add(time.Minute)) {
					return false
				}
			}
			return perOutcome[0] == count && perOutcome[1] == count
		},
		gen.IntRange(1, 25),
		gen.Int64Range(1, 99),
		gen.Int64Range(-5, 5),
		gen.Int64Range(1, 100),
		gen.Int64Range(0, 10),
	))

	properties.Property("generation is deterministic", prop.ForAll(
		func(count int) bool {
			p := ladder.DefaultPolicy()
			p.CountPerSide = count
			a := ladder.Generate(p, start)
			b := ladder.Generate(p, start)
			if len(a) != len(b) {
				return false
			}
			for i := range a {
				if !a[i].Price.Equal(b[i].Price) || !a[i].Size.Equal(b[i].Size) || a[i].OutcomeIndex != b[i].OutcomeIndex {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}
