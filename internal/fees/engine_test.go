package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gokselkaptan/takas-app-sub004/pkg/config"
)

func defaultBrackets(t *testing.T) config.FeeBracketList {
	t.Helper()
	var brackets config.FeeBracketList
	require.NoError(t, brackets.Decode("250:0.05,1000:0.08,inf:0.10"))
	return brackets
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(defaultBrackets(t))
	require.NoError(t, err)
	return engine
}

func TestCalculateFirstBracket(t *testing.T) {
	engine := newTestEngine(t)

	got, err := engine.Calculate(decimal.NewFromInt(200))
	require.NoError(t, err)

	require.True(t, got.Fee.Equal(decimal.NewFromInt(10)), "fee %s", got.Fee)
	require.True(t, got.Net.Equal(decimal.NewFromInt(190)), "net %s", got.Net)
	require.Len(t, got.Components, 1)
}

func TestCalculateSpansBrackets(t *testing.T) {
	engine := newTestEngine(t)

	// 250*0.05 + 750*0.08 + 500*0.10 = 12.50 + 60 + 50
	got, err := engine.Calculate(decimal.NewFromInt(1500))
	require.NoError(t, err)

	require.True(t, got.Fee.Equal(decimal.RequireFromString("122.50")), "fee %s", got.Fee)
	require.Len(t, got.Components, 3)
	require.True(t, got.Components[0].Fee.Equal(decimal.RequireFromString("12.50")))
	require.True(t, got.Components[1].Fee.Equal(decimal.NewFromInt(60)))
	require.True(t, got.Components[2].Fee.Equal(decimal.NewFromInt(50)))
}

func TestCalculateZeroGross(t *testing.T) {
	engine := newTestEngine(t)

	got, err := engine.Calculate(decimal.Zero)
	require.NoError(t, err)
	require.True(t, got.Fee.IsZero())
	require.True(t, got.Net.IsZero())
	require.Empty(t, got.Components)
}

func TestCalculateRejectsNegative(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.Calculate(decimal.NewFromInt(-1))
	require.Error(t, err)
}

func TestFeeIsProgressiveWithinBracket(t *testing.T) {
	engine := newTestEngine(t)

	lo, err := engine.Calculate(decimal.NewFromInt(300))
	require.NoError(t, err)
	hi, err := engine.Calculate(decimal.NewFromInt(500))
	require.NoError(t, err)

	// both fall in the 8% bracket: fee delta equals rate times the gross delta
	wantDelta := decimal.NewFromInt(200).Mul(decimal.RequireFromString("0.08"))
	require.True(t, hi.Fee.Sub(lo.Fee).Equal(wantDelta), "delta %s", hi.Fee.Sub(lo.Fee))
}

func TestFeeAtBoundaryIncludesLowerBrackets(t *testing.T) {
	engine := newTestEngine(t)

	atBoundary, err := engine.Calculate(decimal.NewFromInt(250))
	require.NoError(t, err)
	justAbove, err := engine.Calculate(decimal.RequireFromString("250.50"))
	require.NoError(t, err)

	require.True(t, atBoundary.Fee.Equal(decimal.RequireFromString("12.50")))
	require.True(t, justAbove.Fee.Equal(decimal.RequireFromString("12.54")), "fee %s", justAbove.Fee)
}

func TestFeeNeverDecreasesWithGross(t *testing.T) {
	engine := newTestEngine(t)

	prev := decimal.Zero
	for gross := int64(0); gross <= 2000; gross += 50 {
		got, err := engine.Calculate(decimal.NewFromInt(gross))
		require.NoError(t, err)
		require.True(t, got.Fee.GreaterThanOrEqual(prev), "fee regressed at gross=%d", gross)
		prev = got.Fee
	}
}

func TestMarginalRate(t *testing.T) {
	engine := newTestEngine(t)

	require.True(t, engine.MarginalRate(decimal.NewFromInt(100)).Equal(decimal.RequireFromString("0.05")))
	require.True(t, engine.MarginalRate(decimal.NewFromInt(600)).Equal(decimal.RequireFromString("0.08")))
	require.True(t, engine.MarginalRate(decimal.NewFromInt(5000)).Equal(decimal.RequireFromString("0.10")))
}

func TestNewEngineRejectsBadTables(t *testing.T) {
	unbounded := config.FeeBracket{Rate: decimal.RequireFromString("0.10")}
	hundred := decimal.NewFromInt(100)
	fifty := decimal.NewFromInt(50)

	cases := []struct {
		name     string
		brackets config.FeeBracketList
	}{
		{name: "empty", brackets: nil},
		{name: "bounded tail", brackets: config.FeeBracketList{{Ceiling: &hundred, Rate: decimal.RequireFromString("0.05")}}},
		{name: "unordered ceilings", brackets: config.FeeBracketList{
			{Ceiling: &hundred, Rate: decimal.RequireFromString("0.05")},
			{Ceiling: &fifty, Rate: decimal.RequireFromString("0.08")},
			unbounded,
		}},
		{name: "rate above one", brackets: config.FeeBracketList{{Rate: decimal.NewFromInt(2)}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEngine(tc.brackets)
			require.Error(t, err)
		})
	}
}
