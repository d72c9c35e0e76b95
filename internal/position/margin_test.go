package position

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/olyamironova/perp-engine/internal/domain"
)

func TestRequiredMargin(t *testing.T) {
	assert.Equal(t, domain.WholeAmount(5000), RequiredMargin(domain.WholePrice(50000), domain.WholeQuantity(1), 10))
	assert.Equal(t, domain.WholeAmount(500), RequiredMargin(domain.WholePrice(50000), domain.WholeQuantity(1), 100))
}

func TestLiquidationPrice(t *testing.T) {
	p := DefaultParams()
	entry := domain.WholePrice(50000)

	assert.Equal(t, domain.WholePrice(45500), LiquidationPrice(domain.Long, entry, 10, p))
	assert.Equal(t, domain.WholePrice(54500), LiquidationPrice(domain.Short, entry, 10, p))
}

func TestBankruptcyPrice(t *testing.T) {
	entry := domain.WholePrice(50000)
	assert.Equal(t, domain.WholePrice(45000), BankruptcyPrice(domain.Long, entry, 10))
	assert.Equal(t, domain.WholePrice(55000), BankruptcyPrice(domain.Short, entry, 10))
}

func TestPnL(t *testing.T) {
	entry := domain.WholePrice(50000)
	one := domain.WholeQuantity(1)

	assert.Equal(t, domain.WholeAmount(5000), PnL(domain.Long, entry, domain.WholePrice(55000), one))
	assert.Equal(t, domain.WholeAmount(-5000), PnL(domain.Short, entry, domain.WholePrice(55000), one))
	assert.Equal(t, domain.WholeAmount(2000), PnL(domain.Short, entry, domain.WholePrice(48000), one))
}

func TestWeightedEntry(t *testing.T) {
	got := WeightedEntry(domain.WholePrice(100), domain.WholeQuantity(1), domain.WholePrice(200), domain.WholeQuantity(3))
	assert.Equal(t, domain.WholePrice(175), got)
	assert.Equal(t, domain.WholePrice(42), WeightedEntry(0, 0, domain.WholePrice(42), domain.WholeQuantity(2)))
}

func TestSplitLoss(t *testing.T) {
	tests := []struct {
		name          string
		loss, margin  int64
		account, fund int64
	}{
		{"within margin", 4400, 5000, 4400, 0},
		{"beyond margin", 6000, 5000, 5000, 1000},
		{"exactly margin", 5000, 5000, 5000, 0},
		{"gain", -300, 5000, -300, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, fund := SplitLoss(domain.WholeAmount(tt.loss), domain.WholeAmount(tt.margin))
			assert.Equal(t, domain.WholeAmount(tt.account), acc)
			assert.Equal(t, domain.WholeAmount(tt.fund), fund)
		})
	}
}

func TestProfitRate(t *testing.T) {
	entry := domain.WholePrice(50000)
	assert.Equal(t, domain.BasisPoints(1000), ProfitRate(domain.Long, entry, domain.WholePrice(55000)))
	assert.Equal(t, domain.BasisPoints(-1000), ProfitRate(domain.Short, entry, domain.WholePrice(55000)))
	assert.Equal(t, domain.Rate(0), ProfitRate(domain.Long, 0, domain.WholePrice(1)))
}

func TestADLRankOrdersByProfitAndLeverage(t *testing.T) {
	mark := domain.WholePrice(55000)
	base := domain.Position{
		Side:       domain.Short,
		Quantity:   domain.WholeQuantity(1),
		EntryPrice: domain.WholePrice(60000),
		Margin:     domain.WholeAmount(6000),
	}
	highLev := base
	highLev.Margin = domain.WholeAmount(600)
	moreProfit := base
	moreProfit.EntryPrice = domain.WholePrice(65000)
	losing := base
	losing.EntryPrice = domain.WholePrice(50000)

	assert.Greater(t, ADLRank(highLev, mark), ADLRank(base, mark))
	assert.Greater(t, ADLRank(moreProfit, mark), ADLRank(base, mark))
	assert.Equal(t, int64(0), ADLRank(losing, mark))

	// profit rate 1/12 at leverage 55000/11000
	assert.Equal(t, int64(416_665), ADLRank(base, mark))
}

func TestEffectiveLeverageSaturates(t *testing.T) {
	assert.Equal(t, domain.Rate(math.MaxInt64), EffectiveLeverage(domain.WholeAmount(1000), domain.WholeAmount(10), domain.WholeAmount(-20)))
	assert.Equal(t, domain.Rate(10*domain.RateScale), EffectiveLeverage(domain.WholeAmount(1000), domain.WholeAmount(100), 0))
}

func TestBreached(t *testing.T) {
	long := domain.Position{Side: domain.Long, LiquidationPrice: domain.WholePrice(45500)}
	assert.True(t, Breached(long, domain.WholePrice(45500)))
	assert.True(t, Breached(long, domain.WholePrice(45000)))
	assert.False(t, Breached(long, domain.WholePrice(46000)))

	short := domain.Position{Side: domain.Short, LiquidationPrice: domain.WholePrice(54500)}
	assert.True(t, Breached(short, domain.WholePrice(55000)))
	assert.False(t, Breached(short, domain.WholePrice(54000)))
}
