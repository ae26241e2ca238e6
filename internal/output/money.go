package output

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency is the display currency for all amounts.
const Currency = money.USD

// Money renders amount as "$1,234.56", rounding half away from zero to cents.
func Money(amount decimal.Decimal) string {
	cur := money.GetCurrency(Currency)
	cents := amount.Shift(int32(cur.Fraction)).Round(0)
	return money.New(cents.IntPart(), Currency).Display()
}

// SignedMoney renders amount with an explicit sign: "+$1.00", "-$1.00".
// Zero renders as "$0.00".
func SignedMoney(amount decimal.Decimal) string {
	s := Money(amount)
	if amount.Round(2).IsPositive() {
		return "+" + s
	}
	return s
}

// Quantity renders a share count with two decimals.
func Quantity(q decimal.Decimal) string {
	return q.StringFixed(2)
}

// Percent renders p as "12.5%".
func Percent(p decimal.Decimal) string {
	return p.String() + "%"
}
