package dashboard

import (
	"fmt"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

const notAvailable = "n/a"

// USD formats v as a dollar amount with cents, e.g. "$1,234.56".
func USD(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return notAvailable
	}
	cur := money.GetCurrency(money.USD)
	cents := decimal.NewFromFloat(v).Shift(int32(cur.Fraction)).Round(0)
	return money.New(cents.IntPart(), money.USD).Display()
}

// Compact formats v with an SI suffix, e.g. "$3.5k".
func Compact(v float64) string {
	number, suffix := humanize.ComputeSI(math.Abs(v))
	sign := ""
	if v < 0 {
		sign = "-"
	}
	return sign + "$" + humanize.FtoaWithDigits(number, 2) + suffix
}

// Percent formats a nullable percentage with two decimals.
func Percent(v *float64) string {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return notAvailable
	}
	return fmt.Sprintf("%.2f%%", *v)
}

// SignedPercent formats v with an explicit sign.
func SignedPercent(v float64) string {
	return fmt.Sprintf("%+.2f%%", v)
}

// Amount formats a token quantity.
func Amount(v float64, symbol string, decimals int) string {
	return strings.TrimSpace(fmt.Sprintf("%.*f %s", decimals, v, displaySymbol(symbol)))
}

// displaySymbol shows wrapped ether as ETH.
func displaySymbol(symbol string) string {
	if strings.EqualFold(symbol, "WETH") {
		return "ETH"
	}
	return symbol
}
