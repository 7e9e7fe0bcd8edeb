package format

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const defaultCurrency = "USD"

// minorUnitScale is the number of fraction digits stored amounts carry for
// every currency.
const minorUnitScale = 2

var ErrInvalidAmount = errors.New("invalid_amount")

// DisplayAmount renders minor units as a major-unit value. Whole amounts
// drop the fraction ("80"), anything else keeps it ("80.5").
func DisplayAmount(cents int64) string {
	if cents%100 == 0 {
		return strconv.FormatInt(cents/100, 10)
	}
	return strconv.FormatFloat(float64(cents)/100.0, 'f', -1, 64)
}

// DisplayAmountPtr treats an unknown amount as zero.
func DisplayAmountPtr(cents *int64) string {
	if cents == nil {
		return DisplayAmount(0)
	}
	return DisplayAmount(*cents)
}

// Money renders minor units with the currency symbol and grouping, for
// example "$1,234.50". The fraction always shows cents so the value matches
// DisplayAmount whatever the currency's own precision.
func Money(cents int64, code string) string {
	unit := parseUnit(code)

	p := message.NewPrinter(language.English)
	symbol := strings.TrimSpace(p.Sprint(currency.Symbol(unit)))

	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	value := float64(cents) / 100.0
	return sign + symbol + p.Sprint(number.Decimal(value, number.Scale(minorUnitScale)))
}

// MoneyPtr treats an unknown amount as zero.
func MoneyPtr(cents *int64, code string) string {
	if cents == nil {
		return Money(0, code)
	}
	return Money(*cents, code)
}

// ParseAmount reads a major-unit string such as "80.50" into minor units,
// rounding to the nearest cent.
func ParseAmount(value string) (int64, error) {
	value = strings.TrimSpace(strings.ReplaceAll(value, ",", ""))
	if value == "" {
		return 0, ErrInvalidAmount
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, ErrInvalidAmount
	}
	return int64(math.Round(parsed * 100)), nil
}

func parseUnit(code string) currency.Unit {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = defaultCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return currency.USD
	}
	return unit
}
