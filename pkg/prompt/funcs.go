package prompt

import (
	"fmt"
	"math"
	"strconv"
	"text/template"
)

// Formatting helpers for A-share market numbers. They back the template
// functions registered on every Template and are also called directly by the
// assistant when it lays out quote context.

// Price renders a CNY price with two decimals.
func Price(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Pct renders a signed percentage, e.g. "+1.23%".
func Pct(v float64) string {
	return fmt.Sprintf("%+.2f%%", v)
}

// Volume renders share/turnover volume in the units A-share terminals use:
// 亿 for hundred-millions, 万 for ten-thousands, plain below that.
func Volume(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1e8:
		return strconv.FormatFloat(v/1e8, 'f', 2, 64) + "亿"
	case abs >= 1e4:
		return strconv.FormatFloat(v/1e4, 'f', 2, 64) + "万"
	default:
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
}

// Trend classifies a change as "up", "down" or "flat".
func Trend(v float64) string {
	switch {
	case v > 0:
		return "up"
	case v < 0:
		return "down"
	default:
		return "flat"
	}
}

// MarketFuncs is the function map installed on every prompt template.
func MarketFuncs() template.FuncMap {
	return template.FuncMap{
		"price": Price,
		"pct":   Pct,
		"vol":   Volume,
		"trend": Trend,
	}
}
