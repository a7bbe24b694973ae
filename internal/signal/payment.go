package signal

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
)

type paymentPattern struct {
	re       *regexp.Regexp
	currency string
}

// Amount captures are group 1.
var paymentPatterns = []paymentPattern{
	{regexp.MustCompile(`€\s?(\d[\d.,]*)`), "EUR"},
	{regexp.MustCompile(`(?i)(\d[\d.,]*)\s?(?:eur|euros?)\b`), "EUR"},
	{regexp.MustCompile(`\$\s?(\d[\d.,]*)`), "USD"},
	{regexp.MustCompile(`(?i)(\d[\d.,]*)\s?(?:usd|dollars?)\b`), "USD"},
	{regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s?(?:btc|bitcoin)\b`), "BTC"},
	{regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s?(?:usdt|tether)\b`), "USDT"},
	{regexp.MustCompile(`(?i)(\d[\d.,]*)\s?(?:руб|rub\b)`), "RUB"},
}

// ExtractPayment returns the earliest payment offer in text, or nil. It
// understands "€1500", "1500 EUR", "$300", "0.05 BTC" and European
// thousands separators ("1.500 euro").
func ExtractPayment(text string) *model.Payment {
	var (
		best    *model.Payment
		bestPos = -1
	)
	for _, p := range paymentPatterns {
		loc := p.re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		if bestPos >= 0 && loc[0] >= bestPos {
			continue
		}
		amount, ok := parseAmount(text[loc[2]:loc[3]])
		if !ok {
			continue
		}
		best = &model.Payment{Amount: amount, Currency: p.currency}
		bestPos = loc[0]
	}
	return best
}

// parseAmount reads "1500", "1.500", "1,500.50", "1.500,50" and "0.05".
// A lone separator followed by exactly three digits is a thousands
// separator unless the integer part is zero.
func parseAmount(s string) (float64, bool) {
	s = strings.TrimRight(s, ".,")
	if s == "" {
		return 0, false
	}
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		idx := lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		thousands := len(s)-idx-1 == 3 && !strings.HasPrefix(s, "0"+sep)
		if thousands || strings.Count(s, sep) > 1 {
			s = strings.ReplaceAll(s, sep, "")
		} else {
			s = strings.Replace(s, sep, ".", 1)
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
