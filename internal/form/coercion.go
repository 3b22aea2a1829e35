package form

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"negopro-questionnaire/internal/domain"
)

// CoercionRule tags questions whose id matches Pattern.
type CoercionRule struct {
	Pattern *regexp.Regexp
	Tag     string
}

// DefaultCoercionRules carries the naming convention used by questionnaire
// documents: money and percentage ids become numbers, rating ids integers.
func DefaultCoercionRules() []CoercionRule {
	return []CoercionRule{
		{Pattern: regexp.MustCompile(`(?i)salary|bonus|percent`), Tag: domain.CoerceCurrency},
		{Pattern: regexp.MustCompile(`(?i)rating`), Tag: domain.CoerceRating},
	}
}

// tagFor resolves a question's coercion tag: an explicit coerce wins over the id convention.
func tagFor(rules []CoercionRule, q domain.Question) string {
	if q.Coerce != "" {
		return strings.ToLower(q.Coerce)
	}
	for _, rule := range rules {
		if rule.Pattern.MatchString(q.ID) {
			return rule.Tag
		}
	}
	return domain.CoerceNone
}

var amountNoise = strings.NewReplacer("£", "", "$", "", "€", "", "¥", "", ",", "", "_", "", " ", "", "\t", "", "\u00a0", "")

var plainDecimal = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// NormalizeAmount turns "£78,000", "78k" or "15%" into a number. Only plain
// decimals count: "inf", "NaN" or "0x10" keep the raw string, as does
// anything else that does not parse to a finite number.
func NormalizeAmount(raw string) domain.AnswerValue {
	cleaned := amountNoise.Replace(strings.TrimSpace(raw))
	cleaned = strings.TrimSuffix(cleaned, "%")
	multiplier := 1.0
	if n := len(cleaned); n > 0 && (cleaned[n-1] == 'k' || cleaned[n-1] == 'K') {
		cleaned = cleaned[:n-1]
		multiplier = 1000
	}
	if !plainDecimal.MatchString(cleaned) {
		return domain.Text(raw)
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(n*multiplier, 0) {
		return domain.Text(raw)
	}
	return domain.Number(n * multiplier)
}

// ParseRating parses an integer rating. Out-of-range values pass through
// unchanged; unparseable input is kept as text.
func ParseRating(raw string) domain.AnswerValue {
	trimmed := strings.TrimSpace(raw)
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return domain.Text(raw)
	}
	return domain.Number(float64(n))
}

func coerce(tag, raw string) domain.AnswerValue {
	switch tag {
	case domain.CoerceCurrency, domain.CoercePercent:
		return NormalizeAmount(raw)
	case domain.CoerceRating:
		return ParseRating(raw)
	}
	return domain.Text(raw)
}
