// Package parser converts a prediction market's free-text question into a
// structured CryptoClaim, or rejects it. The algorithm is kept table-driven
// (ordered lists of pattern->capability pairs) rather than a hand-rolled
// chain of if-statements, so the disqualifying patterns, symbol detection,
// and date formats are data the table owns, not control flow scattered
// through the function body.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Direction and BetType mirror the probability package's vocabulary; they
// are redeclared here (rather than imported) because the parser has no
// dependency on the probability engine - it only produces the inputs the
// engine later consumes.
type Direction string
type BetType string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"

	BetBinary   BetType = "binary"
	BetOneTouch BetType = "one-touch"
)

// CryptoClaim is the immutable, parsed representation of a market question.
type CryptoClaim struct {
	MarketID    string
	Question    string
	Symbol      string
	TargetPrice float64
	Expiry      time.Time
	BetType     BetType
	Direction   Direction
}

// ErrUnparseable is returned for any rejected question; per spec 4.1 every
// rejection reason collapses into this single sentinel so callers treat a
// rejected market as "not crypto" uniformly.
var ErrUnparseable = fmt.Errorf("question does not describe a crypto price target")

// disqualifyingPatterns enumerates text that, if present, disqualifies a
// question regardless of any apparent symbol/price match.
var disqualifyingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)market\s*cap`),
	regexp.MustCompile(`(?i)\bmcap\b`),
	regexp.MustCompile(`(?i)\bfdv\b`),
	regexp.MustCompile(`(?i)\btvl\b`),
	regexp.MustCompile(`(?i)dominance`),
	regexp.MustCompile(`(?i)\bfees?\b`),
	regexp.MustCompile(`(?i)\bgas\b`),
	regexp.MustCompile(`(?i)staking`),
	regexp.MustCompile(`(?i)\bstaked\b`),
	regexp.MustCompile(`(?i)\bwrapped\b`),
	regexp.MustCompile(`(?i)airdrop`),
	regexp.MustCompile(`(?i)\betf\b`),
	regexp.MustCompile(`(?i)halving`),
	regexp.MustCompile(`(?i)megaeth`),
}

// symbolPatterns is the ordered (regex, symbol) table. Word-boundary
// anchors and ordering matter: MegaETH is excluded above (rule 1) before
// this table would otherwise match "ETH" inside it.
var symbolPatterns = []struct {
	pattern *regexp.Regexp
	symbol  string
}{
	{regexp.MustCompile(`(?i)\bbitcoin\b|\bbtc\b`), "BTC"},
	{regexp.MustCompile(`(?i)\bethereum\b|\beth\b`), "ETH"},
	{regexp.MustCompile(`(?i)\bsolana\b|\bsol\b`), "SOL"},
	{regexp.MustCompile(`(?i)\bxrp\b|\bripple\b`), "XRP"},
	{regexp.MustCompile(`(?i)\bdogecoin\b|\bdoge\b`), "DOGE"},
	{regexp.MustCompile(`(?i)\bcardano\b|\bada\b`), "ADA"},
}

var priceIntentKeywords = []string{
	"price", "hit", "reach", "above", "below", "exceed", "surpass", "over", "under", "dip", "$",
}

// targetPricePatterns are tried in order; group 1 is the numeric literal.
var targetPricePatterns = []struct {
	pattern    *regexp.Regexp
	multiplier float64
}{
	{regexp.MustCompile(`(?i)\$\s*([\d,]+(?:\.\d+)?)\s*k\b`), 1000},
	{regexp.MustCompile(`(?i)([\d,]+(?:\.\d+)?)\s*thousand\b`), 1000},
	{regexp.MustCompile(`\$\s*([\d,]+(?:\.\d+)?)`), 1},
	{regexp.MustCompile(`(?i)([\d,]+(?:\.\d+)?)\s*(?:dollars|usd)\b`), 1},
}

var oneTouchKeywords = []string{"hit", "reach", "touch", "surpass", "exceed", "dip", "drop", "crash"}

var belowKeywords = []string{"below", "under", "less than", "fall", "dip", "drop", "crash", "sink", "plunge", "decline"}

// expiryPatterns is the ordered list of date formats tried against the
// question text. Each entry knows how to turn its regex match into a UTC
// instant.
var expiryPatterns = []struct {
	pattern *regexp.Regexp
	parse   func(match []string) (time.Time, bool)
}{
	{
		// "December 31, 2025"
		regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{1,2}),?\s+(\d{4})\b`),
		func(m []string) (time.Time, bool) {
			return parseMonthDayYear(m[1], m[2], m[3])
		},
	},
	{
		// "31 December 2025"
		regexp.MustCompile(`(?i)\b(\d{1,2})\s+(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{4})\b`),
		func(m []string) (time.Time, bool) {
			return parseMonthDayYear(m[2], m[1], m[3])
		},
	},
	{
		// "12/31/2025"
		regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`),
		func(m []string) (time.Time, bool) {
			month, err1 := strconv.Atoi(m[1])
			day, err2 := strconv.Atoi(m[2])
			year, err3 := strconv.Atoi(m[3])
			if err1 != nil || err2 != nil || err3 != nil {
				return time.Time{}, false
			}
			return endOfDayUTC(year, time.Month(month), day), true
		},
	},
	{
		// "by end of 2025" / "by 2025"
		regexp.MustCompile(`(?i)\bby\s+(?:end of\s+)?(\d{4})\b`),
		func(m []string) (time.Time, bool) {
			year, err := strconv.Atoi(m[1])
			if err != nil {
				return time.Time{}, false
			}
			return endOfYearUTC(year), true
		},
	},
	{
		// "before 2026" -> effective year is YYYY-1
		regexp.MustCompile(`(?i)\bbefore\s+(\d{4})\b`),
		func(m []string) (time.Time, bool) {
			year, err := strconv.Atoi(m[1])
			if err != nil {
				return time.Time{}, false
			}
			return endOfYearUTC(year - 1), true
		},
	},
	{
		// "in 2026"
		regexp.MustCompile(`(?i)\bin\s+(\d{4})\b`),
		func(m []string) (time.Time, bool) {
			year, err := strconv.Atoi(m[1])
			if err != nil {
				return time.Time{}, false
			}
			return endOfYearUTC(year), true
		},
	},
}

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

func parseMonthDayYear(monthStr, dayStr, yearStr string) (time.Time, bool) {
	month, ok := monthNames[strings.ToLower(monthStr)]
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, false
	}
	return endOfDayUTC(year, month, day), true
}

func endOfDayUTC(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 23, 59, 59, 0, time.UTC)
}

func endOfYearUTC(year int) time.Time {
	return time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)
}

// Parse converts a question (with an optional market end-date hint, used
// only when no expiry phrase is found in the text) into a CryptoClaim.
func Parse(marketID, question string, endDateHint *time.Time, now time.Time) (CryptoClaim, error) {
	for _, dq := range disqualifyingPatterns {
		if dq.MatchString(question) {
			return CryptoClaim{}, ErrUnparseable
		}
	}

	symbol, err := detectSymbol(question)
	if err != nil {
		return CryptoClaim{}, err
	}

	if !hasPriceIntent(question) {
		return CryptoClaim{}, ErrUnparseable
	}

	target, err := extractTargetPrice(question)
	if err != nil {
		return CryptoClaim{}, err
	}

	bet := classifyBetType(question)
	direction := classifyDirection(question)

	expiry, ok := extractExpiry(question)
	if !ok {
		if endDateHint == nil {
			return CryptoClaim{}, ErrUnparseable
		}
		expiry = *endDateHint
	}

	if !expiry.After(now) {
		return CryptoClaim{}, ErrUnparseable
	}

	return CryptoClaim{
		MarketID:    marketID,
		Question:    question,
		Symbol:      symbol,
		TargetPrice: target,
		Expiry:      expiry,
		BetType:     bet,
		Direction:   direction,
	}, nil
}

func detectSymbol(question string) (string, error) {
	for _, sp := range symbolPatterns {
		if sp.pattern.MatchString(question) {
			return sp.symbol, nil
		}
	}
	return "", ErrUnparseable
}

func hasPriceIntent(question string) bool {
	lower := strings.ToLower(question)
	for _, kw := range priceIntentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func extractTargetPrice(question string) (float64, error) {
	for _, tp := range targetPricePatterns {
		m := tp.pattern.FindStringSubmatch(question)
		if m == nil {
			continue
		}
		cleaned := strings.ReplaceAll(m[1], ",", "")
		value, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			continue
		}
		value *= tp.multiplier
		if value <= 0 {
			continue
		}
		return value, nil
	}
	return 0, ErrUnparseable
}

func classifyBetType(question string) BetType {
	lower := strings.ToLower(question)
	for _, kw := range oneTouchKeywords {
		if strings.Contains(lower, kw) {
			return BetOneTouch
		}
	}
	return BetBinary
}

func classifyDirection(question string) Direction {
	lower := strings.ToLower(question)
	for _, kw := range belowKeywords {
		if strings.Contains(lower, kw) {
			return DirectionBelow
		}
	}
	return DirectionAbove
}

func extractExpiry(question string) (time.Time, bool) {
	for _, ep := range expiryPatterns {
		m := ep.pattern.FindStringSubmatch(question)
		if m == nil {
			continue
		}
		if t, ok := ep.parse(m); ok {
			return t, true
		}
	}
	return time.Time{}, false
}
