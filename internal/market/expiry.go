package market

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MARKET EXPIRY DETECTION
// ═══════════════════════════════════════════════════════════════════════════════
//
// Short-window Polymarket titles encode their close time, e.g.
//   "Bitcoin Up or Down - June 5, 3PM-4PM ET"
//   "Ethereum above $4000 on June 5, 11:30AM ET"
// The second time of a range (or the single time) is the market close,
// US Eastern, current calendar year. Titles without a parseable time are
// treated as open: absence of a timestamp must never block a live trade.
//
// ═══════════════════════════════════════════════════════════════════════════════

// settlementBuffer absorbs resolution lag after the nominal close.
const settlementBuffer = 5 * time.Minute

var (
	rangeRe  = regexp.MustCompile(`(?i)\b([A-Za-z]+)\s+(\d{1,2}),\s*\d{1,2}(?::\d{2})?\s*(?:AM|PM)\s*-\s*(\d{1,2})(?::(\d{2}))?\s*(AM|PM)\s*ET\b`)
	singleRe = regexp.MustCompile(`(?i)\b([A-Za-z]+)\s+(\d{1,2}),\s*(\d{1,2})(?::(\d{2}))?\s*(AM|PM)\s*ET\b`)

	months = map[string]time.Month{
		"january": time.January, "february": time.February, "march": time.March,
		"april": time.April, "may": time.May, "june": time.June,
		"july": time.July, "august": time.August, "september": time.September,
		"october": time.October, "november": time.November, "december": time.December,
	}

	eastern = loadEastern()
)

func loadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// No tzdata: approximate with fixed EST. Worst case a market is
		// considered open an hour longer, which the fail-open contract allows.
		return time.FixedZone("ET", -5*3600)
	}
	return loc
}

// CloseTime parses the market close out of a title. The returned bool is
// false when the title carries no recognizable time.
func CloseTime(title string, now time.Time) (time.Time, bool) {
	if m := rangeRe.FindStringSubmatch(title); m != nil {
		return buildTime(m[1], m[2], m[3], m[4], m[5], now)
	}
	if m := singleRe.FindStringSubmatch(title); m != nil {
		return buildTime(m[1], m[2], m[3], m[4], m[5], now)
	}
	return time.Time{}, false
}

// IsExpired reports whether trading in the titled market should be
// considered closed: past the parsed close plus the settlement buffer.
// Unparseable titles are never expired.
func IsExpired(title string, now time.Time) bool {
	closeAt, ok := CloseTime(title, now)
	if !ok {
		return false
	}
	return now.After(closeAt.Add(settlementBuffer))
}

func buildTime(monthStr, dayStr, hourStr, minStr, meridiem string, now time.Time) (time.Time, bool) {
	month, ok := months[strings.ToLower(monthStr)]
	if !ok {
		return time.Time{}, false
	}

	day, _ := strconv.Atoi(dayStr)
	hour, _ := strconv.Atoi(hourStr)
	minute := 0
	if minStr != "" {
		minute, _ = strconv.Atoi(minStr)
	}
	if day < 1 || day > 31 || hour < 1 || hour > 12 {
		return time.Time{}, false
	}

	hour = hour % 12
	if strings.EqualFold(meridiem, "PM") {
		hour += 12
	}

	closeAt := time.Date(now.Year(), month, day, hour, minute, 0, 0, eastern)
	// 12AM names the midnight that ends the titled day, not the one that
	// began it: an "11PM-12AM" window closes at 00:00 the next day.
	if hour == 0 {
		closeAt = closeAt.AddDate(0, 0, 1)
	}
	return closeAt, true
}
