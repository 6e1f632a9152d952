package validate

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TwoDigitYearPivot splits two-digit years: values below it are 20xx, the rest 19xx.
const TwoDigitYearPivot = 50

const monthPattern = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

const ordinalSuffix = `(?:st|nd|rd|th)?`

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// dateParts is a date before calendar validation. Year may still be two digits.
type dateParts struct {
	year, month, day int
	shortYear        bool
}

// datePattern recognizes one date shape and maps its submatches to dateParts.
type datePattern struct {
	name  string
	re    *regexp.Regexp
	parts func(m []string) (dateParts, bool)
}

var datePatterns = []datePattern{
	{
		name: "iso",
		re:   regexp.MustCompile(`(?i)\b(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})\b`),
		parts: func(m []string) (dateParts, bool) {
			return dateParts{year: atoi(m[1]), month: atoi(m[2]), day: atoi(m[3])}, true
		},
	},
	{
		name: "numeric",
		re:   regexp.MustCompile(`(?i)\b(\d{1,2})[-/.](\d{1,2})[-/.](\d{4}|\d{2})\b`),
		parts: func(m []string) (dateParts, bool) {
			first, second := atoi(m[1]), atoi(m[2])
			p := dateParts{year: atoi(m[3]), month: first, day: second, shortYear: len(m[3]) == 2}
			// Month-first unless only the day-first reading is in range.
			if first > 12 && second <= 12 {
				p.month, p.day = second, first
			}
			return p, true
		},
	},
	{
		name: "year-compact",
		re:   regexp.MustCompile(`(?i)\b(\d{4})\s+(\d{2})(\d{2})\b`),
		parts: func(m []string) (dateParts, bool) {
			return dateParts{year: atoi(m[1]), month: atoi(m[2]), day: atoi(m[3])}, true
		},
	},
	{
		name: "month-day-year",
		re:   regexp.MustCompile(`(?i)\b` + monthPattern + `\.?\s+(\d{1,2})` + ordinalSuffix + `,?\s+(\d{4}|\d{2})\b`),
		parts: func(m []string) (dateParts, bool) {
			return dateParts{year: atoi(m[3]), month: monthNumber(m[1]), day: atoi(m[2]), shortYear: len(m[3]) == 2}, true
		},
	},
	{
		name: "day-month-year",
		re:   regexp.MustCompile(`(?i)\b(\d{1,2})` + ordinalSuffix + `\s+(?:of\s+)?` + monthPattern + `\.?,?\s+(\d{4})\b`),
		parts: func(m []string) (dateParts, bool) {
			return dateParts{year: atoi(m[3]), month: monthNumber(m[2]), day: atoi(m[1])}, true
		},
	},
	{
		name: "year-month-day",
		re:   regexp.MustCompile(`(?i)\b(\d{4}),?\s+` + monthPattern + `\.?\s+(\d{1,2})` + ordinalSuffix + `\b`),
		parts: func(m []string) (dateParts, bool) {
			return dateParts{year: atoi(m[1]), month: monthNumber(m[2]), day: atoi(m[3])}, true
		},
	},
}

var monthWord = regexp.MustCompile(`(?i)^` + monthPattern + `\.?,?$`)

// findDate returns the first date-shaped substring of s whose month and day are in
// range. Calendar validity (e.g. Feb 30) is checked later by toDate.
func findDate(s string) (raw string, p dateParts, ok bool) {
	bestStart := -1
	for _, dp := range datePatterns {
		for _, loc := range dp.re.FindAllStringSubmatchIndex(s, -1) {
			if bestStart >= 0 && loc[0] >= bestStart {
				break
			}
			m := submatches(s, loc)
			cand, good := dp.parts(m)
			if !good || !inRange(cand) {
				continue
			}
			bestStart = loc[0]
			raw, p, ok = s[loc[0]:loc[1]], cand, true
			break
		}
	}
	return raw, p, ok
}

// exactDate reports whether the whole of s (trimmed) is a single in-range date.
func exactDate(s string) (dateParts, bool) {
	s = strings.Trim(strings.TrimSpace(s), ",;")
	raw, p, ok := findDate(s)
	if !ok || raw != s {
		return dateParts{}, false
	}
	return p, true
}

// toDate expands two-digit years and rejects dates that do not exist on the calendar.
func toDate(p dateParts) (time.Time, bool) {
	year := p.year
	if p.shortYear {
		if year < TwoDigitYearPivot {
			year += 2000
		} else {
			year += 1900
		}
	}
	t := time.Date(year, time.Month(p.month), p.day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != p.month || t.Day() != p.day {
		return time.Time{}, false
	}
	return t, true
}

func inRange(p dateParts) bool {
	return p.month >= 1 && p.month <= 12 && p.day >= 1 && p.day <= 31
}

func isMonthWord(tok string) bool {
	return monthWord.MatchString(tok)
}

func monthNumber(name string) int {
	name = strings.ToLower(name)
	if len(name) < 3 {
		return 0
	}
	return int(monthsByPrefix[name[:3]])
}

func submatches(s string, loc []int) []string {
	m := make([]string, len(loc)/2)
	for i := range m {
		if loc[2*i] >= 0 {
			m[i] = s[loc[2*i]:loc[2*i+1]]
		}
	}
	return m
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}
	return n
}
