package renderer

import (
	"strconv"
	"strings"
	"time"
)

var units = [...]string{
	"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
	"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
	"seventeen", "eighteen", "nineteen",
}

var tens = [...]string{
	"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety",
}

// numberToWords spells out non-negative integers below one million; larger values
// are returned as digits.
func numberToWords(n int) string {
	switch {
	case n < 0:
		return strconv.Itoa(n)
	case n < 20:
		return units[n]
	case n < 100:
		if n%10 == 0 {
			return tens[n/10]
		}
		return tens[n/10] + "-" + units[n%10]
	case n < 1000:
		out := units[n/100] + " hundred"
		if n%100 == 0 {
			return out
		}
		return out + " " + numberToWords(n%100)
	case n < 1_000_000:
		out := numberToWords(n/1000) + " thousand"
		if n%1000 == 0 {
			return out
		}
		return out + " " + numberToWords(n%1000)
	default:
		return strconv.Itoa(n)
	}
}

// wordsWithDigits renders 12 as "twelve (12)".
func wordsWithDigits(n int) string {
	return numberToWords(n) + " (" + strconv.Itoa(n) + ")"
}

// formatTestingMonth turns "2026-02" into "FEBRUARY 2026". Anything it cannot parse is
// returned unchanged.
func formatTestingMonth(testingDate string) string {
	year, month, ok := strings.Cut(testingDate, "-")
	if !ok {
		return testingDate
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return testingDate
	}
	return strings.ToUpper(time.Month(m).String()) + " " + year
}
