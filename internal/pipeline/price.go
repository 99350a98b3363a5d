package pipeline

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	minSuitPrice = 150
	maxSuitPrice = 6000
)

const priceNumber = `(\d{1,3}(?:[,.]\d{3})*(?:[.,]\d{2})?)`

var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`[$€£]\s?` + priceNumber),
	regexp.MustCompile(priceNumber + `\s?[$€£]`),
	regexp.MustCompile(priceNumber + `\s?EUR`),
}

// extractPrice returns the average of the plausible suit prices quoted in
// content, or 0 when there are none.
func extractPrice(content string) float64 {
	if content == "" {
		return 0
	}
	var sum float64
	var n int
	for _, re := range pricePatterns {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			v, ok := parsePrice(m[1])
			if !ok || v <= minSuitPrice || v >= maxSuitPrice {
				continue
			}
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// parsePrice reads a number written with either comma or dot grouping.
// The last separator is a decimal mark when exactly two digits follow it,
// so "1.299,00", "1,299.00" and "899,50" all parse as expected while
// "1.299" is a thousands group.
func parsePrice(s string) (float64, bool) {
	last := strings.LastIndexAny(s, ",.")
	intPart, frac := s, ""
	if last >= 0 && len(s)-last-1 == 2 {
		intPart, frac = s[:last], s[last+1:]
	}
	intPart = strings.NewReplacer(",", "", ".", "").Replace(intPart)
	if frac != "" {
		intPart += "." + frac
	}
	v, err := strconv.ParseFloat(intPart, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
