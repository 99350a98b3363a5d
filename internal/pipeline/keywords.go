package pipeline

import "strings"

// keywordWindow bounds how much of a page the keyword filter reads.
const keywordWindow = 5000

const minKeywordScore = 2

var (
	positiveKeywords = []string{
		"suit", "fato", "jacket", "blazer", "tailor", "sartorial",
		"bespoke", "abito", "traje", "costume", "menswear", "moda",
	}
	coreKeywords = []string{"suit", "tailor", "bespoke", "sartorial"}
	// listingURLWords mark directories, reviews and editorial pages.
	listingURLWords = []string{
		"yelp", "tripadvisor", "directory", "pages", "list",
		"blog", "news", "guide", "ranking",
	}
)

// isListingURL reports whether url looks like a directory or article
// rather than a brand site.
func isListingURL(url string) bool {
	u := strings.ToLower(url)
	for _, w := range listingURLWords {
		if strings.Contains(u, w) {
			return true
		}
	}
	return false
}

// keywordScore counts the tailoring keywords in the head of content, with
// a bonus when any core tailoring word appears.
func keywordScore(content string) int {
	txt := content
	if len(txt) > keywordWindow {
		txt = txt[:keywordWindow]
	}
	txt = strings.ToLower(txt)

	score := 0
	for _, kw := range positiveKeywords {
		if strings.Contains(txt, kw) {
			score++
		}
	}
	for _, kw := range coreKeywords {
		if strings.Contains(txt, kw) {
			score += 3
			break
		}
	}
	return score
}
