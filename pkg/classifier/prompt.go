package classifier

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/latamwire/news-crawler/pkg/utils"
)

var numberPattern = regexp.MustCompile(`\d+`)

// BuildPrompt lists the section titles 1-based and asks which introduce
// article listings.
func BuildPrompt(titles []string) string {
	var b strings.Builder
	b.WriteString("Here is a list of section titles from a news website:\n")
	for i, title := range titles {
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.Join(strings.Fields(title), " "))
	}
	b.WriteString("\nWhich of these are likely to contain a list of news articles? ")
	b.WriteString("Reply with the numbers of the relevant sections, separated by commas.")
	return b.String()
}

// ParseSelection extracts 1-based section numbers from a free-text reply and
// returns them as 0-based indices in reply order. Numbers outside
// [1, sectionCount] are discarded and repeats collapse. A reply with no usable
// number is utils.ErrClassifierMalformed.
func ParseSelection(reply string, sectionCount int) ([]int, error) {
	var selected []int
	seen := make(map[int]bool)
	for _, match := range numberPattern.FindAllString(reply, -1) {
		n, err := strconv.Atoi(match)
		if err != nil || n < 1 || n > sectionCount || seen[n] {
			continue
		}
		seen[n] = true
		selected = append(selected, n-1)
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: %q", utils.ErrClassifierMalformed, truncate(reply, 120))
	}
	return selected, nil
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
