package notebooks

import (
	"regexp"
	"strings"
)

const fallbackSlug = "notebook"

var (
	tagPattern           = regexp.MustCompile(`#(\S+)`)
	slugSeparatorPattern = regexp.MustCompile(`[^a-z0-9]+`)
)

// ParseSearch splits a search query into free text and #tag filters.
func ParseSearch(query string) (text string, tags []string) {
	for _, match := range tagPattern.FindAllStringSubmatch(query, -1) {
		tags = append(tags, match[1])
	}
	text = strings.Join(strings.Fields(tagPattern.ReplaceAllString(query, "")), " ")
	return text, tags
}

// Slugify derives a notebook slug from its title. Every run of characters outside
// [a-z0-9] collapses into a single "-".
func Slugify(title string) string {
	slug := slugSeparatorPattern.ReplaceAllString(strings.ToLower(title), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return fallbackSlug
	}
	return slug
}
