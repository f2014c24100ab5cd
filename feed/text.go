package feed

import (
	"regexp"
	"strings"
)

// placeholderPattern matches $name, ${name} and the $$ escape
var placeholderPattern = regexp.MustCompile(`\$(?:(\$)|([_a-zA-Z][_a-zA-Z0-9]*)|\{([_a-zA-Z][_a-zA-Z0-9]*)\})`)

// RenderTemplate substitutes $name and ${name} placeholders from kwargs.
// Unknown placeholders are left intact and $$ renders a literal dollar
// sign, so a half-filled template never fails a pipeline run.
func RenderTemplate(template string, kwargs map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		if groups[1] == "$" {
			return "$"
		}
		name := groups[2]
		if name == "" {
			name = groups[3]
		}
		if value, ok := kwargs[name]; ok {
			return value
		}
		return match
	})
}

var (
	nonTagRunes         = regexp.MustCompile(`[^a-zA-Zа-яА-Я0-9_ёЁіІїЇґҐєЄ]`)
	repeatedUnderscores = regexp.MustCompile(`_+`)
)

// MakeHashTags converts arbitrary tags into chat-friendly hash tags:
// non-letter runes become underscores, runs of underscores collapse, and
// the result is lowercased with a leading #.
func MakeHashTags(tags []string) []string {
	hashTags := make([]string, 0, len(tags))
	for _, tag := range tags {
		hashTag := nonTagRunes.ReplaceAllString(tag, "_")
		hashTag = repeatedUnderscores.ReplaceAllString(hashTag, "_")
		hashTags = append(hashTags, "#"+strings.ToLower(hashTag))
	}
	return hashTags
}
