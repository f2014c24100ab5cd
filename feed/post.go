// Package feed holds the post model shared by parsers, modifiers, and the
// processing pipeline, together with the text helpers used to turn posts
// into messages.
package feed

import "strings"

// Post is produced by a parser and consumed by modifiers and the pipeline.
// Each parser defines its own concrete post type with parser-specific
// fields; the pipeline only relies on this interface.
type Post interface {
	// ID returns the post identifier. Uniqueness is scoped to a stream,
	// not global.
	ID() string
	// SetID replaces the post identifier (used for normalization)
	SetID(id string)
	// SourceTags returns tags injected from the stream's source definition
	SourceTags() []string
	// SetSourceTags injects the source tags. Called by the pipeline, not
	// by parsers.
	SetSourceTags(tags []string)
	// TemplateKwargs returns the flat map used for message template
	// substitution
	TemplateKwargs() map[string]string
}

// FieldEditor is implemented by post types whose string fields can be
// read and rewritten by name. Modifiers that transform a named field
// depend on it; posts without editable fields simply don't implement it.
type FieldEditor interface {
	// Field returns the named string field, false if the post has no such
	// field
	Field(name string) (string, bool)
	// SetField replaces the named string field, false if the post has no
	// such field
	SetField(name, value string) bool
}

// NormalizePostID strips the URL scheme from a post id so the same article
// reached via http and https dedupes to one entry.
func NormalizePostID(id string) string {
	id = strings.TrimPrefix(id, "https://")
	id = strings.TrimPrefix(id, "http://")
	return id
}

// Normalize applies id normalization and source tag injection to every
// post of one pipeline run.
func Normalize(posts []Post, sourceTags []string) {
	for _, post := range posts {
		post.SetID(NormalizePostID(post.ID()))
		post.SetSourceTags(sourceTags)
	}
}
