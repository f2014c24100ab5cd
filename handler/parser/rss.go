package parser

import (
	"context"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/yakimka/feed-watchdog/errors"
	"github.com/yakimka/feed-watchdog/feed"
	"github.com/yakimka/feed-watchdog/handler"
)

// RSSPost is one entry of an RSS or Atom feed
type RSSPost struct {
	PostID     string
	Title      string
	URL        string
	PostTags   []string
	sourceTags []string
}

var _ feed.Post = (*RSSPost)(nil)
var _ feed.FieldEditor = (*RSSPost)(nil)

// ID returns the post identifier
func (p *RSSPost) ID() string { return p.PostID }

// SetID replaces the post identifier
func (p *RSSPost) SetID(id string) { p.PostID = id }

// SourceTags returns the injected source tags
func (p *RSSPost) SourceTags() []string { return p.sourceTags }

// SetSourceTags injects the source tags
func (p *RSSPost) SetSourceTags(tags []string) { p.sourceTags = tags }

// TemplateKwargs returns the substitution map for message templates
func (p *RSSPost) TemplateKwargs() map[string]string {
	return map[string]string{
		"post_id":          p.PostID,
		"title":            p.Title,
		"url":              p.URL,
		"post_tags":        strings.Join(p.PostTags, "; "),
		"source_tags":      strings.Join(p.sourceTags, "; "),
		"post_hash_tags":   strings.Join(feed.MakeHashTags(p.PostTags), " "),
		"source_hash_tags": strings.Join(feed.MakeHashTags(p.sourceTags), " "),
	}
}

// Field returns a named string field
func (p *RSSPost) Field(name string) (string, bool) {
	switch name {
	case "post_id":
		return p.PostID, true
	case "title":
		return p.Title, true
	case "url":
		return p.URL, true
	}
	return "", false
}

// SetField replaces a named string field
func (p *RSSPost) SetField(name, value string) bool {
	switch name {
	case "post_id":
		p.PostID = value
	case "title":
		p.Title = value
	case "url":
		p.URL = value
	default:
		return false
	}
	return true
}

// RSS parses RSS and Atom feeds. Entries without a GUID fall back to
// their link as post id.
type RSS struct {
	parser *gofeed.Parser
}

var _ handler.Parser = (*RSS)(nil)

func rssRegistration() handler.Registration {
	return handler.Registration{
		Kind:        handler.KindParser,
		Name:        "rss",
		Description: "Parse RSS and Atom feeds",
		Factory: func(string, map[string]any, map[string]any) (any, error) {
			return NewRSS(), nil
		},
	}
}

// NewRSS creates an RSS parser
func NewRSS() *RSS {
	return &RSS{parser: gofeed.NewParser()}
}

// Parse turns feed XML into posts in document order
func (r *RSS) Parse(_ context.Context, text string) ([]feed.Post, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	parsed, err := r.parser.ParseString(text)
	if err != nil {
		return nil, errors.WrapInvalid(err, "RSSParser", "Parse", "feed decode")
	}

	posts := make([]feed.Post, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		id := item.GUID
		if id == "" {
			id = item.Link
		}
		posts = append(posts, &RSSPost{
			PostID:   id,
			Title:    item.Title,
			URL:      item.Link,
			PostTags: item.Categories,
		})
	}
	return posts, nil
}
