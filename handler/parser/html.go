package parser

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yakimka/feed-watchdog/errors"
	"github.com/yakimka/feed-watchdog/feed"
	"github.com/yakimka/feed-watchdog/handler"
)

// HTMLPost is one link scraped from an HTML page
type HTMLPost struct {
	PostID     string
	Title      string
	URL        string
	sourceTags []string
}

var _ feed.Post = (*HTMLPost)(nil)
var _ feed.FieldEditor = (*HTMLPost)(nil)

// ID returns the post identifier
func (p *HTMLPost) ID() string { return p.PostID }

// SetID replaces the post identifier
func (p *HTMLPost) SetID(id string) { p.PostID = id }

// SourceTags returns the injected source tags
func (p *HTMLPost) SourceTags() []string { return p.sourceTags }

// SetSourceTags injects the source tags
func (p *HTMLPost) SetSourceTags(tags []string) { p.sourceTags = tags }

// TemplateKwargs returns the substitution map for message templates
func (p *HTMLPost) TemplateKwargs() map[string]string {
	return map[string]string{
		"post_id":          p.PostID,
		"title":            p.Title,
		"url":              p.URL,
		"source_tags":      strings.Join(p.sourceTags, "; "),
		"source_hash_tags": strings.Join(feed.MakeHashTags(p.sourceTags), " "),
	}
}

// Field returns a named string field
func (p *HTMLPost) Field(name string) (string, bool) {
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
func (p *HTMLPost) SetField(name, value string) bool {
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

// HTML scrapes posts out of pages that publish no feed. A CSS selector
// picks the anchor elements; each anchor's href becomes the post url and
// id, its text the title.
type HTML struct {
	selector string
	baseURL  string
}

var _ handler.Parser = (*HTML)(nil)

func htmlRegistration() handler.Registration {
	return handler.Registration{
		Kind:        handler.KindParser,
		Name:        "html",
		Description: "Scrape posts from an HTML page with a CSS selector",
		Schema: handler.Schema{
			Title: "HTML scraper",
			Properties: map[string]handler.Property{
				"selector": {Type: "string", Title: "CSS selector", Description: "Selector matching the post anchor elements"},
				"base_url": {Type: "string", Title: "Base URL", Description: "Resolves relative hrefs", Default: ""},
			},
			Required: []string{"selector"},
		},
		Factory: func(_ string, _, options map[string]any) (any, error) {
			return NewHTML(
				handler.GetString(options, "selector", ""),
				handler.GetString(options, "base_url", ""),
			), nil
		},
	}
}

// NewHTML creates an HTML scraping parser
func NewHTML(selector, baseURL string) *HTML {
	return &HTML{selector: selector, baseURL: baseURL}
}

// Parse extracts posts from the page in document order
func (h *HTML) Parse(_ context.Context, text string) ([]feed.Post, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil, errors.WrapInvalid(err, "HTMLParser", "Parse", "document decode")
	}

	var posts []feed.Post
	doc.Find(h.selector).Each(func(_ int, sel *goquery.Selection) {
		href, exists := sel.Attr("href")
		if !exists || href == "" {
			return
		}
		link := h.resolve(href)
		posts = append(posts, &HTMLPost{
			PostID: link,
			Title:  strings.TrimSpace(sel.Text()),
			URL:    link,
		})
	})
	return posts, nil
}

func (h *HTML) resolve(href string) string {
	if h.baseURL == "" {
		return href
	}
	base, err := url.Parse(h.baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
