package parser

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/yakimka/feed-watchdog/errors"
	"github.com/yakimka/feed-watchdog/feed"
	"github.com/yakimka/feed-watchdog/handler"
)

// RedditPost is one entry of a subreddit listing
type RedditPost struct {
	PostID     string
	Title      string
	URL        string
	Comments   string
	Score      int
	sourceTags []string
}

var _ feed.Post = (*RedditPost)(nil)
var _ feed.FieldEditor = (*RedditPost)(nil)

// ID returns the post identifier
func (p *RedditPost) ID() string { return p.PostID }

// SetID replaces the post identifier
func (p *RedditPost) SetID(id string) { p.PostID = id }

// SourceTags returns the injected source tags
func (p *RedditPost) SourceTags() []string { return p.sourceTags }

// SetSourceTags injects the source tags
func (p *RedditPost) SetSourceTags(tags []string) { p.sourceTags = tags }

// TemplateKwargs returns the substitution map for message templates
func (p *RedditPost) TemplateKwargs() map[string]string {
	return map[string]string{
		"post_id":          p.PostID,
		"title":            p.Title,
		"url":              p.URL,
		"comments":         p.Comments,
		"score":            strconv.Itoa(p.Score),
		"source_tags":      strings.Join(p.sourceTags, "; "),
		"source_hash_tags": strings.Join(feed.MakeHashTags(p.sourceTags), " "),
	}
}

// Field returns a named string field
func (p *RedditPost) Field(name string) (string, bool) {
	switch name {
	case "post_id":
		return p.PostID, true
	case "title":
		return p.Title, true
	case "url":
		return p.URL, true
	case "comments":
		return p.Comments, true
	}
	return "", false
}

// SetField replaces a named string field
func (p *RedditPost) SetField(name, value string) bool {
	switch name {
	case "post_id":
		p.PostID = value
	case "title":
		p.Title = value
	case "url":
		p.URL = value
	case "comments":
		p.Comments = value
	default:
		return false
	}
	return true
}

// redditListing mirrors the subset of the reddit listing JSON the parser
// reads
type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID        string `json:"id"`
				Title     string `json:"title"`
				URL       string `json:"url"`
				Permalink string `json:"permalink"`
				Score     int    `json:"score"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Reddit parses subreddit listing JSON as served by reddit's .json
// endpoints
type Reddit struct{}

var _ handler.Parser = (*Reddit)(nil)

func redditRegistration() handler.Registration {
	return handler.Registration{
		Kind:        handler.KindParser,
		Name:        "reddit_json",
		Description: "Parse a reddit listing JSON document",
		Factory: func(string, map[string]any, map[string]any) (any, error) {
			return &Reddit{}, nil
		},
	}
}

// Parse turns listing JSON into posts in listing order
func (r *Reddit) Parse(_ context.Context, text string) ([]feed.Post, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var listing redditListing
	if err := json.Unmarshal([]byte(text), &listing); err != nil {
		return nil, errors.WrapInvalid(err, "RedditParser", "Parse", "listing decode")
	}

	posts := make([]feed.Post, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		posts = append(posts, &RedditPost{
			PostID:   child.Data.ID,
			Title:    child.Data.Title,
			URL:      child.Data.URL,
			Comments: "https://reddit.com" + child.Data.Permalink,
			Score:    child.Data.Score,
		})
	}
	return posts, nil
}
