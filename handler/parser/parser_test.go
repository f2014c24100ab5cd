package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yakimka/feed-watchdog/feed"
	"github.com/yakimka/feed-watchdog/handler"
)

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Example feed</title>
    <item>
      <title>Newest post</title>
      <link>https://example.com/posts/2</link>
      <guid>https://example.com/posts/2</guid>
      <category>go</category>
      <category>Web Dev</category>
    </item>
    <item>
      <title>Older post</title>
      <link>https://example.com/posts/1</link>
    </item>
  </channel>
</rss>`

func TestRSSParse(t *testing.T) {
	posts, err := NewRSS().Parse(context.Background(), sampleRSS)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	first := posts[0].(*RSSPost)
	assert.Equal(t, "https://example.com/posts/2", first.PostID)
	assert.Equal(t, "Newest post", first.Title)
	assert.Equal(t, []string{"go", "Web Dev"}, first.PostTags)

	// GUID-less entries fall back to the link
	assert.Equal(t, "https://example.com/posts/1", posts[1].ID())
}

func TestRSSParseEmptyInput(t *testing.T) {
	posts, err := NewRSS().Parse(context.Background(), "  \n")
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestRSSParseGarbage(t *testing.T) {
	_, err := NewRSS().Parse(context.Background(), "not a feed at all")
	assert.Error(t, err)
}

func TestRSSTemplateKwargs(t *testing.T) {
	post := &RSSPost{
		PostID:   "example.com/posts/2",
		Title:    "Newest post",
		URL:      "https://example.com/posts/2",
		PostTags: []string{"go", "Web Dev"},
	}
	post.SetSourceTags([]string{"news"})

	kwargs := post.TemplateKwargs()
	assert.Equal(t, "go; Web Dev", kwargs["post_tags"])
	assert.Equal(t, "#go #web_dev", kwargs["post_hash_tags"])
	assert.Equal(t, "news", kwargs["source_tags"])
	assert.Equal(t, "#news", kwargs["source_hash_tags"])
}

const sampleListing = `{
  "data": {
    "children": [
      {"data": {"id": "abc1", "title": "First", "url": "https://example.com/a",
                "permalink": "/r/golang/comments/abc1/first/", "score": 42}},
      {"data": {"id": "abc2", "title": "Second", "url": "https://example.com/b",
                "permalink": "/r/golang/comments/abc2/second/", "score": 7}}
    ]
  }
}`

func TestRedditParse(t *testing.T) {
	posts, err := (&Reddit{}).Parse(context.Background(), sampleListing)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	first := posts[0].(*RedditPost)
	assert.Equal(t, "abc1", first.PostID)
	assert.Equal(t, "https://reddit.com/r/golang/comments/abc1/first/", first.Comments)
	assert.Equal(t, 42, first.Score)

	kwargs := first.TemplateKwargs()
	assert.Equal(t, "42", kwargs["score"])
}

func TestRedditParseGarbage(t *testing.T) {
	_, err := (&Reddit{}).Parse(context.Background(), "{broken")
	assert.Error(t, err)
}

const samplePage = `<html><body>
  <div class="posts">
    <a class="post" href="/articles/2">Second article</a>
    <a class="post" href="/articles/1">First article</a>
    <a class="other" href="/about">About</a>
    <a class="post">no href</a>
  </div>
</body></html>`

func TestHTMLParse(t *testing.T) {
	parser := NewHTML("a.post", "https://example.com")

	posts, err := parser.Parse(context.Background(), samplePage)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	first := posts[0].(*HTMLPost)
	assert.Equal(t, "https://example.com/articles/2", first.URL)
	assert.Equal(t, "https://example.com/articles/2", first.PostID)
	assert.Equal(t, "Second article", first.Title)
}

func TestHTMLParseWithoutBaseURL(t *testing.T) {
	posts, err := NewHTML("a.post", "").Parse(context.Background(), samplePage)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "/articles/2", posts[0].ID())
}

func TestPostsAreFieldEditable(t *testing.T) {
	for _, post := range []feed.Post{&RSSPost{URL: "http://a"}, &RedditPost{URL: "http://a"}, &HTMLPost{URL: "http://a"}} {
		editor, ok := post.(feed.FieldEditor)
		require.True(t, ok)

		require.True(t, editor.SetField("url", "https://a"))
		value, ok := editor.Field("url")
		require.True(t, ok)
		assert.Equal(t, "https://a", value)

		_, ok = editor.Field("nope")
		assert.False(t, ok)
	}
}

func TestRegisterResolvesThroughRegistry(t *testing.T) {
	registry := handler.NewRegistry(nil)
	require.NoError(t, Register(registry))

	parser, err := registry.GetParser("rss", nil)
	require.NoError(t, err)

	posts, err := parser.Parse(context.Background(), sampleRSS)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}
