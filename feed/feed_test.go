package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type testPost struct {
	id   string
	tags []string
}

func (p *testPost) ID() string                   { return p.id }
func (p *testPost) SetID(id string)              { p.id = id }
func (p *testPost) SourceTags() []string         { return p.tags }
func (p *testPost) SetSourceTags(tags []string)  { p.tags = tags }
func (p *testPost) TemplateKwargs() map[string]string {
	return map[string]string{"post_id": p.id}
}

func TestNormalizePostID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"https scheme", "https://a.com/1", "a.com/1"},
		{"http scheme", "http://a.com/1", "a.com/1"},
		{"no scheme", "a.com/1", "a.com/1"},
		{"scheme in the middle stays", "a.com/?next=https://b.com", "a.com/?next=https://b.com"},
		{"non-url id", "t3_abc123", "t3_abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePostID(tt.in))
		})
	}
}

func TestNormalizeInjectsTags(t *testing.T) {
	posts := []Post{
		&testPost{id: "https://a.com/1"},
		&testPost{id: "http://a.com/2"},
	}

	Normalize(posts, []string{"news", "golang"})

	assert.Equal(t, "a.com/1", posts[0].ID())
	assert.Equal(t, "a.com/2", posts[1].ID())
	assert.Equal(t, []string{"news", "golang"}, posts[0].SourceTags())
	assert.Equal(t, []string{"news", "golang"}, posts[1].SourceTags())
}

func TestRenderTemplate(t *testing.T) {
	kwargs := map[string]string{"title": "Go 1.24", "url": "go.dev/blog/go1.24"}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"plain placeholders", "$title\n$url", "Go 1.24\ngo.dev/blog/go1.24"},
		{"braced placeholder", "${title}!", "Go 1.24!"},
		{"unknown left intact", "$title by $author", "Go 1.24 by $author"},
		{"dollar escape", "$$5 for $title", "$5 for Go 1.24"},
		{"no placeholders", "static text", "static text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderTemplate(tt.template, kwargs))
		})
	}
}

func TestMakeHashTags(t *testing.T) {
	got := MakeHashTags([]string{"Go Lang", "c++", "новини_дня"})
	assert.Equal(t, []string{"#go_lang", "#c_", "#новини_дня"}, got)
}
