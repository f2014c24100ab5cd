package modifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/yakimka/feed-watchdog/errors"
	"github.com/yakimka/feed-watchdog/feed"
	"github.com/yakimka/feed-watchdog/handler"
)

// ReplaceText rewrites one named field of every post, replacing all
// occurrences of a substring. Typical use is rewriting tracking URLs or
// mirror hosts before rendering.
type ReplaceText struct {
	field string
	old   string
	new   string
}

var _ handler.Modifier = (*ReplaceText)(nil)

func replaceTextRegistration() handler.Registration {
	return handler.Registration{
		Kind:        handler.KindModifier,
		Name:        "replace_text",
		Description: "Replace a substring in a post field",
		Schema: handler.Schema{
			Title: "Replace text",
			Properties: map[string]handler.Property{
				"field": {Type: "string", Title: "Field", Description: "Field name"},
				"old":   {Type: "string", Title: "Old value", Description: "Value to replace"},
				"new":   {Type: "string", Title: "New value", Description: "Value to replace with"},
			},
			Required: []string{"field", "old", "new"},
		},
		Factory: func(_ string, _, options map[string]any) (any, error) {
			return NewReplaceText(
				handler.GetString(options, "field", ""),
				handler.GetString(options, "old", ""),
				handler.GetString(options, "new", ""),
			), nil
		},
	}
}

// NewReplaceText creates a replace_text modifier
func NewReplaceText(field, old, new string) *ReplaceText {
	return &ReplaceText{field: field, old: old, new: new}
}

// Modify rewrites the configured field on every post. A post without the
// field is a stream misconfiguration and fails the run.
func (m *ReplaceText) Modify(_ context.Context, posts []feed.Post) ([]feed.Post, error) {
	for _, post := range posts {
		editor, ok := post.(feed.FieldEditor)
		if !ok {
			msg := fmt.Errorf("%w: post type %T has no editable fields", errors.ErrInvalidOptions, post)
			return nil, errors.WrapInvalid(msg, "ReplaceText", "Modify", "field access")
		}
		value, ok := editor.Field(m.field)
		if !ok {
			msg := fmt.Errorf("%w: post type %T has no field %q", errors.ErrInvalidOptions, post, m.field)
			return nil, errors.WrapInvalid(msg, "ReplaceText", "Modify", "field access")
		}
		editor.SetField(m.field, strings.ReplaceAll(value, m.old, m.new))
	}
	return posts, nil
}
