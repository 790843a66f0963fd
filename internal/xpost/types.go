package xpost

import (
	"context"
	"strings"
)

// MediaItem is one attachment of a Post.
type MediaItem struct {
	Data     []byte
	MIMEType string
	AltText  string
}

// Post is the content shared across all platforms. It is immutable once built.
type Post struct {
	text  string
	media []MediaItem
}

// NewPost validates and builds a Post.
func NewPost(text string, media ...MediaItem) (Post, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(media) == 0 {
		return Post{}, ValidationError{Provider: "post", Reason: "post needs text or media"}
	}
	items := make([]MediaItem, len(media))
	for i, m := range media {
		if len(m.Data) == 0 {
			return Post{}, ValidationError{Provider: "post", Reason: "media item is empty"}
		}
		m.Data = append([]byte(nil), m.Data...)
		items[i] = m
	}
	return Post{text: text, media: items}, nil
}

// Text returns the status text.
func (p Post) Text() string { return p.text }

// Media returns a deep copy of the attachments in authored order.
func (p Post) Media() []MediaItem {
	items := make([]MediaItem, len(p.media))
	for i, m := range p.media {
		m.Data = append([]byte(nil), m.Data...)
		items[i] = m
	}
	return items
}

// MediaRef is a platform-assigned media identifier, meaningful only to the
// platform that issued it.
type MediaRef string

// PublishResult describes a published status.
type PublishResult struct {
	ID  string
	URL string
}

// Platform abstracts a social network that can host media and publish statuses.
type Platform interface {
	Name() string
	UploadMedia(ctx context.Context, item MediaItem) (MediaRef, error)
	PublishStatus(ctx context.Context, text string, refs []MediaRef) (PublishResult, error)
}

// Verifier is implemented by platforms that can check their credentials.
type Verifier interface {
	Verify(ctx context.Context) (string, error)
}
