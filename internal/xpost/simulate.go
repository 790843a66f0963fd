package xpost

import (
	"context"

	"github.com/blacktop/crosspost/internal/logutil"
	"github.com/lucsky/cuid"
)

type simulated struct {
	name string
}

// Simulate returns a Platform with the given name that logs what it would do
// and fabricates identifiers instead of calling the network.
func Simulate(name string) Platform {
	return &simulated{name: name}
}

func (s *simulated) Name() string { return s.name }

func (s *simulated) UploadMedia(ctx context.Context, item MediaItem) (MediaRef, error) {
	if err := ctx.Err(); err != nil {
		return "", NewUploadError(s.name, err)
	}
	ref := MediaRef(cuid.New())
	logutil.Infof("[dry-run] %s: would upload %d bytes (%s, alt=%q) as %s", s.name, len(item.Data), item.MIMEType, item.AltText, ref)
	return ref, nil
}

func (s *simulated) PublishStatus(ctx context.Context, text string, refs []MediaRef) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, NewPublishError(s.name, err)
	}
	id := cuid.New()
	logutil.Infof("[dry-run] %s: would publish %q with media %v as %s", s.name, text, refs, id)
	return PublishResult{ID: id}, nil
}
