package xpost

import (
	"context"
	"errors"
	"fmt"

	"github.com/blacktop/crosspost/internal/logutil"
	"golang.org/x/sync/errgroup"
)

// Target is either an enabled Platform or a platform disabled for a reason.
type Target struct {
	name     string
	platform Platform
	reason   error
}

// Enabled wraps a configured platform.
func Enabled(p Platform) Target {
	return Target{name: p.Name(), platform: p}
}

// Disabled records a platform that must be skipped, usually because of a
// MissingEnvError.
func Disabled(name string, reason error) Target {
	return Target{name: name, reason: reason}
}

// Name identifies the target.
func (t Target) Name() string { return t.name }

// Platform returns the configured platform, or false when disabled.
func (t Target) Platform() (Platform, bool) {
	return t.platform, t.platform != nil
}

// Reason explains why a target is disabled.
func (t Target) Reason() error { return t.reason }

// Status is the outcome of sending a post to one platform.
type Status int

const (
	StatusSkipped Status = iota
	StatusPosted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusPosted:
		return "posted"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the per-platform outcome of Send.
type Result struct {
	Platform  string
	Status    Status
	Published PublishResult
	Err       error
}

// Results holds one Result per target, in target order.
type Results []Result

// Err joins the failures, or returns nil when no platform failed.
func (r Results) Err() error {
	var errs []error
	for _, res := range r {
		if res.Status == StatusFailed {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}

// CrossPoster fans a Post out to every target.
type CrossPoster struct {
	targets []Target
}

// New returns a CrossPoster that tries targets in the given order.
func New(targets ...Target) *CrossPoster {
	return &CrossPoster{targets: append([]Target(nil), targets...)}
}

// Targets returns the configured targets in order.
func (c *CrossPoster) Targets() []Target {
	return append([]Target(nil), c.targets...)
}

// Send publishes post to each target in turn. A failing or disabled platform
// is logged and recorded in the Results; it never stops the others.
func (c *CrossPoster) Send(ctx context.Context, post Post) Results {
	results := make(Results, 0, len(c.targets))
	for _, target := range c.targets {
		platform, ok := target.Platform()
		if !ok {
			logutil.Warnf("not posting to %s: %v", target.name, target.reason)
			results = append(results, Result{Platform: target.name, Status: StatusSkipped, Err: target.reason})
			continue
		}

		published, err := publish(ctx, platform, post)
		if err != nil {
			logutil.Errorf("posting to %s failed: %v", target.name, err)
			results = append(results, Result{Platform: target.name, Status: StatusFailed, Err: err})
			continue
		}

		logutil.Infof("posted to %s: id=%s url=%s", target.name, published.ID, published.URL)
		results = append(results, Result{Platform: target.name, Status: StatusPosted, Published: published})
	}
	return results
}

func publish(ctx context.Context, p Platform, post Post) (PublishResult, error) {
	refs, err := uploadAll(ctx, p, post.media)
	if err != nil {
		return PublishResult{}, err
	}

	logutil.Debugf("publishing to %s: media_count=%d", p.Name(), len(refs))
	return p.PublishStatus(ctx, post.text, refs)
}

// uploadAll uploads every item concurrently. refs[i] always belongs to
// media[i], whatever order the uploads finish in.
func uploadAll(ctx context.Context, p Platform, media []MediaItem) ([]MediaRef, error) {
	refs := make([]MediaRef, len(media))
	if len(media) == 0 {
		return refs, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range media {
		g.Go(func() error {
			ref, err := p.UploadMedia(gctx, item)
			if err != nil {
				return err
			}
			logutil.Debugf("%s media uploaded: index=%d ref=%s", p.Name(), i, ref)
			refs[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}
