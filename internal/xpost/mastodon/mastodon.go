package mastodon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blacktop/crosspost/internal/config"
	"github.com/blacktop/crosspost/internal/httpapi"
	"github.com/blacktop/crosspost/internal/logutil"
	"github.com/blacktop/crosspost/internal/xpost"
	"github.com/lucsky/cuid"
	mastodonapi "github.com/mattn/go-mastodon"
)

const (
	providerName = "mastodon"

	mediaFilename = "media.png"

	// public, unlisted, private (followers), direct (mentions)
	visibility = "public"
	language   = "en"
)

// Options tunes the HTTP layer.
type Options struct {
	HTTPTimeout time.Duration
	// Server overrides the "https://{host}" origin.
	Server string
}

// Client implements xpost.Platform for a Mastodon instance.
type Client struct {
	server  string
	token   string
	timeout time.Duration
	api     *httpapi.Client
}

// New constructs a Mastodon client. It returns a MissingEnvError when the
// host or token is absent.
func New(creds config.Mastodon, opts Options) (*Client, error) {
	if missing := creds.Missing(); len(missing) > 0 {
		return nil, xpost.MissingEnvError{Provider: providerName, Variables: missing}
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = config.DefaultHTTPTimeout
	}

	server := strings.TrimSuffix(opts.Server, "/")
	if server == "" {
		server = "https://" + normalizeHost(creds.Host)
	}

	api, err := httpapi.New(providerName, server+"/api/v1/", &http.Client{Timeout: opts.HTTPTimeout}, httpapi.BearerToken(creds.Token))
	if err != nil {
		return nil, fmt.Errorf("create mastodon client: %w", err)
	}

	return &Client{
		server:  server,
		token:   creds.Token,
		timeout: opts.HTTPTimeout,
		api:     api,
	}, nil
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// UploadMedia uploads one attachment with its description in a single call.
func (c *Client) UploadMedia(ctx context.Context, item xpost.MediaItem) (xpost.MediaRef, error) {
	form := &httpapi.Form{}
	form.AddFile("file", mediaFilename, item.MIMEType, item.Data)
	if alt := strings.TrimSpace(item.AltText); alt != "" {
		form.AddField("description", alt)
	}

	var attachment attachmentResponse
	if err := c.api.Do(ctx, http.MethodPost, "media", form, &attachment); err != nil {
		return "", xpost.NewUploadError(providerName, err)
	}
	if attachment.ID == "" {
		return "", xpost.NewUploadError(providerName, errors.New("upload response carried no media id"))
	}
	logutil.Infof("uploaded media: id=%s", attachment.ID)

	return xpost.MediaRef(attachment.ID), nil
}

// PublishStatus posts a public, English status referencing refs in order.
func (c *Client) PublishStatus(ctx context.Context, text string, refs []xpost.MediaRef) (xpost.PublishResult, error) {
	req := statusRequest{
		Status:     text,
		MediaIDs:   make([]string, len(refs)),
		Visibility: visibility,
		Language:   language,
	}
	for i, ref := range refs {
		req.MediaIDs[i] = string(ref)
	}

	var status statusResponse
	if err := c.api.Do(ctx, http.MethodPost, "statuses", req, &status, httpapi.WithHeader("Idempotency-Key", cuid.New())); err != nil {
		return xpost.PublishResult{}, xpost.NewPublishError(providerName, err)
	}
	if status.ID == "" {
		return xpost.PublishResult{}, xpost.NewPublishError(providerName, errors.New("status response carried no id"))
	}
	logutil.Infof("posted status: id=%s uri=%s", status.ID, status.URI)

	url := status.URL
	if url == "" {
		url = status.URI
	}
	return xpost.PublishResult{ID: string(status.ID), URL: url}, nil
}

func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimSuffix(host, "/")
}

// mastodonapi.ID accepts both string and numeric identifiers.
type attachmentResponse struct {
	ID mastodonapi.ID `json:"id"`
}

type statusRequest struct {
	Status     string   `json:"status"`
	MediaIDs   []string `json:"media_ids"`
	Visibility string   `json:"visibility"`
	Language   string   `json:"language"`
}

type statusResponse struct {
	ID  mastodonapi.ID `json:"id"`
	URI string         `json:"uri"`
	URL string         `json:"url"`
}
