package twitter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blacktop/crosspost/internal/config"
	"github.com/blacktop/crosspost/internal/logutil"
	"github.com/blacktop/crosspost/internal/xpost"
	"github.com/dghubble/oauth1"
	gotwitter "github.com/g8rswimmer/go-twitter/v2"
	"github.com/michimani/gotwi"
)

const (
	providerName = "twitter"

	apiHost = "https://api.twitter.com"

	statusURLFormat = "https://x.com/i/web/status/%s"
)

// Options tunes the HTTP layer.
type Options struct {
	HTTPTimeout time.Duration
	// Transport replaces the base round tripper for every request.
	Transport http.RoundTripper
}

// Client implements xpost.Platform for X (Twitter) using OAuth 1.0a
// user-context credentials.
type Client struct {
	api    *gotwi.Client
	tweets *gotwitter.Client
}

// New constructs a Twitter client. It returns a MissingEnvError when any
// credential is absent.
func New(creds config.Twitter, opts Options) (*Client, error) {
	if missing := creds.Missing(); len(missing) > 0 {
		return nil, xpost.MissingEnvError{Provider: providerName, Variables: missing}
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = config.DefaultHTTPTimeout
	}

	api, err := gotwi.NewClient(&gotwi.NewClientInput{
		HTTPClient:           &http.Client{Timeout: opts.HTTPTimeout, Transport: opts.Transport},
		AuthenticationMethod: gotwi.AuthenMethodOAuth1UserContext,
		OAuthToken:           creds.AccessToken,
		OAuthTokenSecret:     creds.AccessSecret,
		APIKey:               creds.ConsumerKey,
		APIKeySecret:         creds.ConsumerSecret,
		Debug:                logutil.Verbose(),
	})
	if err != nil {
		return nil, fmt.Errorf("create X client: %w", err)
	}
	if !api.IsReady() {
		return nil, fmt.Errorf("twitter client not ready")
	}

	ctx := context.Background()
	if opts.Transport != nil {
		ctx = context.WithValue(ctx, oauth1.HTTPClient, &http.Client{Transport: opts.Transport})
	}
	oauthConfig := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	httpClient := oauthConfig.Client(ctx, oauth1.NewToken(creds.AccessToken, creds.AccessSecret))
	httpClient.Timeout = opts.HTTPTimeout

	return &Client{
		api: api,
		tweets: &gotwitter.Client{
			Authorizer: signedByTransport{},
			Client:     httpClient,
			Host:       apiHost,
		},
	}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string { return providerName }

// PublishStatus posts a tweet referencing refs in order.
func (c *Client) PublishStatus(ctx context.Context, text string, refs []xpost.MediaRef) (xpost.PublishResult, error) {
	req := gotwitter.CreateTweetRequest{Text: text}
	if len(refs) > 0 {
		ids := make([]string, len(refs))
		for i, ref := range refs {
			ids[i] = string(ref)
		}
		req.Media = &gotwitter.CreateTweetMedia{IDs: ids}
	}

	logutil.Debugf("posting tweet: media_count=%d", len(refs))
	resp, err := c.tweets.CreateTweet(ctx, req)
	if err != nil {
		return xpost.PublishResult{}, publishError(err)
	}
	if resp.Tweet == nil || resp.Tweet.ID == "" {
		return xpost.PublishResult{}, xpost.NewPublishError(providerName, errors.New("create tweet response carried no id"))
	}
	logutil.Debugf("tweet posted successfully: id=%s", resp.Tweet.ID)

	return xpost.PublishResult{
		ID:  resp.Tweet.ID,
		URL: fmt.Sprintf(statusURLFormat, resp.Tweet.ID),
	}, nil
}

func publishError(err error) error {
	var apiErr *gotwitter.ErrorResponse
	if errors.As(err, &apiErr) && apiErr != nil {
		return &xpost.PublishError{
			Platform:   providerName,
			StatusCode: apiErr.StatusCode,
			Body:       summarizeErrorResponse(apiErr),
			Err:        err,
		}
	}
	return xpost.NewPublishError(providerName, err)
}

func summarizeErrorResponse(err *gotwitter.ErrorResponse) string {
	parts := make([]string, 0, 2)
	if err.Title != "" {
		parts = append(parts, err.Title)
	}
	if err.Detail != "" {
		parts = append(parts, err.Detail)
	}
	return strings.Join(parts, ": ")
}

// signedByTransport leaves requests untouched; the OAuth1 transport signs them.
type signedByTransport struct{}

func (signedByTransport) Add(*http.Request) {}
