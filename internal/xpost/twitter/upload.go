package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blacktop/crosspost/internal/logutil"
	"github.com/blacktop/crosspost/internal/xpost"
	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/media/upload"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/michimani/gotwi/resources"
)

const (
	statusEndpoint   = "https://api.x.com/2/media/upload"
	metadataEndpoint = "https://upload.twitter.com/1.1/media/metadata/create.json"

	// X rejects APPEND segments above 5MB.
	segmentSize = 4 << 20

	maxStatusChecks = 60
)

// statusPollInterval is used when FINALIZE or STATUS omit check_after_secs.
var statusPollInterval = time.Second

// UploadMedia runs the chunked INIT/APPEND/FINALIZE upload, waits for
// server-side processing and, when alt text is present, attaches it with a
// follow-up metadata call.
func (c *Client) UploadMedia(ctx context.Context, item xpost.MediaItem) (xpost.MediaRef, error) {
	mediaType, category, err := mediaKind(item.MIMEType)
	if err != nil {
		return "", xpost.NewUploadError(providerName, err)
	}

	logutil.Debugf("initialize upload: media_type=%s bytes=%d", mediaType, len(item.Data))
	initRes, err := upload.Initialize(ctx, c.api, &uploadtypes.InitializeInput{
		MediaType:     mediaType,
		TotalBytes:    len(item.Data),
		MediaCategory: category,
	})
	if err != nil {
		return "", uploadError(fmt.Errorf("initialize upload: %w", err))
	}
	if err := partialError(initRes.Errors); err != nil {
		return "", uploadError(fmt.Errorf("initialize upload: %w", err))
	}
	mediaID := initRes.Data.MediaID
	if mediaID == "" {
		return "", uploadError(errors.New("initialize upload: response carried no media id"))
	}

	for segment, offset := 0, 0; offset < len(item.Data); segment, offset = segment+1, offset+segmentSize {
		chunk := item.Data[offset:min(offset+segmentSize, len(item.Data))]
		logutil.Debugf("append upload: media_id=%s segment=%d bytes=%d", mediaID, segment, len(chunk))
		appendRes, err := upload.Append(ctx, c.api, &uploadtypes.AppendInput{
			MediaID:      mediaID,
			Media:        bytes.NewReader(chunk),
			SegmentIndex: segment,
		})
		if err != nil {
			return "", uploadError(fmt.Errorf("append upload: %w", err))
		}
		if err := partialError(appendRes.Errors); err != nil {
			return "", uploadError(fmt.Errorf("append upload: %w", err))
		}
	}

	finalizeRes, err := upload.Finalize(ctx, c.api, &uploadtypes.FinalizeInput{MediaID: mediaID})
	if err != nil {
		return "", uploadError(fmt.Errorf("finalize upload: %w", err))
	}
	if err := partialError(finalizeRes.Errors); err != nil {
		return "", uploadError(fmt.Errorf("finalize upload: %w", err))
	}
	if err := c.awaitProcessing(ctx, mediaID, finalizeRes.Data.ProcessingInfo); err != nil {
		return "", uploadError(err)
	}
	logutil.Debugf("media uploaded: media_id=%s", mediaID)

	if alt := strings.TrimSpace(item.AltText); alt != "" {
		if err := c.setAltText(ctx, mediaID, alt); err != nil {
			return "", uploadError(err)
		}
	}

	return xpost.MediaRef(mediaID), nil
}

// awaitProcessing polls STATUS until the media leaves the pending and
// in_progress states. Images usually finish at FINALIZE.
func (c *Client) awaitProcessing(ctx context.Context, mediaID string, info resources.ProcessingInfo) error {
	for checks := 0; ; checks++ {
		logutil.Debugf("processing state=%s media_id=%s", info.State, mediaID)
		switch info.State {
		case "", resources.ProcessingInfoStateSucceeded:
			return nil
		case resources.ProcessingInfoStatePending, resources.ProcessingInfoStateInProgress:
		default:
			return fmt.Errorf("media processing failed: state=%s", info.State)
		}
		if checks == maxStatusChecks {
			return fmt.Errorf("media processing unfinished after %d checks", checks)
		}

		wait := time.Duration(info.CheckAfterSecs) * time.Second
		if wait <= 0 {
			wait = statusPollInterval
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		res := &uploadtypes.FinalizeOutput{}
		if err := c.api.CallAPI(ctx, statusEndpoint, http.MethodGet, &statusParameters{mediaID: mediaID}, res); err != nil {
			return fmt.Errorf("check upload status: %w", err)
		}
		if err := partialError(res.Errors); err != nil {
			return fmt.Errorf("check upload status: %w", err)
		}
		info = res.Data.ProcessingInfo
	}
}

func (c *Client) setAltText(ctx context.Context, mediaID, altText string) error {
	params := &metadataParameters{
		mediaID: mediaID,
		altText: altText,
	}

	ctx = context.WithValue(ctx, "Content-Type", "application/json;charset=UTF-8")

	if err := c.api.CallAPI(ctx, metadataEndpoint, http.MethodPost, params, &metadataResponse{}); err != nil {
		return fmt.Errorf("set alt text: %w", err)
	}
	logutil.Debugf("alt text set: media_id=%s", mediaID)

	return nil
}

func mediaKind(mimeType string) (uploadtypes.MediaType, uploadtypes.MediaCategory, error) {
	switch mediaType := uploadtypes.MediaType(mimeType); mediaType {
	case uploadtypes.MediaTypeJPEG, uploadtypes.MediaTypePNG, uploadtypes.MediaTypeWebP:
		return mediaType, uploadtypes.MediaCategoryTweetImage, nil
	case uploadtypes.MediaTypeGIF:
		return mediaType, uploadtypes.MediaCategoryTweetGIF, nil
	case uploadtypes.MediaTypeMP4:
		return mediaType, uploadtypes.MediaCategoryTweetVideo, nil
	}
	return "", "", xpost.ValidationError{Provider: providerName, Reason: fmt.Sprintf("unsupported media type %q", mimeType)}
}

// uploadError keeps the HTTP status of API rejections. Transport failures
// such as timeouts carry no status.
func uploadError(err error) *xpost.UploadError {
	var gwErr *gotwi.GotwiError
	if errors.As(err, &gwErr) && gwErr.OnAPI {
		return &xpost.UploadError{
			Platform:   providerName,
			StatusCode: gwErr.StatusCode,
			Body:       summarizeGotwiError(gwErr),
			Err:        err,
		}
	}
	return xpost.NewUploadError(providerName, err)
}

func partialError(partials []resources.PartialError) error {
	if len(partials) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(partials))
	for _, pe := range partials {
		switch {
		case pe.Detail != nil && *pe.Detail != "":
			msgs = append(msgs, *pe.Detail)
		case pe.Title != nil && *pe.Title != "":
			msgs = append(msgs, *pe.Title)
		case pe.ResourceType != nil:
			msgs = append(msgs, *pe.ResourceType)
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "unknown error")
	}
	return errors.New(strings.Join(msgs, "; "))
}

type statusParameters struct {
	mediaID     string
	accessToken string
}

func (p *statusParameters) SetAccessToken(token string) { p.accessToken = token }

func (p *statusParameters) AccessToken() string { return p.accessToken }

func (p *statusParameters) ResolveEndpoint(endpointBase string) string {
	q := url.Values{}
	for k, v := range p.ParameterMap() {
		q.Set(k, v)
	}
	return endpointBase + "?" + q.Encode()
}

func (p *statusParameters) Body() (io.Reader, error) { return nil, nil }

func (p *statusParameters) ParameterMap() map[string]string {
	return map[string]string{"command": "STATUS", "media_id": p.mediaID}
}

type metadataParameters struct {
	mediaID     string
	altText     string
	accessToken string
}

func (p *metadataParameters) SetAccessToken(token string) {
	p.accessToken = token
}

func (p *metadataParameters) AccessToken() string {
	return p.accessToken
}

func (p *metadataParameters) ResolveEndpoint(endpointBase string) string {
	return endpointBase
}

func (p *metadataParameters) Body() (io.Reader, error) {
	body := struct {
		MediaID string `json:"media_id"`
		AltText struct {
			Text string `json:"text"`
		} `json:"alt_text"`
	}{}
	body.MediaID = p.mediaID
	body.AltText.Text = p.altText

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf), nil
}

func (p *metadataParameters) ParameterMap() map[string]string {
	return map[string]string{}
}

type metadataResponse struct{}

func (metadataResponse) HasPartialError() bool { return false }
