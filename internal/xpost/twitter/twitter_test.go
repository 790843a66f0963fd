package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blacktop/crosspost/internal/config"
	"github.com/blacktop/crosspost/internal/xpost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = config.Twitter{
	ConsumerKey:    "consumer-key",
	ConsumerSecret: "consumer-secret",
	AccessToken:    "access-token",
	AccessSecret:   "access-secret",
}

const (
	initializePath = "/2/media/upload/initialize"
	statusPath     = "/2/media/upload"
	metadataPath   = "/1.1/media/metadata/create.json"
	tweetsPath     = "/2/tweets"
)

// rewriteTransport sends every request to the test server regardless of host.
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(out)
}

// fakeX records calls against the X endpoints this package uses.
type fakeX struct {
	mu         sync.Mutex
	calls      map[string]int
	nextID     int
	categories []string
	segments   map[string][]int
	data       map[string][]byte
	pending    map[string]int
	altTexts   []string
	mediaIDs   []string

	uploadErr     int
	processing    int
	processingErr bool
}

func (f *fakeX) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
		f.segments = map[string][]int{}
		f.data = map[string][]byte{}
		f.pending = map[string]int{}
	}

	path := r.URL.Path
	if strings.HasSuffix(path, "/append") {
		path = "append"
	} else if strings.HasSuffix(path, "/finalize") {
		path = "finalize"
	}
	f.calls[path]++

	if !strings.HasPrefix(r.Header.Get("Authorization"), "OAuth ") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case path == initializePath:
		if f.uploadErr != 0 {
			w.WriteHeader(f.uploadErr)
			w.Write([]byte(`{"errors":[{"code":324,"message":"media type unrecognized"}]}`))
			return
		}
		var body struct {
			MediaType     string `json:"media_type"`
			MediaCategory string `json:"media_category"`
			TotalBytes    int    `json:"total_bytes"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.categories = append(f.categories, body.MediaCategory)
		f.nextID++
		id := strconv.Itoa(f.nextID)
		f.pending[id] = f.processing
		fmt.Fprintf(w, `{"data":{"id":%q,"media_key":"3_%s"}}`, id, id)
	case path == "append":
		id := strings.Split(strings.TrimPrefix(r.URL.Path, "/2/media/upload/"), "/")[0]
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("media")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		chunk, _ := io.ReadAll(file)
		file.Close()
		segment, _ := strconv.Atoi(r.FormValue("segment_index"))
		f.segments[id] = append(f.segments[id], segment)
		f.data[id] = append(f.data[id], chunk...)
		w.Write([]byte(`{"data":{"expires_at":1700000000}}`))
	case path == "finalize":
		id := strings.Split(strings.TrimPrefix(r.URL.Path, "/2/media/upload/"), "/")[0]
		f.writeMedia(w, id)
	case path == statusPath && r.Method == http.MethodGet:
		id := r.URL.Query().Get("media_id")
		if r.URL.Query().Get("command") != "STATUS" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.pending[id]--
		f.writeMedia(w, id)
	case path == metadataPath:
		var body struct {
			MediaID string `json:"media_id"`
			AltText struct {
				Text string `json:"text"`
			} `json:"alt_text"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.altTexts = append(f.altTexts, body.MediaID+"="+body.AltText.Text)
		w.WriteHeader(http.StatusOK)
	case path == tweetsPath:
		var body struct {
			Text  string `json:"text"`
			Media *struct {
				MediaIDs []string `json:"media_ids"`
			} `json:"media"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Media != nil {
			f.mediaIDs = body.Media.MediaIDs
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"555","text":"` + body.Text + `"}}`))
	case path == "/2/users/me":
		w.Write([]byte(`{"data":{"id":"1","name":"Crosspost","username":"crosspost"}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeX) writeMedia(w http.ResponseWriter, id string) {
	switch {
	case f.processingErr:
		fmt.Fprintf(w, `{"data":{"id":%q,"processing_info":{"state":"failed"}}}`, id)
	case f.pending[id] > 0:
		fmt.Fprintf(w, `{"data":{"id":%q,"processing_info":{"state":"in_progress","check_after_secs":0}}}`, id)
	default:
		fmt.Fprintf(w, `{"data":{"id":%q,"size":%d}}`, id, len(f.data[id]))
	}
}

func (f *fakeX) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeX) uploaded(id xpost.MediaRef) (data []byte, segments []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[string(id)], f.segments[string(id)]
}

func (f *fakeX) recorded() (categories, altTexts, mediaIDs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.categories, f.altTexts, f.mediaIDs
}

func newTestClient(t *testing.T, handler http.Handler, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	c, err := New(testCreds, Options{HTTPTimeout: timeout, Transport: rewriteTransport{target: target}})
	require.NoError(t, err)
	return c
}

func fastPolling(t *testing.T) {
	t.Helper()
	prev := statusPollInterval
	statusPollInterval = time.Millisecond
	t.Cleanup(func() { statusPollInterval = prev })
}

// stalled never answers before the client gives up.
func stalled() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
}

func TestNewRequiresAllCredentials(t *testing.T) {
	creds := testCreds
	creds.AccessSecret = ""

	_, err := New(creds, Options{})
	var missing xpost.MissingEnvError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{config.EnvTwitterAccessSecret}, missing.Variables)
}

func TestUploadMedia(t *testing.T) {
	t.Run("sets alt text with exactly one metadata call", func(t *testing.T) {
		fake := &fakeX{}
		c := newTestClient(t, fake, 0)

		ref, err := c.UploadMedia(context.Background(), xpost.MediaItem{Data: []byte("cat"), MIMEType: "image/png", AltText: "a cat"})
		require.NoError(t, err)
		require.NotEmpty(t, ref)

		data, segments := fake.uploaded(ref)
		assert.Equal(t, []byte("cat"), data)
		assert.Equal(t, []int{0}, segments)
		assert.Equal(t, 1, fake.count(initializePath))
		assert.Equal(t, 1, fake.count("finalize"))
		assert.Zero(t, fake.count(statusPath))
		assert.Equal(t, 1, fake.count(metadataPath))
		categories, altTexts, _ := fake.recorded()
		assert.Equal(t, []string{"tweet_image"}, categories)
		assert.Equal(t, []string{string(ref) + "=a cat"}, altTexts)
	})

	t.Run("skips the metadata call without alt text", func(t *testing.T) {
		fake := &fakeX{}
		c := newTestClient(t, fake, 0)

		_, err := c.UploadMedia(context.Background(), xpost.MediaItem{Data: []byte("dog"), MIMEType: "image/jpeg", AltText: "  "})
		require.NoError(t, err)
		assert.Equal(t, 1, fake.count(initializePath))
		assert.Zero(t, fake.count(metadataPath))
	})

	t.Run("splits large files into ordered segments", func(t *testing.T) {
		fake := &fakeX{}
		c := newTestClient(t, fake, 0)
		payload := bytes.Repeat([]byte("g"), segmentSize+10)

		ref, err := c.UploadMedia(context.Background(), xpost.MediaItem{Data: payload, MIMEType: "image/gif"})
		require.NoError(t, err)

		data, segments := fake.uploaded(ref)
		assert.Equal(t, []int{0, 1}, segments)
		assert.Equal(t, payload, data)
		categories, _, _ := fake.recorded()
		assert.Equal(t, []string{"tweet_gif"}, categories)
	})

	t.Run("waits for video processing before setting alt text", func(t *testing.T) {
		fastPolling(t)
		fake := &fakeX{processing: 2}
		c := newTestClient(t, fake, 0)

		ref, err := c.UploadMedia(context.Background(), xpost.MediaItem{Data: []byte("mp4"), MIMEType: "video/mp4", AltText: "a clip"})
		require.NoError(t, err)

		assert.Equal(t, 2, fake.count(statusPath))
		categories, altTexts, _ := fake.recorded()
		assert.Equal(t, []string{"tweet_video"}, categories)
		assert.Equal(t, []string{string(ref) + "=a clip"}, altTexts)
	})

	t.Run("fails when processing fails", func(t *testing.T) {
		fake := &fakeX{processingErr: true}
		c := newTestClient(t, fake, 0)

		_, err := c.UploadMedia(context.Background(), xpost.MediaItem{Data: []byte("mp4"), MIMEType: "video/mp4", AltText: "a clip"})
		var uploadErr *xpost.UploadError
		require.True(t, errors.As(err, &uploadErr))
		assert.Contains(t, err.Error(), "state=failed")
		assert.Zero(t, fake.count(metadataPath))
	})

	t.Run("rejects unsupported media types without calling X", func(t *testing.T) {
		fake := &fakeX{}
		c := newTestClient(t, fake, 0)

		_, err := c.UploadMedia(context.Background(), xpost.MediaItem{Data: []byte("x"), MIMEType: "application/pdf"})
		var validation xpost.ValidationError
		require.True(t, errors.As(err, &validation))
		assert.Zero(t, fake.count(initializePath))
	})

	t.Run("wraps API failures in an UploadError", func(t *testing.T) {
		fake := &fakeX{uploadErr: http.StatusBadRequest}
		c := newTestClient(t, fake, 0)

		_, err := c.UploadMedia(context.Background(), xpost.MediaItem{Data: []byte("x"), MIMEType: "image/png", AltText: "alt"})
		var uploadErr *xpost.UploadError
		require.True(t, errors.As(err, &uploadErr))
		assert.Equal(t, providerName, uploadErr.Platform)
		assert.Equal(t, http.StatusBadRequest, uploadErr.StatusCode)
		assert.Contains(t, uploadErr.Body, "media type unrecognized")
		assert.NotContains(t, err.Error(), testCreds.AccessSecret)
		assert.Zero(t, fake.count(metadataPath))
	})

	t.Run("reports a timeout without a status code", func(t *testing.T) {
		c := newTestClient(t, stalled(), 10*time.Millisecond)

		_, err := c.UploadMedia(context.Background(), xpost.MediaItem{Data: []byte("x"), MIMEType: "image/png"})
		var uploadErr *xpost.UploadError
		require.True(t, errors.As(err, &uploadErr))
		assert.Equal(t, providerName, uploadErr.Platform)
		assert.Zero(t, uploadErr.StatusCode)
	})
}

func TestPublishStatus(t *testing.T) {
	t.Run("posts media ids in order", func(t *testing.T) {
		fake := &fakeX{}
		c := newTestClient(t, fake, 0)

		res, err := c.PublishStatus(context.Background(), "hello", []xpost.MediaRef{"b", "a", "c"})
		require.NoError(t, err)
		assert.Equal(t, "555", res.ID)
		assert.Equal(t, "https://x.com/i/web/status/555", res.URL)
		_, _, mediaIDs := fake.recorded()
		assert.Equal(t, []string{"b", "a", "c"}, mediaIDs)
	})

	t.Run("wraps API errors in a PublishError", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"title":"Forbidden","detail":"You are not allowed to create a Tweet with duplicate content.","type":"about:blank","status":403}`))
		}), 0)

		_, err := c.PublishStatus(context.Background(), "hello", nil)
		var publishErr *xpost.PublishError
		require.True(t, errors.As(err, &publishErr))
		assert.Equal(t, http.StatusForbidden, publishErr.StatusCode)
		assert.Contains(t, publishErr.Body, "duplicate content")
	})

	t.Run("reports a timeout without a status code", func(t *testing.T) {
		c := newTestClient(t, stalled(), 10*time.Millisecond)

		_, err := c.PublishStatus(context.Background(), "hello", nil)
		var publishErr *xpost.PublishError
		require.True(t, errors.As(err, &publishErr))
		assert.Zero(t, publishErr.StatusCode)
	})
}

func TestCrossPostEndToEnd(t *testing.T) {
	fake := &fakeX{}
	c := newTestClient(t, fake, 0)
	post, err := xpost.NewPost("hello",
		xpost.MediaItem{Data: []byte("cat"), MIMEType: "image/png", AltText: "a cat"},
		xpost.MediaItem{Data: []byte("dog"), MIMEType: "image/jpeg"},
	)
	require.NoError(t, err)

	results := xpost.New(xpost.Enabled(c)).Send(context.Background(), post)

	require.Equal(t, xpost.StatusPosted, results[0].Status)
	assert.Equal(t, 2, fake.count(initializePath))
	assert.Equal(t, 1, fake.count(metadataPath))
	assert.Equal(t, 1, fake.count(tweetsPath))

	_, _, mediaIDs := fake.recorded()
	require.Len(t, mediaIDs, 2)
	first, _ := fake.uploaded(xpost.MediaRef(mediaIDs[0]))
	second, _ := fake.uploaded(xpost.MediaRef(mediaIDs[1]))
	assert.Equal(t, []byte("cat"), first)
	assert.Equal(t, []byte("dog"), second)
}

func TestVerify(t *testing.T) {
	c := newTestClient(t, &fakeX{}, 0)

	handle, err := c.Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "@crosspost", handle)
}

func TestMediaKind(t *testing.T) {
	tests := []struct {
		mime     string
		category string
	}{
		{mime: "image/png", category: "tweet_image"},
		{mime: "image/jpeg", category: "tweet_image"},
		{mime: "image/webp", category: "tweet_image"},
		{mime: "image/gif", category: "tweet_gif"},
		{mime: "video/mp4", category: "tweet_video"},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			mediaType, category, err := mediaKind(tt.mime)
			require.NoError(t, err)
			assert.Equal(t, tt.mime, string(mediaType))
			assert.Equal(t, tt.category, string(category))
		})
	}

	_, _, err := mediaKind("video/quicktime")
	assert.Error(t, err)
}
