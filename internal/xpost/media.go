package xpost

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp4":  "video/mp4",
}

// LoadMedia reads an attachment from disk and resolves its MIME type.
func LoadMedia(path, altText string) (MediaItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return MediaItem{}, ValidationError{Provider: "media", Reason: fmt.Sprintf("file %q not found", path)}
		}
		return MediaItem{}, fmt.Errorf("read media: %w", err)
	}
	if len(data) == 0 {
		return MediaItem{}, ValidationError{Provider: "media", Reason: fmt.Sprintf("file %q is empty", path)}
	}

	mimeType, err := resolveMediaType(path, data)
	if err != nil {
		return MediaItem{}, err
	}

	return MediaItem{Data: data, MIMEType: mimeType, AltText: strings.TrimSpace(altText)}, nil
}

func resolveMediaType(path string, data []byte) (string, error) {
	if mimeType, ok := extensionTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mimeType, nil
	}

	// fallback to simple detection
	detected := http.DetectContentType(data)
	for _, mimeType := range extensionTypes {
		if strings.HasPrefix(detected, mimeType) {
			return mimeType, nil
		}
	}

	return "", ValidationError{Provider: "media", Reason: fmt.Sprintf("unsupported media type %q for %q", detected, path)}
}
