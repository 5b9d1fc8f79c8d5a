package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Putter is the write side of a Store.
type Putter interface {
	Put(ctx context.Context, key string, content []byte, contentType string) error
}

// Source is a page that evidence can be captured from. A pagedriver.Session
// satisfies it.
type Source interface {
	URL() string
	Screenshot(ctx context.Context) ([]byte, error)
	Content(ctx context.Context) (string, error)
}

// Meta describes one capture.
type Meta struct {
	URL        string    `json:"url"`
	CapturedAt time.Time `json:"capturedAt"`
	Errors     []string  `json:"errors,omitempty"`
}

// Capture stores screenshot.png, page.html and meta.json under prefix and
// returns the keys written. Pieces that fail to capture are skipped and
// reported in the returned error; whatever could be captured is still stored.
func Capture(ctx context.Context, store Putter, src Source, prefix string) ([]string, error) {
	var keys []string
	var failures []error
	meta := Meta{URL: src.URL(), CapturedAt: time.Now().UTC()}

	put := func(name string, content []byte, contentType string) {
		key := prefix + name
		if err := store.Put(ctx, key, content, contentType); err != nil {
			failures = append(failures, err)
			return
		}
		keys = append(keys, key)
	}

	if png, err := src.Screenshot(ctx); err != nil {
		failures = append(failures, fmt.Errorf("screenshot: %w", err))
	} else {
		put("screenshot.png", png, "image/png")
	}

	if html, err := src.Content(ctx); err != nil {
		failures = append(failures, fmt.Errorf("content: %w", err))
	} else {
		put("page.html", []byte(html), "text/html; charset=utf-8")
	}

	for _, err := range failures {
		meta.Errors = append(meta.Errors, err.Error())
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		failures = append(failures, err)
	} else {
		put("meta.json", metaJSON, "application/json")
	}

	return keys, errors.Join(failures...)
}
