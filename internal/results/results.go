// Package results turns the per-item results of a finished job into
// downloadable assets and inline error rows.
package results

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vatsal3003/upscale-client/pkg/models"
)

const (
	UnknownFile         = "Unknown file"
	UnknownErrorMessage = "An unknown error occurred."
)

type Kind string

const (
	KindDownload Kind = "download"
	KindError    Kind = "error"
)

// PartialItemError is the failure of a single item inside a job that
// otherwise finished.
type PartialItemError struct {
	Original string
	Message  string
}

func (e *PartialItemError) Error() string {
	return e.Original + ": " + e.Message
}

type Record struct {
	Kind         Kind   `json:"kind"`
	Original     string `json:"original"`
	URL          string `json:"url,omitempty"`
	DownloadName string `json:"download_name,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Err returns the item failure, nil for downloads.
func (r Record) Err() error {
	if r.Kind != KindError {
		return nil
	}
	return &PartialItemError{Original: r.Original, Message: r.Error}
}

type Options struct {
	// BaseURL of the upscale service, without a trailing slash.
	BaseURL string
	// OutputDir is used when an item does not report its own output_dir.
	OutputDir string
	// Now stamps the cache buster. Defaults to time.Now.
	Now func() time.Time
}

// Project maps results to records one to one, in the order the service
// returned them.
func Project(items []models.ItemResult, opts Options) []Record {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	stamp := strconv.FormatInt(now().UnixMilli(), 10)
	base := strings.TrimRight(opts.BaseURL, "/")

	records := make([]Record, 0, len(items))
	for _, item := range items {
		if item.Resolved() == models.ItemSuccess {
			name := Basename(item.OutputPath)
			dir := item.OutputDir
			if dir == "" {
				dir = opts.OutputDir
			}

			q := url.Values{}
			q.Set("output_dir", dir)
			q.Set("t", stamp)

			records = append(records, Record{
				Kind:         KindDownload,
				Original:     item.Original,
				URL:          base + "/outputs/" + url.PathEscape(name) + "?" + q.Encode(),
				DownloadName: name,
			})
			continue
		}

		original := item.Original
		if original == "" {
			original = UnknownFile
		}
		msg := item.Error
		if msg == "" {
			msg = UnknownErrorMessage
		}
		records = append(records, Record{Kind: KindError, Original: original, Error: msg})
	}
	return records
}

// Basename returns the last element of a path written with either / or \.
func Basename(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

type Totals struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func Summary(records []Record) Totals {
	var t Totals
	for _, r := range records {
		if r.Kind == KindDownload {
			t.Succeeded++
		} else {
			t.Failed++
		}
	}
	return t
}
