package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/vatsal3003/upscale-client/internal/jobs"
	"github.com/vatsal3003/upscale-client/internal/preview"
	"github.com/vatsal3003/upscale-client/internal/results"
	"github.com/vatsal3003/upscale-client/internal/upscale"
)

type progressPrinter struct {
	w io.Writer
}

func (p *progressPrinter) Notify(e jobs.Event) {
	switch e.Type {
	case jobs.EventSubmitting:
		fmt.Fprintf(p.w, "Submitting %d files\n", e.Files)
	case jobs.EventSubmitted:
		fmt.Fprintf(p.w, "Job %s started\n", e.GroupID)
	case jobs.EventProgress:
		fmt.Fprintf(p.w, "Progress: %d/%d (%.0f%%)\n", e.Completed, e.Total, e.Percent)
	case jobs.EventCompleted:
		fmt.Fprintln(p.w, "Job completed")
	}
}

func logPreview(logger zerolog.Logger, p preview.Preview) {
	if p.Err != nil {
		logger.Warn().Err(p.Err).Str("file", p.Name).Msg("failed to render preview")
		return
	}
	ev := logger.Info().Str("file", p.Name).Bool("video", p.Video)
	if !p.Video {
		ev = ev.Int("width", p.Width).Int("height", p.Height)
	}
	if p.Path != "" {
		ev = ev.Str("preview", p.Path)
	}
	ev.Msg("staged")
}

func printRecords(w io.Writer, records []results.Record) {
	for _, r := range records {
		if r.Kind == results.KindDownload {
			fmt.Fprintf(w, "OK    %s -> %s\n", r.Original, r.URL)
			continue
		}
		fmt.Fprintf(w, "ERROR %s: %s\n", r.Original, r.Error)
	}
	t := results.Summary(records)
	fmt.Fprintf(w, "%d succeeded, %d failed\n", t.Succeeded, t.Failed)
}

// downloadAll saves every download record into dir. A failed download is
// logged and does not stop the others.
func downloadAll(ctx context.Context, client *upscale.Client, dir string, records []results.Record, logger zerolog.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	for _, r := range records {
		if r.Kind != results.KindDownload {
			continue
		}
		path := filepath.Join(dir, r.DownloadName)
		n, err := downloadOne(ctx, client, r.URL, path)
		if err != nil {
			logger.Error().Err(err).Str("file", r.DownloadName).Msg("failed to download result")
			continue
		}
		logger.Info().Str("file", path).Int64("bytes", n).Msg("downloaded")
	}
	return nil
}

func downloadOne(ctx context.Context, client *upscale.Client, url, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}

	n, err := client.Download(ctx, url, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to write %s: %w", path, cerr)
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return n, nil
}
