package upscale

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vatsal3003/upscale-client/internal/upscaletest"
	"github.com/vatsal3003/upscale-client/pkg/models"
)

type failingRoundTripper struct {
	err error
}

func (f failingRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, f.err
}

func newTestClient(t *testing.T) (*Client, *upscaletest.Server) {
	t.Helper()
	srv := upscaletest.New()
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, zerolog.Nop()), srv
}

func writeUploads(t *testing.T, names ...string) []models.Upload {
	t.Helper()
	dir := t.TempDir()
	uploads := make([]models.Upload, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("fake image "+name), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		uploads = append(uploads, models.NewUpload(path))
	}
	return uploads
}

func TestGetConfigEmptyGivesDefaults(t *testing.T) {
	client, srv := newTestClient(t)

	cfg, err := client.GetConfig(context.Background())
	if err != nil {
		t.Fatalf("GetConfig error = %v", err)
	}
	if got := models.DefaultSettings(cfg); got != models.DefaultSettings(models.ServerConfig{}) {
		t.Fatalf("settings from {} = %+v", got)
	}
	if srv.Calls(upscaletest.RouteConfig) != 1 {
		t.Fatalf("expected one config call, got %d", srv.Calls(upscaletest.RouteConfig))
	}
}

func TestStartSendsEveryFileAndSetting(t *testing.T) {
	client, srv := newTestClient(t)
	uploads := writeUploads(t, "a.png", "b.png", "c.png")
	settings := models.DefaultSettings(models.ServerConfig{})
	settings.OutputDirectory = "out/run1"

	handle, err := client.Start(context.Background(), uploads, settings)
	if err != nil {
		t.Fatalf("Start error = %v", err)
	}
	if handle.IsZero() || handle.GroupID != srv.Groups()[0] {
		t.Fatalf("unexpected handle %+v, groups %v", handle, srv.Groups())
	}
	if srv.Calls(upscaletest.RouteStart) != 1 {
		t.Fatalf("expected exactly one start call, got %d", srv.Calls(upscaletest.RouteStart))
	}

	sub := srv.Submissions()[0]
	if len(sub.Files) != 3 || sub.Files[0] != "a.png" || sub.Files[2] != "c.png" {
		t.Fatalf("unexpected files: %v", sub.Files)
	}
	for k, v := range settings.Form() {
		if sub.Fields[k] != v {
			t.Errorf("field %s = %q, want %q", k, sub.Fields[k], v)
		}
	}
}

func TestStartEmptyUploadsNeverCallsService(t *testing.T) {
	client, srv := newTestClient(t)

	_, err := client.Start(context.Background(), nil, models.DefaultSettings(models.ServerConfig{}))

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if srv.Calls(upscaletest.RouteStart) != 0 {
		t.Fatalf("expected no start calls, got %d", srv.Calls(upscaletest.RouteStart))
	}
}

func TestStartUnreadableFileIsValidationError(t *testing.T) {
	client, srv := newTestClient(t)
	missing := models.NewUpload(filepath.Join(t.TempDir(), "gone.png"))

	_, err := client.Start(context.Background(), []models.Upload{missing}, models.DefaultSettings(models.ServerConfig{}))

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if srv.Calls(upscaletest.RouteStart) != 0 {
		t.Fatalf("expected no start calls, got %d", srv.Calls(upscaletest.RouteStart))
	}
}

func TestServiceErrorMessages(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{name: "server message", status: http.StatusBadRequest, body: `{"error":"No selected files"}`, wantStatus: 400, wantMsg: "No selected files"},
		{name: "malformed body", status: http.StatusInternalServerError, body: `<html>oops</html>`, wantStatus: 500, wantMsg: GenericErrorMessage},
		{name: "empty body", status: http.StatusBadGateway, body: ``, wantStatus: 502, wantMsg: GenericErrorMessage},
		{name: "error without message", status: http.StatusOK, body: `{"error":""}`, wantStatus: 200, wantMsg: GenericErrorMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, srv := newTestClient(t)
			srv.Fail(upscaletest.RouteStart, tt.status, tt.body)

			_, err := client.Start(context.Background(), writeUploads(t, "a.png"), models.DefaultSettings(models.ServerConfig{}))

			var sErr *ServiceError
			if !errors.As(err, &sErr) {
				t.Fatalf("expected ServiceError, got %T: %v", err, err)
			}
			if sErr.Status != tt.wantStatus || sErr.Message != tt.wantMsg {
				t.Fatalf("ServiceError = %+v, want status %d message %q", sErr, tt.wantStatus, tt.wantMsg)
			}
		})
	}
}

func TestStatusAndCancel(t *testing.T) {
	client, srv := newTestClient(t)
	srv.QueueStatus(
		models.JobStatus{Total: 2, CompletedCount: 1},
		models.JobStatus{Total: 2, CompletedCount: 2, Results: []models.ItemResult{{Original: "a.png", Status: models.ItemSuccess, OutputPath: "out/a.png"}}},
	)
	ctx := context.Background()

	handle, err := client.Start(ctx, writeUploads(t, "a.png", "b.png"), models.DefaultSettings(models.ServerConfig{}))
	if err != nil {
		t.Fatalf("Start error = %v", err)
	}

	first, err := client.Status(ctx, handle)
	if err != nil || first.CompletedCount != 1 || first.Total != 2 {
		t.Fatalf("first status = %+v, %v", first, err)
	}
	second, err := client.Status(ctx, handle)
	if err != nil || !second.Terminal() || len(second.Results) != 1 {
		t.Fatalf("second status = %+v, %v", second, err)
	}

	ack, err := client.Cancel(ctx, handle)
	if err != nil || ack.Message != "Cancellation request sent." {
		t.Fatalf("Cancel = %+v, %v", ack, err)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.Status(context.Background(), models.JobHandle{GroupID: "missing"})

	var sErr *ServiceError
	if !errors.As(err, &sErr) || sErr.Status != http.StatusNotFound || sErr.Message != "Job not found" {
		t.Fatalf("expected 404 Job not found, got %v", err)
	}
}

func TestUpscaleSync(t *testing.T) {
	client, srv := newTestClient(t)
	srv.SetSyncResults([]models.ItemResult{
		{Original: "a.png", OutputPath: "images/output/a_2x.png", OutputDir: "images/output"},
		{Original: "b.png", Error: "decode failed"},
	})

	results, err := client.Upscale(context.Background(), writeUploads(t, "a.png", "b.png"), models.DefaultSettings(models.ServerConfig{}))
	if err != nil {
		t.Fatalf("Upscale error = %v", err)
	}
	if len(results) != 2 || results[0].Resolved() != models.ItemSuccess || results[1].Resolved() != models.ItemFailure {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestExtractSendsVideoAndFlag(t *testing.T) {
	client, srv := newTestClient(t)
	srv.SetExtractResult(models.ExtractResult{
		ExtractedCount:  12,
		UpscaledResults: []models.ItemResult{{Original: "clip_frame_0001.png", OutputPath: "out/clip_frame_0001.png"}},
	})
	video := writeUploads(t, "clip.mp4")[0]

	res, err := client.Extract(context.Background(), video, models.DefaultSettings(models.ServerConfig{}), true)
	if err != nil {
		t.Fatalf("Extract error = %v", err)
	}
	if res.ExtractedCount != 12 || len(res.UpscaledResults) != 1 {
		t.Fatalf("unexpected extract result: %+v", res)
	}

	sub := srv.Submissions()[0]
	if sub.Fields["upscale_frames"] != "true" || len(sub.Files) != 1 || sub.Files[0] != "clip.mp4" {
		t.Fatalf("unexpected submission: %+v", sub)
	}
}

func TestExtractWithoutVideo(t *testing.T) {
	client, srv := newTestClient(t)

	_, err := client.Extract(context.Background(), models.Upload{}, models.DefaultSettings(models.ServerConfig{}), false)

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if srv.Calls(upscaletest.RouteExtract) != 0 {
		t.Fatalf("expected no extract calls")
	}
}

func TestDownload(t *testing.T) {
	client, _ := newTestClient(t)

	var buf bytes.Buffer
	n, err := client.Download(context.Background(), client.BaseURL+"/outputs/a_2x.png?output_dir=out&t=1", &buf)
	if err != nil {
		t.Fatalf("Download error = %v", err)
	}
	if got := buf.String(); got != "asset:a_2x.png:out" || n != int64(len(got)) {
		t.Fatalf("Download wrote %q (%d bytes)", got, n)
	}
}

func TestTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	client := NewClient("http://upscaler.invalid", time.Second, zerolog.Nop())
	client.HTTP = &http.Client{Transport: failingRoundTripper{err: boom}}

	_, err := client.Status(context.Background(), models.JobHandle{GroupID: "g"})

	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected TransportError, got %T: %v", err, err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected TransportError to unwrap the cause, got %v", err)
	}
}
