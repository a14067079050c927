package upscale

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/vatsal3003/upscale-client/pkg/models"
)

// Client speaks the upscale service's HTTP contract.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
		log:     logger.With().Str("component", "upscale_client").Logger(),
	}
}

type errorBody struct {
	Error string `json:"error"`
}

type startResponse struct {
	GroupID string `json:"group_id"`
	Error   string `json:"error"`
}

type statusResponse struct {
	models.JobStatus
	Error string `json:"error"`
}

type upscaleResponse struct {
	Results []models.ItemResult `json:"results"`
	Error   string              `json:"error"`
}

func (c *Client) GetConfig(ctx context.Context) (models.ServerConfig, error) {
	var cfg models.ServerConfig
	if err := c.do(ctx, "fetch config", http.MethodGet, "/config", nil, "", &cfg); err != nil {
		return models.ServerConfig{}, err
	}
	return cfg, nil
}

// Start submits every upload as one asynchronous batch job.
func (c *Client) Start(ctx context.Context, uploads []models.Upload, settings models.SubmissionSettings) (models.JobHandle, error) {
	if len(uploads) == 0 {
		return models.JobHandle{}, &ValidationError{Msg: "please select at least one image first"}
	}

	body, contentType, err := encodeForm("image", uploads, settings.Form())
	if err != nil {
		return models.JobHandle{}, err
	}

	var res startResponse
	if err := c.do(ctx, "start upscale job", http.MethodPost, "/upscale/start", body, contentType, &res); err != nil {
		return models.JobHandle{}, err
	}
	if res.GroupID == "" {
		return models.JobHandle{}, &ServiceError{Status: http.StatusOK, Message: messageOrGeneric(res.Error)}
	}

	c.log.Debug().Str("group_id", res.GroupID).Int("files", len(uploads)).Msg("upscale job started")
	return models.JobHandle{GroupID: res.GroupID}, nil
}

func (c *Client) Status(ctx context.Context, handle models.JobHandle) (models.JobStatus, error) {
	var res statusResponse
	path := "/upscale/status/" + url.PathEscape(handle.GroupID)
	if err := c.do(ctx, "query job status", http.MethodGet, path, nil, "", &res); err != nil {
		return models.JobStatus{}, err
	}
	if res.Error != "" {
		return models.JobStatus{}, &ServiceError{Status: http.StatusOK, Message: res.Error}
	}
	return res.JobStatus, nil
}

func (c *Client) Cancel(ctx context.Context, handle models.JobHandle) (models.CancelAck, error) {
	var ack models.CancelAck
	path := "/upscale/cancel/" + url.PathEscape(handle.GroupID)
	if err := c.do(ctx, "cancel job", http.MethodPost, path, nil, "", &ack); err != nil {
		return models.CancelAck{}, err
	}
	return ack, nil
}

// Upscale is the synchronous variant: the response carries every result.
func (c *Client) Upscale(ctx context.Context, uploads []models.Upload, settings models.SubmissionSettings) ([]models.ItemResult, error) {
	if len(uploads) == 0 {
		return nil, &ValidationError{Msg: "please select at least one image first"}
	}

	body, contentType, err := encodeForm("image", uploads, settings.Form())
	if err != nil {
		return nil, err
	}

	var res upscaleResponse
	if err := c.do(ctx, "upscale images", http.MethodPost, "/upscale", body, contentType, &res); err != nil {
		return nil, err
	}
	if res.Results == nil {
		return nil, &ServiceError{Status: http.StatusOK, Message: messageOrGeneric(res.Error)}
	}
	return res.Results, nil
}

// Extract sends one video for frame extraction, optionally upscaling the
// extracted frames as well.
func (c *Client) Extract(ctx context.Context, video models.Upload, settings models.SubmissionSettings, upscaleFrames bool) (models.ExtractResult, error) {
	if video.Path == "" {
		return models.ExtractResult{}, &ValidationError{Msg: "please select a video file first"}
	}

	fields := settings.Form()
	fields["upscale_frames"] = strconv.FormatBool(upscaleFrames)

	body, contentType, err := encodeForm("video", []models.Upload{video}, fields)
	if err != nil {
		return models.ExtractResult{}, err
	}

	var res models.ExtractResult
	if err := c.do(ctx, "extract frames", http.MethodPost, "/extract", body, contentType, &res); err != nil {
		return models.ExtractResult{}, err
	}
	return res, nil
}

// Download copies the asset behind a projected result URL into w.
func (c *Client) Download(ctx context.Context, assetURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, &TransportError{Op: "download asset", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, decodeServiceError(resp)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, &TransportError{Op: "download asset", Err: err}
	}
	return n, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeServiceError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ServiceError{Status: resp.StatusCode, Message: GenericErrorMessage}
	}
	return nil
}

func decodeServiceError(resp *http.Response) error {
	var body errorBody
	data, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(data, &body)
	return &ServiceError{Status: resp.StatusCode, Message: messageOrGeneric(body.Error)}
}

func messageOrGeneric(msg string) string {
	if msg == "" {
		return GenericErrorMessage
	}
	return msg
}

func encodeForm(field string, uploads []models.Upload, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", key, err)
		}
	}

	for _, u := range uploads {
		if err := writeFile(mw, field, u); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func writeFile(mw *multipart.Writer, field string, u models.Upload) error {
	f, err := os.Open(u.Path)
	if err != nil {
		return &ValidationError{Msg: fmt.Sprintf("cannot read %s: %v", u.Name, err)}
	}
	defer f.Close()

	part, err := mw.CreateFormFile(field, u.Name)
	if err != nil {
		return fmt.Errorf("failed to create form file %s: %w", u.Name, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to copy %s into request: %w", u.Name, err)
	}
	return nil
}
