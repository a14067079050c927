package preview

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/vatsal3003/upscale-client/pkg/models"
)

var videoExts = map[string]bool{".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true}

// Preview is the client-side rendering of one staged file.
type Preview struct {
	UploadID string
	Name     string
	Width    int
	Height   int
	Video    bool
	// Path of the saved thumbnail, empty when thumbnails are not kept.
	Path string
	Err  error
}

type Renderer struct {
	size      int
	outputDir string
}

// NewRenderer renders thumbnails that fit in a size x size box. When
// outputDir is set, thumbnails are written there as PNG files.
func NewRenderer(size int, outputDir string) *Renderer {
	return &Renderer{
		size:      size,
		outputDir: outputDir,
	}
}

func (r *Renderer) Render(upload models.Upload) Preview {
	p := Preview{UploadID: upload.ID, Name: upload.Name}

	if IsVideo(upload.Name) {
		p.Video = true
		return p
	}

	// Open the original image
	src, err := imaging.Open(upload.Path, imaging.AutoOrientation(true))
	if err != nil {
		p.Err = fmt.Errorf("failed to open image: %w", err)
		return p
	}

	bounds := src.Bounds()
	p.Width, p.Height = bounds.Dx(), bounds.Dy()

	if r.outputDir == "" {
		return p
	}

	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		p.Err = fmt.Errorf("failed to create preview directory: %w", err)
		return p
	}

	thumb := imaging.Fit(src, r.size, r.size, imaging.Lanczos)

	fileName := strings.TrimSuffix(upload.Name, filepath.Ext(upload.Name))
	outputPath := filepath.Join(r.outputDir, fmt.Sprintf("%s_%s_preview.png", fileName, shortID(upload.ID)))

	if err := imaging.Save(thumb, outputPath); err != nil {
		p.Err = fmt.Errorf("failed to save preview %s: %w", outputPath, err)
		return p
	}
	p.Path = outputPath

	return p
}

func IsVideo(name string) bool {
	return videoExts[strings.ToLower(filepath.Ext(name))]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
