package staging

import (
	"sync"

	"github.com/vatsal3003/upscale-client/internal/preview"
	"github.com/vatsal3003/upscale-client/pkg/models"
)

type Renderer interface {
	Render(upload models.Upload) preview.Preview
}

// UploadSet holds the files selected for the next submission together with
// their previews. Previews render concurrently and independently; results
// that belong to a superseded selection are dropped.
type UploadSet struct {
	renderer  Renderer
	onPreview func(preview.Preview)

	mu         sync.Mutex
	uploads    []models.Upload
	video      bool
	previews   map[int]preview.Preview
	generation uint64
	wg         sync.WaitGroup
}

// NewUploadSet creates an empty set. onPreview, when not nil, is called once
// per rendered preview, from the rendering goroutine.
func NewUploadSet(renderer Renderer, onPreview func(preview.Preview)) *UploadSet {
	return &UploadSet{
		renderer:  renderer,
		onPreview: onPreview,
		previews:  make(map[int]preview.Preview),
	}
}

// Select replaces the set with uploads and starts rendering their previews.
func (s *UploadSet) Select(uploads []models.Upload) {
	s.replace(uploads, false)
}

// SelectVideo stages a single video in place of the current selection.
func (s *UploadSet) SelectVideo(video models.Upload) {
	s.replace([]models.Upload{video}, true)
}

func (s *UploadSet) Clear() {
	s.replace(nil, false)
}

func (s *UploadSet) replace(uploads []models.Upload, video bool) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.uploads = append([]models.Upload(nil), uploads...)
	s.video = video
	s.previews = make(map[int]preview.Preview, len(uploads))
	s.mu.Unlock()

	for i, u := range uploads {
		s.wg.Add(1)
		go s.render(gen, i, u)
	}
}

// render fills the preview for position i of selection gen.
func (s *UploadSet) render(gen uint64, i int, u models.Upload) {
	defer s.wg.Done()

	p := s.renderer.Render(u)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.previews[i] = p
	s.mu.Unlock()

	if s.onPreview != nil {
		s.onPreview(p)
	}
}

// Snapshot returns a copy of the current selection. Later changes to the
// set do not affect the returned slice.
func (s *UploadSet) Snapshot() []models.Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Upload(nil), s.uploads...)
}

func (s *UploadSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

func (s *UploadSet) Video() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.video
}

// Previews returns the previews rendered so far, in selection order.
func (s *UploadSet) Previews() []preview.Preview {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]preview.Preview, 0, len(s.previews))
	for i := range s.uploads {
		if p, ok := s.previews[i]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Wait blocks until every preview started so far has finished rendering.
func (s *UploadSet) Wait() {
	s.wg.Wait()
}
