// Package upscaletest provides a scripted upscale service for tests. It
// records every call and answers from queued responses; it never processes
// images.
package upscaletest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vatsal3003/upscale-client/pkg/models"
)

const (
	RouteConfig  = "config"
	RouteStart   = "start"
	RouteStatus  = "status"
	RouteCancel  = "cancel"
	RouteUpscale = "upscale"
	RouteExtract = "extract"
	RouteAsset   = "asset"
)

type failure struct {
	status int
	body   string
}

// Submission is what the service received on one multipart request.
type Submission struct {
	Fields map[string]string
	Files  []string
}

type Server struct {
	*httptest.Server

	mu          sync.Mutex
	config      gin.H
	calls       map[string]int
	submissions []Submission
	groups      []string
	statuses    map[string][]models.JobStatus
	failures    map[string]failure
	syncResults []models.ItemResult
	extract     models.ExtractResult
	gates       map[string]chan struct{}
}

func New() *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		config:   gin.H{},
		calls:    make(map[string]int),
		statuses: make(map[string][]models.JobStatus),
		failures: make(map[string]failure),
		gates:    make(map[string]chan struct{}),
	}

	router := gin.New()
	router.GET("/config", s.getConfig)
	router.POST("/upscale/start", s.startJob)
	router.GET("/upscale/status/:id", s.getStatus)
	router.POST("/upscale/cancel/:id", s.cancelJob)
	router.POST("/upscale", s.upscaleSync)
	router.POST("/extract", s.extractVideo)
	router.GET("/outputs/:filename", s.getAsset)

	s.Server = httptest.NewServer(router)
	return s
}

// SetConfig replaces the body served by GET /config.
func (s *Server) SetConfig(cfg gin.H) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
}

// QueueStatus scripts the status responses for the next started job. Each
// poll consumes one entry; the last entry repeats.
func (s *Server) QueueStatus(statuses ...models.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[""] = append(s.statuses[""], statuses...)
}

// Fail makes every call to route answer with the given status and body.
func (s *Server) Fail(route string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, body: body}
}

func (s *Server) SetSyncResults(results []models.ItemResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncResults = results
}

func (s *Server) SetExtractResult(res models.ExtractResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extract = res
}

// HoldStatus blocks status requests until the returned release func runs.
func (s *Server) HoldStatus() (release func()) {
	return s.hold(RouteStatus)
}

// HoldStart blocks job submissions until the returned release func runs.
func (s *Server) HoldStart() (release func()) {
	return s.hold(RouteStart)
}

func (s *Server) hold(route string) func() {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gates[route] = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.gates, route)
			s.mu.Unlock()
			close(gate)
		})
	}
}

// wait blocks while route is held. It reports false when the client went
// away first.
func (s *Server) wait(c *gin.Context, route string) bool {
	s.mu.Lock()
	gate := s.gates[route]
	s.mu.Unlock()
	if gate == nil {
		return true
	}

	select {
	case <-gate:
		return true
	case <-c.Request.Context().Done():
		return false
	}
}

func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *Server) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.submissions...)
}

func (s *Server) Groups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.groups...)
}

func (s *Server) record(route string) (failure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[route]++
	f, ok := s.failures[route]
	return f, ok
}

func (s *Server) getConfig(c *gin.Context) {
	if f, ok := s.record(RouteConfig); ok {
		c.Data(f.status, "application/json", []byte(f.body))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, s.config)
}

func (s *Server) startJob(c *gin.Context) {
	f, failed := s.record(RouteStart)
	if !s.wait(c, RouteStart) {
		return
	}
	if failed {
		c.Data(f.status, "application/json", []byte(f.body))
		return
	}

	sub, err := readSubmission(c, "image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := uuid.NewString()

	s.mu.Lock()
	s.submissions = append(s.submissions, sub)
	s.groups = append(s.groups, id)
	s.statuses[id] = s.statuses[""]
	delete(s.statuses, "")
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"group_id": id})
}

func (s *Server) getStatus(c *gin.Context) {
	f, failed := s.record(RouteStatus)
	if !s.wait(c, RouteStatus) {
		return
	}

	if failed {
		c.Data(f.status, "application/json", []byte(f.body))
		return
	}

	id := c.Param("id")

	s.mu.Lock()
	queue, ok := s.statuses[id]
	if !ok || len(queue) == 0 {
		s.mu.Unlock()
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	status := queue[0]
	if len(queue) > 1 {
		s.statuses[id] = queue[1:]
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, status)
}

func (s *Server) cancelJob(c *gin.Context) {
	if f, ok := s.record(RouteCancel); ok {
		c.Data(f.status, "application/json", []byte(f.body))
		return
	}

	s.mu.Lock()
	_, ok := s.statuses[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cancellation request sent."})
}

func (s *Server) upscaleSync(c *gin.Context) {
	if f, ok := s.record(RouteUpscale); ok {
		c.Data(f.status, "application/json", []byte(f.body))
		return
	}

	sub, err := readSubmission(c, "image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, sub)
	c.JSON(http.StatusOK, gin.H{"results": s.syncResults})
}

func (s *Server) extractVideo(c *gin.Context) {
	if f, ok := s.record(RouteExtract); ok {
		c.Data(f.status, "application/json", []byte(f.body))
		return
	}

	sub, err := readSubmission(c, "video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, sub)
	c.JSON(http.StatusOK, s.extract)
}

func (s *Server) getAsset(c *gin.Context) {
	if f, ok := s.record(RouteAsset); ok {
		c.Data(f.status, "application/json", []byte(f.body))
		return
	}
	body := fmt.Sprintf("asset:%s:%s", c.Param("filename"), c.Query("output_dir"))
	c.Data(http.StatusOK, "application/octet-stream", []byte(body))
}

func readSubmission(c *gin.Context, field string) (Submission, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return Submission{}, err
	}

	files := form.File[field]
	if len(files) == 0 {
		return Submission{}, fmt.Errorf("no %s files provided", field)
	}

	sub := Submission{Fields: make(map[string]string)}
	for key, values := range form.Value {
		if len(values) > 0 {
			sub.Fields[key] = values[0]
		}
	}
	for _, fh := range files {
		sub.Files = append(sub.Files, fh.Filename)
	}
	return sub, nil
}
