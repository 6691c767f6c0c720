package response

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SSE writes text/event-stream frames straight to the gin writer.
type SSE struct {
	c       *gin.Context
	started bool
}

func NewSSE(c *gin.Context) *SSE { return &SSE{c: c} }

func (s *SSE) start() {
	if s.started {
		return
	}
	h := s.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.c.Status(http.StatusOK)
	s.started = true
}

// Event sends one named event with v encoded as JSON.
func (s *SSE) Event(name string, v any) error {
	s.start()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.c.Writer, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.c.Writer.Flush()
	return s.c.Request.Context().Err()
}

// Done sends the terminal data-only frame.
func (s *SSE) Done() {
	s.start()
	_, _ = fmt.Fprint(s.c.Writer, "data: [DONE]\n\n")
	s.c.Writer.Flush()
}

func (s *SSE) Started() bool { return s.started }
