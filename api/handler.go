package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"splitmix/config"
	"splitmix/media"
	"splitmix/task"
)

// Tasks is the orchestrator surface the handlers need; task.Manager
// satisfies it.
type Tasks interface {
	Start(ctx context.Context, req task.Request) (task.Task, <-chan task.Event, error)
	Get(id string) (task.Task, bool)
	List() []task.Task
	Cancel(id string) error
}

type Handler struct {
	// base outlives individual requests; tasks run under it.
	base   context.Context
	tasks  Tasks
	events *hub
	cfg    *config.Config
	logger *log.Logger
}

func NewHandler(base context.Context, tasks Tasks, cfg *config.Config, logger *log.Logger) *Handler {
	return &Handler{
		base:   base,
		tasks:  tasks,
		events: newHub(),
		cfg:    cfg,
		logger: logger,
	}
}

type TaskRequest struct {
	Reference      string `json:"reference" binding:"required"`
	Kind           string `json:"kind"`
	FilenamePrefix string `json:"filenamePrefix"`
	StemFormat     string `json:"stemFormat"`
}

// TaskResponse is a task snapshot plus download URLs for its artifacts,
// keyed by artifact name (converted, vocals, drums, bass, other, mix).
type TaskResponse struct {
	task.Task
	Downloads map[string]string `json:"downloads,omitempty"`
}

// handleCreateTask starts a task and returns before any stage runs.
func (h *Handler) handleCreateTask(c *gin.Context) {
	var req TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Kind == "" {
		req.Kind = string(task.KindConvert)
	}

	t, events, err := h.tasks.Start(h.base, task.Request{
		Reference:      req.Reference,
		Kind:           task.Kind(req.Kind),
		StemFormat:     media.Format(req.StemFormat),
		FilenamePrefix: req.FilenamePrefix,
	})
	switch {
	case errors.Is(err, task.ErrTaskActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, media.ErrInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create task", "details": err.Error()})
		return
	}

	h.events.track(t.ID, events)
	c.JSON(http.StatusAccepted, gin.H{"taskId": t.ID})
}

func (h *Handler) handleListTasks(c *gin.Context) {
	tasks := h.tasks.List()
	resp := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, h.response(c, t))
	}
	c.JSON(http.StatusOK, resp)
}

// response attaches download URLs for every artifact the task recorded.
func (h *Handler) response(c *gin.Context, t task.Task) TaskResponse {
	resp := TaskResponse{Task: t}
	named := map[string]string{"converted": t.Artifacts.Converted, "mix": t.Artifacts.Mix}
	for stem, p := range t.Artifacts.Stems {
		named[string(stem)] = p
	}

	baseURL := h.cfg.BaseURL
	if baseURL == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, c.Request.Host)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	for name, p := range named {
		if p == "" {
			continue
		}
		if resp.Downloads == nil {
			resp.Downloads = make(map[string]string)
		}
		resp.Downloads[name] = fmt.Sprintf("%s/api/v1/files/%s/%s", baseURL, t.ID, url.PathEscape(filepath.Base(p)))
	}
	return resp
}

func (h *Handler) handleGetTaskStatus(c *gin.Context) {
	t, found := h.tasks.Get(c.Param("taskId"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, h.response(c, t))
}

func (h *Handler) handleCancelTask(c *gin.Context) {
	err := h.tasks.Cancel(c.Param("taskId"))
	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Task cancellation requested"})
	}
}

// handleTaskEvents streams a task's events as server-sent events: the
// recorded history first, then live events until the terminal one.
func (h *Handler) handleTaskEvents(c *gin.Context) {
	id := c.Param("taskId")
	history, live, cancel, ok := h.events.subscribe(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No event stream for task"})
		return
	}
	defer cancel()
	h.logger.Debug("event stream opened", "task", id, "replayed", len(history))

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	for _, ev := range history {
		c.SSEvent(string(ev.Type), ev)
	}
	c.Writer.Flush()
	if live == nil {
		return
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-live:
			if !open {
				return
			}
			c.SSEvent(string(ev.Type), ev)
			c.Writer.Flush()
			if ev.Terminal() {
				return
			}
		}
	}
}

// handleGetFile serves an artifact recorded on the task. Only names the
// task produced are reachable.
func (h *Handler) handleGetFile(c *gin.Context) {
	t, found := h.tasks.Get(c.Param("taskId"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	name := c.Param("name")
	for _, p := range t.Artifacts.Files() {
		if filepath.Base(p) == name {
			c.FileAttachment(p, name)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
}
