package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"article_sync/internal/domain"
	"article_sync/internal/service"
)

type Sources interface {
	List(ctx context.Context) ([]domain.SourceConfig, error)
	Get(ctx context.Context, url string) (domain.SourceConfig, error)
	Add(ctx context.Context, candidate domain.SourceConfig) (domain.SourceConfig, error)
	Update(ctx context.Context, cfg domain.SourceConfig) (domain.SourceConfig, error)
	Remove(ctx context.Context, url string) error
}

type Runner interface {
	SyncSource(ctx context.Context, url string, trigger domain.Trigger) (domain.SyncResult, error)
	SyncAll(ctx context.Context, trigger domain.Trigger) domain.AggregateResult
	CronInfo(ctx context.Context) domain.CronInfo
	RecentLogs(ctx context.Context, n int) ([]domain.LogEntry, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, job domain.Job) error
}

type Scheduler interface {
	ScheduleSource(url string, at time.Time, run func(ctx context.Context, url string) error) (bool, error)
	CancelSource(url string) bool
}

type Handler struct {
	sources    Sources
	runner     Runner
	dispatcher Dispatcher
	scheduler  Scheduler
	logger     *slog.Logger
}

func NewHandler(sources Sources, runner Runner, dispatcher Dispatcher, scheduler Scheduler, logger *slog.Logger) *Handler {
	return &Handler{
		sources:    sources,
		runner:     runner,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		logger:     logger.With("component", "api"),
	}
}

type SourceRequest struct {
	URL        string `json:"url" binding:"required"`
	PostCount  int    `json:"post_count"`
	CategoryID int    `json:"category_id"`
	AuthorID   int    `json:"author_id"`
}

type SyncSourceRequest struct {
	URL string `json:"url" binding:"required"`
	// At schedules a one-shot run instead of queueing one now.
	At *time.Time `json:"at"`
}

type JobResponse struct {
	JobID  string `json:"job_id,omitempty"`
	Status string `json:"status"`
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ListSources(c *gin.Context) {
	sources, err := h.sources.List(c.Request.Context())
	if err != nil {
		h.logger.Error("error listing sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Settings error"})
		return
	}
	c.JSON(http.StatusOK, sources)
}

func (h *Handler) AddSource(c *gin.Context) {
	var req SourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := h.sources.Add(c.Request.Context(), domain.SourceConfig{
		URL:        req.URL,
		PostCount:  req.PostCount,
		CategoryID: req.CategoryID,
		AuthorID:   req.AuthorID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func (h *Handler) UpdateSource(c *gin.Context) {
	var req SourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := h.sources.Update(c.Request.Context(), domain.SourceConfig{
		URL:        req.URL,
		PostCount:  req.PostCount,
		CategoryID: req.CategoryID,
		AuthorID:   req.AuthorID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) RemoveSource(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url query parameter is required"})
		return
	}

	ctx := c.Request.Context()
	cfg, err := h.sources.Get(ctx, url)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.sources.Remove(ctx, cfg.URL); err != nil {
		h.writeError(c, err)
		return
	}
	if h.scheduler != nil && h.scheduler.CancelSource(cfg.URL) {
		h.logger.Info("cancelled scheduled sync of removed source", "source", cfg.URL)
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) SyncAll(c *gin.Context) {
	if wait(c) {
		c.JSON(http.StatusOK, h.runner.SyncAll(c.Request.Context(), domain.TriggerManual))
		return
	}
	h.dispatch(c, service.NewJob("", domain.TriggerManual))
}

func (h *Handler) SyncSource(c *gin.Context) {
	var req SyncSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	cfg, err := h.sources.Get(ctx, req.URL)
	if err != nil {
		h.writeError(c, err)
		return
	}

	switch {
	case req.At != nil:
		h.schedule(c, cfg.URL, *req.At)
	case wait(c):
		result, err := h.runner.SyncSource(ctx, cfg.URL, domain.TriggerManual)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	default:
		h.dispatch(c, service.NewJob(cfg.URL, domain.TriggerManual))
	}
}

func (h *Handler) GetCron(c *gin.Context) {
	c.JSON(http.StatusOK, h.runner.CronInfo(c.Request.Context()))
}

func (h *Handler) GetLogs(c *gin.Context) {
	n := 0
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid n"})
			return
		}
		n = parsed
	}

	entries, err := h.runner.RecentLogs(c.Request.Context(), n)
	if err != nil {
		h.logger.Error("error reading sync logs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Settings error"})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) dispatch(c *gin.Context, job domain.Job) {
	if err := h.dispatcher.Dispatch(c.Request.Context(), job); err != nil {
		if errors.Is(err, service.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("error dispatching job", "error", err, "job_id", job.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Dispatch error"})
		return
	}
	c.JSON(http.StatusAccepted, JobResponse{JobID: job.ID, Status: "queued"})
}

func (h *Handler) schedule(c *gin.Context, url string, at time.Time) {
	if h.scheduler == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "scheduling is not available"})
		return
	}

	armed, err := h.scheduler.ScheduleSource(url, at, func(ctx context.Context, url string) error {
		_, err := h.runner.SyncSource(ctx, url, domain.TriggerExternal)
		return err
	})
	if err != nil {
		h.logger.Error("error scheduling source", "error", err, "source", url)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Scheduler error"})
		return
	}
	if !armed {
		c.JSON(http.StatusOK, JobResponse{Status: "already scheduled"})
		return
	}
	c.JSON(http.StatusAccepted, JobResponse{Status: "scheduled"})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrSourceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrDuplicateSource), errors.Is(err, domain.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrConfiguration):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", "error", err, "path", c.FullPath())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

func wait(c *gin.Context) bool {
	v, _ := strconv.ParseBool(c.Query("wait"))
	return v
}
