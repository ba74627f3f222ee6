package daemon

import (
	"context"
	"errors"
	"mirrorsync/internal/logger"
	"mirrorsync/internal/metrics"
	"mirrorsync/internal/model"
	"mirrorsync/internal/repository"
	"mirrorsync/internal/syncer"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type Server struct {
	echo     *echo.Echo
	manager  *JobManager
	jobRepo  *repository.JobRepository
	histRepo *repository.HistoryRepository
	port     int
	stopCh   chan struct{}
}

func NewServer(manager *JobManager, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(metrics.EchoMiddleware())

	s := &Server{
		echo:     e,
		manager:  manager,
		jobRepo:  repository.NewJobRepository(),
		histRepo: repository.NewHistoryRepository(),
		port:     port,
		stopCh:   make(chan struct{}, 1),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// For the entire daemon
	s.echo.GET("/status", s.handleStatus)
	s.echo.POST("/stop", s.handleStop)
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// For a specific job
	g := s.echo.Group("/jobs")
	g.GET("", s.handleListJobs)
	g.POST("", s.handleAddJob)
	g.POST("/end", s.handleEndJobs)
	g.DELETE("/:id", s.handleRemoveJob)

	s.echo.POST("/restore", s.handleRestore)

	// History
	s.echo.GET("/history", s.handleHistory)
	s.echo.GET("/history/stats", s.handleHistoryStats)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// ListenAndServe serves the API until Shutdown is called.
func (s *Server) ListenAndServe() error {
	addr := "127.0.0.1:" + strconv.Itoa(s.port)
	logger.Log.Info("daemon server started",
		zap.String("addr", addr))

	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) StopCh() <-chan struct{} {
	return s.stopCh
}

func errorJSON(c echo.Context, code int, err error) error {
	return c.JSON(code, map[string]string{"error": err.Error()})
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	if _, ok := errors.AsType[*syncer.ValidationError](err); ok {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrJobNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"jobs": s.manager.Snapshots(),
	})
}

func (s *Server) handleStop(c echo.Context) error {
	select {
	case s.stopCh <- struct{}{}:
	default:
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleListJobs(c echo.Context) error {
	jobs, err := s.jobRepo.GetAll()
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}

	snaps := make(map[uint]model.JobSnapshot)
	for _, snap := range s.manager.Snapshots() {
		snaps[snap.JobID] = snap
	}

	return c.JSON(http.StatusOK, map[string]any{
		"jobs":    jobs,
		"running": snaps,
	})
}

type jobRequest struct {
	Src  string   `json:"src"`
	Dsts []string `json:"dsts"`
}

func (s *Server) handleAddJob(c echo.Context) error {
	var req jobRequest
	if err := c.Bind(&req); err != nil || req.Src == "" || len(req.Dsts) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "src and dsts required"})
	}

	job, err := s.manager.AddJob(req.Src, req.Dsts)
	if err != nil {
		return errorJSON(c, statusFor(err), err)
	}

	return c.JSON(http.StatusCreated, job)
}

func (s *Server) handleEndJobs(c echo.Context) error {
	var req jobRequest
	if err := c.Bind(&req); err != nil || req.Src == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "src required"})
	}

	ids, err := s.manager.EndByPaths(req.Src, req.Dsts)
	if err != nil {
		return errorJSON(c, statusFor(err), err)
	}

	return c.JSON(http.StatusOK, map[string]any{"ended": ids})
}

func (s *Server) handleRemoveJob(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	if err := s.manager.RemoveJob(uint(id)); err != nil {
		return errorJSON(c, statusFor(err), err)
	}

	return c.NoContent(http.StatusNoContent)
}

type restoreRequest struct {
	Target string     `json:"target"`
	Backup string     `json:"backup"`
	Since  *time.Time `json:"since"`
}

type restoreResponse struct {
	RestoreResult
	Error string `json:"error,omitempty"`
}

func (s *Server) handleRestore(c echo.Context) error {
	var req restoreRequest
	if err := c.Bind(&req); err != nil || req.Target == "" || req.Backup == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "target and backup required"})
	}

	var since time.Time
	if req.Since != nil {
		since = *req.Since
	}

	res, err := s.manager.Restore(req.Target, req.Backup, since)
	if err != nil {
		if code := statusFor(err); code == http.StatusBadRequest {
			return errorJSON(c, code, err)
		}
		// Individual entries failed; the rest was restored.
		return c.JSON(http.StatusOK, restoreResponse{RestoreResult: res, Error: err.Error()})
	}

	return c.JSON(http.StatusOK, restoreResponse{RestoreResult: res})
}

func (s *Server) handleHistory(c echo.Context) error {
	if c.QueryParam("failed") == "true" {
		histories, err := s.histRepo.GetFailed()
		if err != nil {
			return errorJSON(c, http.StatusInternalServerError, err)
		}
		return c.JSON(http.StatusOK, histories)
	}

	n := 20
	if nStr := c.QueryParam("n"); nStr != "" {
		if parsed, err := strconv.Atoi(nStr); err == nil {
			n = parsed
		}
	}

	histories, err := s.histRepo.GetRecent(n)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, histories)
}

func (s *Server) handleHistoryStats(c echo.Context) error {
	stats, err := s.histRepo.GetStats()
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusOK, stats)
}
