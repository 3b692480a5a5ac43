// Package api serves a read-only HTTP view of the active training contract.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/proteintune/internal/config"
	"github.com/samcharles93/proteintune/internal/plan"
)

type Server struct {
	holder   *config.Holder
	planOpts []plan.Option
	clock    func() time.Time
	metrics  *metrics

	mu       sync.Mutex
	loadedAt time.Time
}

// NewServer serves holder's current configuration. planOpts are applied to
// every plan the server builds.
func NewServer(holder *config.Holder, planOpts ...plan.Option) *Server {
	s := &Server{
		holder:   holder,
		planOpts: planOpts,
		clock:    time.Now,
		metrics:  newMetrics(),
	}
	s.loadedAt = s.clock()
	if holder != nil {
		s.metrics.observe(holder.Current())
		holder.OnChange(func(cfg *config.Config) {
			s.touch()
			s.metrics.reloads.WithLabelValues("ok").Inc()
			s.metrics.observe(cfg)
		})
		holder.OnReject(func(error) {
			s.metrics.reloads.WithLabelValues("rejected").Inc()
		})
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/config", s.handleConfig)
	e.GET("/v1/stage", s.handleStage)
	e.GET("/v1/plan", s.handlePlan)
	e.POST("/v1/reload", s.handleReload)
	e.GET("/metrics", echo.WrapHandler(s.metrics.handler()))
}

func (s *Server) touch() {
	s.mu.Lock()
	s.loadedAt = s.clock()
	s.mu.Unlock()
}

func (s *Server) lastLoad() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadedAt
}

func (s *Server) current() (*config.Config, error) {
	if s.holder == nil {
		return nil, newUnavailable("no configuration loaded")
	}
	cfg := s.holder.Current()
	if cfg == nil {
		return nil, newUnavailable("no configuration loaded")
	}
	return cfg, nil
}

func (s *Server) handleHealth(c *echo.Context) error {
	cfg, err := s.current()
	if err != nil {
		return writeConfigError(c, "config unavailable", err)
	}
	stage, _ := config.ValidateStageConsistency(cfg)
	return c.JSON(http.StatusOK, HealthResponse{
		Status:     "ok",
		ConfigPath: s.holder.Path(),
		Stage:      stage.String(),
		LoadedAt:   s.lastLoad(),
	})
}

func (s *Server) handleConfig(c *echo.Context) error {
	cfg, err := s.current()
	if err != nil {
		return writeConfigError(c, "config unavailable", err)
	}
	doc, err := config.Document(cfg)
	if err != nil {
		return writeConfigError(c, "render config", err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleStage(c *echo.Context) error {
	cfg, err := s.current()
	if err != nil {
		return writeConfigError(c, "config unavailable", err)
	}
	stage, err := config.ValidateStageConsistency(cfg)
	if err != nil {
		return writeConfigError(c, "stage check failed", err)
	}
	flags, _ := cfg.Model.FreezeFlags()
	return c.JSON(http.StatusOK, StageResponse{
		Stage:              stage,
		Name:               stage.String(),
		Declared:           cfg.Model.Stage != nil,
		Flags:              flags,
		FreezeStrEncoder:   cfg.Model.StrEncoderFrozen(),
		EffectiveBatchSize: config.EffectiveBatchSize(cfg.Run),
	})
}

func (s *Server) handlePlan(c *echo.Context) error {
	cfg, err := s.current()
	if err != nil {
		return writeConfigError(c, "config unavailable", err)
	}
	opts := s.planOpts
	if id := c.QueryParam("run_id"); id != "" {
		opts = append(append([]plan.Option(nil), opts...), plan.WithRunID(id))
	}
	p, err := plan.Build(cfg, opts...)
	if err != nil {
		return writeConfigError(c, "plan rejected", err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handleReload(c *echo.Context) error {
	if s.holder == nil {
		return writeConfigError(c, "reload rejected", newUnavailable("no configuration loaded"))
	}
	cfg, err := s.holder.Reload()
	if err != nil {
		return writeConfigError(c, "reload rejected, previous config still active", err)
	}
	stage, _ := config.ValidateStageConsistency(cfg)
	return c.JSON(http.StatusOK, ReloadResponse{
		Status:     "reloaded",
		Stage:      stage.String(),
		ReloadedAt: s.lastLoad(),
	})
}
