// Package server is the HTTP control surface: campaign intake, progress
// polling, cancellation, and the quota/accounts read endpoints.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"mailblast/internal/accounts"
	"mailblast/internal/dispatch"
	"mailblast/internal/mail"
	"mailblast/internal/quota"
	"mailblast/internal/session"
	logx "mailblast/pkg/logx"
)

const defaultAddr = "127.0.0.1:8080"

func init() { gin.SetMode(gin.ReleaseMode) }

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// PerCampaignCap bounds the recipient list of one campaign.
	PerCampaignCap int
}

// Deps are the collaborators the handlers talk to.
type Deps struct {
	Registry   *accounts.Registry
	Quota      *quota.Governor
	Sessions   *session.Store
	Dispatcher *dispatch.Service
	Preflight  *mail.Preflight
}

type Service struct {
	cfg  Config
	deps Deps
	log  logx.Logger

	capMu sync.Mutex
	cap   int

	mu       sync.Mutex
	ln       net.Listener
	srv      *http.Server
	stopDone chan struct{}
}

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	s := &Service{cfg: cfg, deps: deps, log: log}
	s.ApplyCap(cfg.PerCampaignCap)
	return s
}

// ApplyCap updates the per-campaign recipient cap (hot reload).
func (s *Service) ApplyCap(cap int) {
	if cap <= 0 {
		cap = 50
	}
	s.capMu.Lock()
	s.cap = cap
	s.capMu.Unlock()
}

func (s *Service) campaignCap() int {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	return s.cap
}

// Handler builds the gin engine. Exposed for httptest.
func (s *Service) Handler() http.Handler {
	r := gin.New()
	r.Use(s.requestLog(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/accounts", s.listAccounts)
	r.GET("/quota", s.quotaStatus)
	r.POST("/campaigns", s.startCampaign)
	r.GET("/campaigns/:id/progress", s.progress)
	r.POST("/campaigns/:id/cancel", s.cancel)
	return r
}

func (s *Service) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)))
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		return nil
	}
	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.ln = ln
	s.srv = srv
	s.mu.Unlock()

	go func() {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped with error", logx.Any("err", err))
		}
	}()

	s.log.Info("http server started", logx.String("addr", ln.Addr().String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.srv == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()

	go func() {
		defer close(done)
		_ = srv.Shutdown(ctx)
		_ = srv.Close()
		s.log.Info("http server stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}
