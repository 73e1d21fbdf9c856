package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"termin/internal/config"
	"termin/internal/domain"
	"termin/internal/models"
	"termin/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// Deps are the services behind the HTTP routes.
type Deps struct {
	Bookings      *service.BookingService
	Confirmations *service.ConfirmationService
	Templates     domain.TemplateRepository
	Staff         *StaffAuth
	AppName       string
	// ExportDir keeps a copy of every XLSX export when set.
	ExportDir string
	// Outbox and Backups are optional operator views.
	Outbox  FailedTasks
	Backups BackupLister
}

type FailedTasks interface {
	GetFailedOutboxTasks(ctx context.Context) ([]*models.OutboxTask, error)
}

type BackupLister interface {
	ListBackups() ([]string, error)
}

// HTTPServer serves the public booking form, the JSON intake API and the staff admin API.
type HTTPServer struct {
	cfg     config.APIConfig
	deps    Deps
	echo    *echo.Echo
	clients *apiClients
	log     zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "http").Logger()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = newPageRenderer()
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.WriteTimeout = 30 * time.Second
	e.IPExtractor = ipExtractor(cfg.HTTP.TrustedProxies)

	s := &HTTPServer{
		cfg:     cfg,
		deps:    deps,
		echo:    e,
		clients: newAPIClients(&cfg),
		log:     log,
	}

	e.Use(middleware.Recover())
	e.Use(RequestLogger(&log))
	s.registerRoutes()

	return s
}

func (s *HTTPServer) registerRoutes() {
	e := s.echo

	e.GET("/healthz", healthz)

	e.GET("/", s.showForm)
	e.POST("/", s.submitForm)
	e.GET("/success", s.showSuccess)

	v1 := e.Group("/api/v1")
	v1.POST("/bookings", s.createBooking)
	v1.GET("/slots/check", s.checkSlot)

	e.POST("/admin/login", s.login)

	admin := e.Group("/admin")
	read := s.requireStaff(permReadBookings)
	write := s.requireStaff(permWriteBookings)
	templates := s.requireStaff(permWriteTemplates)

	admin.GET("/bookings", s.listBookings, read)
	admin.GET("/bookings/:id", s.getBooking, read)
	admin.PUT("/bookings/:id", s.rescheduleBooking, write)
	admin.POST("/bookings/confirm", s.confirmBookings, write)
	admin.POST("/bookings/cancel", s.cancelBookings, write)
	admin.GET("/bookings/:id/receipt.pdf", s.receipt, read)
	admin.GET("/dashboard", s.dashboard, read)
	admin.GET("/export.xlsx", s.exportBookings, read)

	admin.GET("/templates", s.listTemplates, read)
	admin.POST("/templates", s.createTemplate, templates)
	admin.GET("/templates/:key", s.getTemplate, read)
	admin.PUT("/templates/:key", s.updateTemplate, templates)

	if s.deps.Outbox != nil {
		admin.GET("/outbox/failed", s.failedTasks, read)
	}
	if s.deps.Backups != nil {
		admin.GET("/backups", s.listBackups, read)
	}
}

// Handler exposes the router, mostly for httptest.
func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

func (s *HTTPServer) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.HTTP.Port)
	s.log.Info().Str("addr", addr).Msg("HTTP API listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ipExtractor trusts X-Forwarded-For only from the configured proxy ranges.
func ipExtractor(proxies []string) echo.IPExtractor {
	if len(proxies) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, p := range proxies {
		_, ipNet, err := net.ParseCIDR(p)
		if err != nil {
			continue
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

func healthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
