// Package httpapi serves prefix lookups from a bigcty.Updater over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/andreiashu/bigcty"
	"github.com/andreiashu/bigcty/internal/config"
)

// maxSuggestions caps the "did you mean" list on a 404.
const maxSuggestions = 5

// suggestDistance is the edit distance used for suggestions.
const suggestDistance = 2

// Server is the HTTP front end of an Updater.
type Server struct {
	cfg     config.ServerConfig
	e       *echo.Echo
	updater *bigcty.Updater
	log     *slog.Logger
}

// New builds a Server and registers its routes.
func New(cfg config.ServerConfig, u *bigcty.Updater, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	if logger.Enabled(context.Background(), slog.LevelDebug) {
		e.Logger.SetLevel(log.DEBUG)
	} else {
		e.Logger.SetLevel(log.WARN)
	}

	s := &Server{
		cfg:     cfg,
		e:       e,
		updater: u,
		log:     logger.With("component", "httpapi"),
	}

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			switch {
			case v.Status >= 500:
				level = slog.LevelError
			case v.Status >= 400:
				level = slog.LevelWarn
			}
			s.log.LogAttrs(c.Request().Context(), level, "request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.e.Group("/v1")
	v1.GET("/version", s.getVersion)
	// Wildcard so portable calls like "HB9XYZ/P" survive routing.
	v1.GET("/prefixes/*", s.getPrefix)
	v1.POST("/update", s.postUpdate)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

// Start listens on the configured address and blocks until the server stops.
// It returns nil after a clean Shutdown.
func (s *Server) Start() error {
	s.log.Info("listening", slog.String("addr", s.cfg.Addr()))
	if err := s.e.Start(s.cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// VersionResponse is the body of GET /v1/version.
type VersionResponse struct {
	Version   string `json:"version"`
	Formatted string `json:"formatted"`
	Entries   int    `json:"entries"`
}

// PrefixResponse is the body of GET /v1/prefixes/{prefix}.
type PrefixResponse struct {
	Prefix        string  `json:"prefix"`
	Entity        string  `json:"entity"`
	CQZone        int     `json:"cq"`
	ITUZone       int     `json:"itu"`
	Continent     string  `json:"continent"`
	Latitude      float64 `json:"lat"`
	Longitude     float64 `json:"long"`
	UTCOffset     float64 `json:"tz"`
	PrefixLength  int     `json:"len"`
	PrimaryPrefix string  `json:"primary_pfx"`
	ExactMatch    bool    `json:"exact_match"`

	// Position is the entity location with the usual east-positive longitude,
	// unlike Longitude which keeps the cty.dat west-positive sign.
	Position Position `json:"position"`
}

// Position is a point in signed degrees, north and east positive.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NotFoundResponse is returned for unknown prefixes.
type NotFoundResponse struct {
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
}

// UpdateResponse is the body of POST /v1/update.
type UpdateResponse struct {
	Updated bool   `json:"updated"`
	Version string `json:"version"`
}

func (s *Server) getVersion(c echo.Context) error {
	st := s.updater.Store()
	return c.JSON(http.StatusOK, VersionResponse{
		Version:   st.Version(),
		Formatted: st.FormattedVersion(),
		Entries:   st.Len(),
	})
}

func (s *Server) getPrefix(c echo.Context) error {
	prefix := strings.TrimSpace(c.Param("*"))
	st := s.updater.Store()

	rec, err := st.Get(prefix)
	if errors.Is(err, bigcty.ErrNotFound) && strings.ToUpper(prefix) != prefix {
		// Prefixes are stored upper case apart from a few suffixes like "/s".
		prefix = strings.ToUpper(prefix)
		rec, err = st.Get(prefix)
	}
	if err != nil {
		suggestions := st.Similar(prefix, suggestDistance)
		if len(suggestions) > maxSuggestions {
			suggestions = suggestions[:maxSuggestions]
		}
		if suggestions == nil {
			suggestions = []string{}
		}
		return c.JSON(http.StatusNotFound, NotFoundResponse{
			Message:     "prefix not found",
			Suggestions: suggestions,
		})
	}

	return c.JSON(http.StatusOK, PrefixResponse{
		Prefix:        prefix,
		Entity:        rec.Entity,
		CQZone:        rec.CQZone,
		ITUZone:       rec.ITUZone,
		Continent:     rec.Continent,
		Latitude:      rec.Latitude,
		Longitude:     rec.Longitude,
		UTCOffset:     rec.UTCOffset,
		PrefixLength:  rec.PrefixLength,
		PrimaryPrefix: rec.PrimaryPrefix,
		ExactMatch:    rec.ExactMatch,
		Position:      positionOf(rec),
	})
}

func positionOf(rec bigcty.Record) Position {
	ll := rec.LatLng()
	return Position{Lat: ll.Lat.Degrees(), Lng: ll.Lng.Degrees()}
}

func (s *Server) postUpdate(c echo.Context) error {
	ctx := c.Request().Context()
	updated, err := s.updater.Update(ctx)
	switch {
	case err == nil:
	case errors.Is(err, bigcty.ErrRetrieval):
		s.log.WarnContext(ctx, "update failed", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusBadGateway, "release retrieval failed")
	case errors.Is(err, bigcty.ErrFormat):
		s.log.WarnContext(ctx, "update failed", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "release could not be parsed")
	default:
		s.log.ErrorContext(ctx, "update failed", slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "update failed")
	}

	return c.JSON(http.StatusOK, UpdateResponse{
		Updated: updated,
		Version: s.updater.Store().Version(),
	})
}
