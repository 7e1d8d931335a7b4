// Package httpserver serves the chat API over plain HTTP with gin.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"ambubot/internal/usecase"
)

type QueryUseCase interface {
	Query(ctx context.Context, in usecase.QueryInput) (usecase.QueryOutput, error)
}

type LocationUseCase interface {
	Locate(ctx context.Context, in usecase.LocationInput) (usecase.LocationOutput, error)
}

// HTTPServer holds all dependencies for the HTTP server.
type HTTPServer struct {
	gin             *gin.Engine
	l               *slog.Logger
	port            int
	shutdownTimeout time.Duration

	query    QueryUseCase
	location LocationUseCase
}

// Config is the dependency bag passed to New.
type Config struct {
	Logger          *slog.Logger
	Port            int
	Mode            string
	ShutdownTimeout time.Duration

	Query    QueryUseCase
	Location LocationUseCase
}

func New(cfg Config) (*HTTPServer, error) {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	srv := &HTTPServer{
		gin:             gin.New(),
		l:               cfg.Logger,
		port:            cfg.Port,
		shutdownTimeout: cfg.ShutdownTimeout,
		query:           cfg.Query,
		location:        cfg.Location,
	}
	if err := srv.validate(); err != nil {
		return nil, err
	}
	srv.mapHandlers()
	return srv, nil
}

func (srv *HTTPServer) validate() error {
	if srv.l == nil {
		return errors.New("httpserver: logger is required")
	}
	if srv.port <= 0 {
		return errors.New("httpserver: port is required")
	}
	if srv.query == nil || srv.location == nil {
		return errors.New("httpserver: query and location use cases are required")
	}
	return nil
}
