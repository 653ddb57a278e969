// Package api serves the parking status, configuration and commands over
// HTTP.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"parking-service/internal/core"
	"parking-service/internal/logger"
	"parking-service/internal/parking"
	"parking-service/internal/types"
)

// ShutdownTimeout bounds how long Shutdown waits for in-flight requests.
const ShutdownTimeout = 5 * time.Second

// Controller is the part of core.ParkingSystem the API exposes.
type Controller interface {
	Status() types.Status
	Sensors() map[types.SensorName]float64
	ParkingConfig() parking.ParkingConfig
	UpdateParkingConfig(patch parking.ParkingConfigPatch) error
	HandleCommand(command string) error
}

var _ Controller = &core.ParkingSystem{}

type Server struct {
	ctrl   Controller
	logger *logger.Logger
	router *gin.Engine
	srv    *http.Server
}

func NewServer(ctrl Controller, listen string, l *logger.Logger) *Server {
	if l == nil {
		l = logger.NewLogger(nil, logger.LogLevelNone)
	}
	s := &Server{
		ctrl:   ctrl,
		logger: l.WithTag("api"),
	}
	s.router = s.setupRoutes()
	s.srv = &http.Server{
		Addr:              listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(s.logger.Entry()))
	router.GET("/status", s.getStatus)
	router.GET("/sensors", s.getSensors)
	router.GET("/config", s.getConfig)
	router.PUT("/config", s.setConfig)

	for _, name := range []string{
		core.CommandStart,
		core.CommandStop,
		core.CommandReset,
		core.CommandEmergencyStop,
	} {
		router.POST("/parking/"+name, s.command(name))
	}

	return router
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
// Listen errors are returned synchronously.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.srv.Addr)
	}
	s.logger.Infof("HTTP API listening on %s", ln.Addr())

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("HTTP server stopped: %v", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown() error {
	s.logger.Infof("Shutting down HTTP server")
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
