// Package api exposes the last battery reading over HTTP on a unix socket
// so local tooling can scrape it without talking D-Bus.
package api

import (
	"context"
	"net"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ridgeline-sensing/bvd-gauge/divider"
)

// DefaultSocketPath is where the daemon listens.
const DefaultSocketPath = "/var/run/bvd-gauge.sock"

// Status is the JSON shape of a battery reading.
type Status struct {
	Millivolts int `json:"millivolts"`
	Raw        int `json:"raw"`
	Percent    int `json:"percent"`
}

// Server serves battery readings from a divider sensor.
type Server struct {
	sensor *divider.Sensor
	log    *logrus.Logger
	srv    *http.Server
	router *gin.Engine
}

func NewServer(sensor *divider.Sensor, log *logrus.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{sensor: sensor, log: log}

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/v1/status", s.getStatus)
	router.GET("/v1/voltage", s.getVoltage)
	router.GET("/v1/charge", s.getCharge)
	s.router = router
	s.srv = &http.Server{Handler: router}
	return s
}

// Router returns the underlying handler, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Serve listens on the unix socket until Shutdown is called. A stale socket
// from a previous run is removed first.
func (s *Server) Serve(socketPath string) error {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove stale socket")
	}
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return errors.Wrap(err, "failed to listen on unix socket")
	}
	if err := os.Chmod(socketPath, 0666); err != nil {
		return errors.Wrap(err, "failed to change socket permissions")
	}
	s.log.Infof("http server listening on %s", l.Addr().String())
	if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, Status{
		Millivolts: s.sensor.Millivolts(),
		Raw:        s.sensor.Raw(),
		Percent:    s.sensor.StateOfCharge(),
	})
}

func (s *Server) getVoltage(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.sensor.Millivolts())
}

func (s *Server) getCharge(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.sensor.StateOfCharge())
}
