package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"parking-service/internal/parking"
)

func (s *Server) getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.ctrl.Status())
}

func (s *Server) getSensors(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.ctrl.Sensors())
}

func (s *Server) getConfig(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.ctrl.ParkingConfig())
}

func (s *Server) setConfig(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	patch, err := parking.ParsePatch(body)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if err := s.ctrl.UpdateParkingConfig(patch); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, parking.ErrInvalidConfigValue) {
			status = http.StatusBadRequest
		}
		abort(c, status, err)
		return
	}

	s.logger.Infof("Parking config updated over HTTP")
	c.IndentedJSON(http.StatusOK, s.ctrl.ParkingConfig())
}

// command returns a handler for one of the parking commands. The response
// is the status right after the command was applied.
func (s *Server) command(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.ctrl.HandleCommand(name); err != nil {
			abort(c, http.StatusInternalServerError, err)
			return
		}
		c.IndentedJSON(http.StatusOK, s.ctrl.Status())
	}
}
