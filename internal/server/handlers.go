package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"

	"github.com/dshills/cuecontrol/internal/codec"
	"github.com/dshills/cuecontrol/internal/control"
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type bindingResponse struct {
	Name     string `json:"name,omitempty"`
	Protocol string `json:"protocol"`
	Message  string `json:"message"`
	Action   string `json:"action,omitempty"`
	Cue      string `json:"cue,omitempty"`
	Scripted bool   `json:"scripted,omitempty"`
}

type routeResponse struct {
	Protocol string            `json:"protocol"`
	Message  string            `json:"message"`
	Bindings []bindingResponse `json:"bindings"`
}

type injectRequest struct {
	Protocol string `json:"protocol" binding:"required"`
	Message  string `json:"message" binding:"required"`
}

type injectResponse struct {
	Handled int      `json:"handled"`
	Errors  []string `json:"errors,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toBindingResponse(b control.Binding) bindingResponse {
	return bindingResponse{
		Name:     b.Name,
		Protocol: b.Protocol,
		Message:  b.Message,
		Action:   b.Action,
		Cue:      b.Cue,
		Scripted: b.IsScripted(),
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "ok", Version: s.version})
}

func (s *Server) handleRoutes(c *gin.Context) {
	routes := s.ctrl.Routes()
	resp := make([]routeResponse, 0, len(routes))
	for _, r := range routes {
		bindings := make([]bindingResponse, len(r.Bindings))
		for i, b := range r.Bindings {
			bindings[i] = toBindingResponse(b)
		}
		resp = append(resp, routeResponse{Protocol: r.Protocol, Message: r.Wire, Bindings: bindings})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleBindings(c *gin.Context) {
	bindings := s.ctrl.Bindings()
	resp := make([]bindingResponse, len(bindings))
	for i, b := range bindings {
		resp[i] = toBindingResponse(b)
	}
	c.JSON(http.StatusOK, resp)
}

// handleInject runs a message through the controller. Handler failures are
// reported in the body with status 200; only requests that cannot be
// dispatched at all are rejected.
func (s *Server) handleInject(c *gin.Context) {
	var req injectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	n, err := s.ctrl.Inject(c.Request.Context(), req.Protocol, req.Message)
	var perr *codec.ParseError
	switch {
	case errors.Is(err, codec.ErrUnknownProtocol):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	case errors.As(err, &perr), errors.Is(err, codec.ErrEmptyMessage), errors.Is(err, control.ErrNotConcrete):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, control.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	resp := injectResponse{Handled: n}
	for _, e := range multierr.Errors(err) {
		resp.Errors = append(resp.Errors, e.Error())
	}
	c.JSON(http.StatusOK, resp)
}
