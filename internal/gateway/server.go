package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/eink-labs/chess-hlss/internal/obslog"
	"github.com/eink-labs/chess-hlss/internal/screen"
)

// inputRequest is the payload the terminal relay posts for every key press.
type inputRequest struct {
	DeviceID string `json:"device_id"`
	Button   string `json:"button"`
}

type errorResponse struct {
	Error string `json:"error"`
}

const requestIDKey = "request_id"

func requestID(ctx *fasthttp.RequestCtx) string {
	id, _ := ctx.UserValue(requestIDKey).(string)
	return id
}

// Server accepts terminal input over HTTP and exposes health and debug
// endpoints.
type Server struct {
	router   *screen.Router
	renderer *Renderer
	apiToken string

	srv *fasthttp.Server
}

func NewServer(router *screen.Router, renderer *Renderer, apiToken string) *Server {
	s := &Server{router: router, renderer: renderer, apiToken: apiToken}
	s.srv = &fasthttp.Server{
		Handler:            s.handle,
		Name:               "chess-hlss",
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       30 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}
	return s
}

// ListenAndServe blocks until Shutdown is called or the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	obslog.L().Info("input server listening", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	method := string(ctx.Method())

	// Every response carries a request id so relay logs and ours correlate.
	reqID := string(ctx.Request.Header.Peek("X-Request-Id"))
	if reqID == "" {
		reqID = uuid.NewString()
	}
	ctx.SetUserValue(requestIDKey, reqID)
	ctx.Response.Header.Set("X-Request-Id", reqID)

	switch {
	case path == "/health" && method == fasthttp.MethodGet:
		s.handleHealth(ctx)
	case path == "/api/inputs" && method == fasthttp.MethodPost:
		s.handleInput(ctx)
	case strings.HasPrefix(path, "/api/devices/") && strings.HasSuffix(path, "/frame.png") && method == fasthttp.MethodGet:
		s.handleFrame(ctx)
	default:
		s.writeError(ctx, fasthttp.StatusNotFound, "not found")
	}
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("application/json")
	ctx.SetBodyString(`{"status":"ok"}`)
}

func (s *Server) handleInput(ctx *fasthttp.RequestCtx) {
	if !s.authorized(ctx) {
		s.writeError(ctx, fasthttp.StatusUnauthorized, "invalid token")
		return
	}

	var req inputRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		s.writeError(ctx, fasthttp.StatusBadRequest, "malformed input payload")
		return
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		s.writeError(ctx, fasthttp.StatusBadRequest, "device_id is required")
		return
	}

	err := s.router.HandleInput(ctx, req.DeviceID, req.Button)
	switch {
	case errors.Is(err, screen.ErrUnknownButton):
		s.writeError(ctx, fasthttp.StatusBadRequest, err.Error())
	case err != nil:
		obslog.L().Error("input handling failed",
			zap.String("request_id", requestID(ctx)),
			zap.String("device_id", req.DeviceID),
			zap.String("button", req.Button),
			zap.Error(err),
		)
		s.writeError(ctx, fasthttp.StatusInternalServerError, "input handling failed")
	default:
		ctx.SetStatusCode(fasthttp.StatusAccepted)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"status":"accepted"}`)
	}
}

// handleFrame renders the device's current screen on demand. Meant for
// debugging a board from a browser; the panel itself receives pushes.
func (s *Server) handleFrame(ctx *fasthttp.RequestCtx) {
	if !s.authorized(ctx) {
		s.writeError(ctx, fasthttp.StatusUnauthorized, "invalid token")
		return
	}

	path := string(ctx.Path())
	deviceID := strings.TrimSuffix(strings.TrimPrefix(path, "/api/devices/"), "/frame.png")
	if deviceID == "" || strings.Contains(deviceID, "/") {
		s.writeError(ctx, fasthttp.StatusBadRequest, "bad device id")
		return
	}

	f, err := s.renderer.Frame(ctx, deviceID)
	if err != nil {
		obslog.L().Error("frame render failed",
			zap.String("request_id", requestID(ctx)),
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		s.writeError(ctx, fasthttp.StatusInternalServerError, "frame render failed")
		return
	}
	ctx.SetContentType("image/png")
	ctx.Response.Header.Set("X-Frame-Hash", f.Hash)
	ctx.SetBody(f.PNG)
}

func (s *Server) authorized(ctx *fasthttp.RequestCtx) bool {
	if s.apiToken == "" {
		return true
	}
	auth := string(ctx.Request.Header.Peek("Authorization"))
	return auth == "Bearer "+s.apiToken
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, status int, msg string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, err := json.Marshal(errorResponse{Error: msg})
	if err != nil {
		ctx.SetBodyString(fmt.Sprintf(`{"error":%q}`, msg))
		return
	}
	ctx.SetBody(body)
}
