// Package server maps the monuguard services onto HTTP.
//
// The layout follows goa's generated transport packages: New builds a Server
// holding one handler per method plus the list of mount points, Mount
// registers them on a goa muxer and Use applies per-method middleware.
package server

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	goahttp "goa.design/goa/v3/http"

	"monuguard/internal/services"
)

// VideoService is the video API backing the /api/videos routes
type VideoService interface {
	List(ctx context.Context) ([]*services.Video, error)
	Upload(ctx context.Context, originalName, mimetype string, body io.Reader) (*services.Video, error)
	Delete(ctx context.Context, id string) error
	Analyze(ctx context.Context, id string, req services.AnalyzeRequest) (*services.AnalysisResult, error)
}

// AuthService backs the /api/auth routes
type AuthService interface {
	Login(ctx context.Context, username, password string) (*services.LoginResult, error)
	Status(ctx context.Context) *services.AuthStatus
}

// HealthService backs the probes
type HealthService interface {
	Healthz(ctx context.Context) error
	Readyz(ctx context.Context) error
}

// Services groups what the server exposes. Metrics and Progress are plain
// handlers and may be nil.
type Services struct {
	Videos   VideoService
	Auth     AuthService
	Health   HealthService
	Metrics  http.Handler
	Progress http.Handler
}

// Server lists the monuguard endpoint HTTP handlers.
type Server struct {
	Mounts       []*MountPoint
	ListVideos   http.Handler
	UploadVideo  http.Handler
	DeleteVideo  http.Handler
	AnalyzeVideo http.Handler
	Login        http.Handler
	AuthStatus   http.Handler
	Healthz      http.Handler
	Readyz       http.Handler
	Metrics      http.Handler
	Progress     http.Handler
}

// MountPoint holds information about the mounted endpoints.
type MountPoint struct {
	// Method is the name of the service method served by the mounted HTTP handler.
	Method string
	// Verb is the HTTP method used to match requests to the mounted handler.
	Verb string
	// Pattern is the HTTP request path pattern used to match requests to the
	// mounted handler.
	Pattern string
}

// New instantiates HTTP handlers for all the monuguard service endpoints using
// the provided encoder and decoder. The handlers are mounted on the given mux
// using the HTTP verb and path defined in Mount. maxUploadBytes caps the size
// of a single upload request body.
func New(
	svc Services,
	mux goahttp.Muxer,
	decoder func(*http.Request) goahttp.Decoder,
	encoder func(context.Context, http.ResponseWriter) goahttp.Encoder,
	errhandler func(context.Context, http.ResponseWriter, error),
	maxUploadBytes int64,
) *Server {
	c := &codec{enc: encoder, dec: decoder, eh: errhandler}
	s := &Server{
		Mounts: []*MountPoint{
			{"ListVideos", "GET", "/api/videos"},
			{"UploadVideo", "POST", "/api/videos"},
			{"DeleteVideo", "DELETE", "/api/videos/{id}"},
			{"AnalyzeVideo", "POST", "/api/videos/{id}/analyze"},
			{"AnalyzeVideo", "POST", "/api/videos/analyze/{id}"},
			{"Login", "POST", "/api/auth/login"},
			{"AuthStatus", "GET", "/api/auth/status"},
			{"Healthz", "GET", "/health"},
			{"Readyz", "GET", "/ready"},
		},
		ListVideos:   newListVideosHandler(svc.Videos, c),
		UploadVideo:  newUploadVideoHandler(svc.Videos, c, maxUploadBytes),
		DeleteVideo:  newDeleteVideoHandler(svc.Videos, mux, c),
		AnalyzeVideo: newAnalyzeVideoHandler(svc.Videos, mux, c),
		Login:        newLoginHandler(svc.Auth, c),
		AuthStatus:   newAuthStatusHandler(svc.Auth, c),
		Healthz:      newHealthzHandler(svc.Health, c),
		Readyz:       newReadyzHandler(svc.Health, c),
		Metrics:      svc.Metrics,
		Progress:     svc.Progress,
	}
	if s.Metrics != nil {
		s.Mounts = append(s.Mounts, &MountPoint{"Metrics", "GET", "/metrics"})
	}
	if s.Progress != nil {
		s.Mounts = append(s.Mounts, &MountPoint{"Progress", "GET", "/ws/analysis/{id}"})
	}
	return s
}

// Service returns the name of the service served.
func (s *Server) Service() string { return "monuguard" }

// MethodNames returns the methods served.
func (s *Server) MethodNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range s.Mounts {
		if !seen[m.Method] {
			seen[m.Method] = true
			names = append(names, m.Method)
		}
	}
	return names
}

// Use wraps the server handlers with the given middleware.
func (s *Server) Use(m func(http.Handler) http.Handler) {
	s.ListVideos = m(s.ListVideos)
	s.UploadVideo = m(s.UploadVideo)
	s.DeleteVideo = m(s.DeleteVideo)
	s.AnalyzeVideo = m(s.AnalyzeVideo)
	s.Login = m(s.Login)
	s.AuthStatus = m(s.AuthStatus)
	s.Healthz = m(s.Healthz)
	s.Readyz = m(s.Readyz)
	if s.Metrics != nil {
		s.Metrics = m(s.Metrics)
	}
	if s.Progress != nil {
		s.Progress = m(s.Progress)
	}
}

// Mount configures the mux to serve the monuguard endpoints.
func Mount(mux goahttp.Muxer, h *Server) {
	mux.Handle("GET", "/api/videos", h.ListVideos.ServeHTTP)
	mux.Handle("POST", "/api/videos", h.UploadVideo.ServeHTTP)
	mux.Handle("DELETE", "/api/videos/{id}", h.DeleteVideo.ServeHTTP)
	mux.Handle("POST", "/api/videos/{id}/analyze", h.AnalyzeVideo.ServeHTTP)
	mux.Handle("POST", "/api/videos/analyze/{id}", h.AnalyzeVideo.ServeHTTP)
	mux.Handle("POST", "/api/auth/login", h.Login.ServeHTTP)
	mux.Handle("GET", "/api/auth/status", h.AuthStatus.ServeHTTP)
	mux.Handle("GET", "/health", h.Healthz.ServeHTTP)
	mux.Handle("GET", "/ready", h.Readyz.ServeHTTP)
	if h.Metrics != nil {
		mux.Handle("GET", "/metrics", h.Metrics.ServeHTTP)
	}
	if h.Progress != nil {
		mux.Handle("GET", "/ws/analysis/{id}", h.Progress.ServeHTTP)
	}
}

// newListVideosHandler creates a HTTP handler which loads the HTTP request and
// calls the "ListVideos" service method.
func newListVideosHandler(svc VideoService, c *codec) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		videos, err := svc.List(r.Context())
		if err != nil {
			c.encodeError(r.Context(), w, err)
			return
		}
		if videos == nil {
			videos = []*services.Video{}
		}
		c.encode(r.Context(), w, http.StatusOK, videos)
	})
}

// newUploadVideoHandler streams the "video" part of a multipart request into
// the "UploadVideo" service method.
func newUploadVideoHandler(svc VideoService, c *codec, maxUploadBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if maxUploadBytes > 0 {
			// Allow room for the multipart envelope around the file.
			r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+multipartOverhead)
		}

		mr, err := r.MultipartReader()
		if err != nil {
			c.encodeError(r.Context(), w, services.ErrNoVideoFile)
			return
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				c.encodeError(r.Context(), w, services.ErrNoVideoFile)
				return
			}
			if err != nil {
				c.encodeError(r.Context(), w, err)
				return
			}
			if part.FormName() != uploadField || part.FileName() == "" {
				part.Close()
				continue
			}

			mimetype := part.Header.Get("Content-Type")
			if mt, _, err := mime.ParseMediaType(mimetype); err == nil {
				mimetype = mt
			}
			video, err := svc.Upload(r.Context(), part.FileName(), mimetype, part)
			part.Close()
			if err != nil {
				c.encodeError(r.Context(), w, err)
				return
			}
			c.encode(r.Context(), w, http.StatusCreated, video)
			return
		}
	})
}

// newDeleteVideoHandler creates a HTTP handler which calls the "DeleteVideo"
// service method.
func newDeleteVideoHandler(svc VideoService, mux goahttp.Muxer, c *codec) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := svc.Delete(r.Context(), id); err != nil {
			c.encodeError(r.Context(), w, err)
			return
		}
		c.encode(r.Context(), w, http.StatusOK, map[string]string{"message": "Video deleted successfully"})
	})
}

// newAnalyzeVideoHandler decodes the optional analysis settings and calls the
// "AnalyzeVideo" service method.
func newAnalyzeVideoHandler(svc VideoService, mux goahttp.Muxer, c *codec) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var req services.AnalyzeRequest
		if r.ContentLength != 0 {
			if err := c.dec(r).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				c.encodeError(r.Context(), w, &badRequestError{"invalid request body: " + err.Error()})
				return
			}
		}

		res, err := svc.Analyze(r.Context(), id, req)
		if err != nil {
			c.encodeError(r.Context(), w, err)
			return
		}
		c.encode(r.Context(), w, http.StatusOK, res)
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// newLoginHandler creates a HTTP handler which calls the "Login" service method.
func newLoginHandler(svc AuthService, c *codec) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := c.dec(r).Decode(&req); err != nil {
			c.encodeError(r.Context(), w, &badRequestError{"invalid request body"})
			return
		}
		if req.Username == "" || req.Password == "" {
			c.encodeError(r.Context(), w, &badRequestError{"username and password are required"})
			return
		}

		res, err := svc.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			c.encodeError(r.Context(), w, err)
			return
		}
		c.encode(r.Context(), w, http.StatusOK, res)
	})
}

// newAuthStatusHandler creates a HTTP handler which calls the "AuthStatus"
// service method.
func newAuthStatusHandler(svc AuthService, c *codec) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.encode(r.Context(), w, http.StatusOK, svc.Status(r.Context()))
	})
}

// newHealthzHandler creates a HTTP handler for the liveness probe.
func newHealthzHandler(svc HealthService, c *codec) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Healthz(r.Context()); err != nil {
			c.encode(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
			return
		}
		c.encode(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// newReadyzHandler creates a HTTP handler for the readiness probe.
func newReadyzHandler(svc HealthService, c *codec) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Readyz(r.Context()); err != nil {
			c.encode(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		c.encode(r.Context(), w, http.StatusOK, map[string]string{"status": "ready"})
	})
}
