package server

import (
	"context"
	"errors"
	"net/http"

	goahttp "goa.design/goa/v3/http"

	"monuguard/internal/logger"
	"monuguard/internal/pipeline"
	"monuguard/internal/services"
)

const (
	uploadField       = "video"
	multipartOverhead = 1 << 20
)

// codec bundles the transport encoder, decoder and error handler
type codec struct {
	enc func(context.Context, http.ResponseWriter) goahttp.Encoder
	dec func(*http.Request) goahttp.Decoder
	eh  func(context.Context, http.ResponseWriter, error)
}

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func (c *codec) encode(ctx context.Context, w http.ResponseWriter, status int, v any) {
	enc := c.enc(ctx, w)
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	if err := enc.Encode(v); err != nil {
		c.eh(ctx, w, err)
	}
}

// encodeError maps service errors onto status codes
func (c *codec) encodeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, body := errorResponse(err)
	if status == http.StatusInternalServerError {
		logger.Error("Server", "%v", err)
	}
	c.encode(ctx, w, status, body)
}

func errorResponse(err error) (int, errorBody) {
	var (
		reportErr   *services.ReportError
		analysisErr *services.AnalysisError
		badReq      *badRequestError
		tooLarge    *http.MaxBytesError
	)

	switch {
	case errors.Is(err, services.ErrVideoNotFound):
		return http.StatusNotFound, errorBody{Error: "Video not found"}
	case errors.Is(err, services.ErrVideoFileMissing):
		return http.StatusNotFound, errorBody{Error: "Video file not found"}
	case errors.Is(err, services.ErrNoVideoFile):
		return http.StatusBadRequest, errorBody{Error: "No video file provided"}
	case errors.Is(err, services.ErrNotAVideo):
		return http.StatusBadRequest, errorBody{Error: "Only video files are allowed"}
	case errors.Is(err, services.ErrFileTooLarge), errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, errorBody{Error: "File too large"}
	case errors.Is(err, services.ErrAnalysisInProgress):
		return http.StatusConflict, errorBody{Error: "Analysis already in progress"}
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized, errorBody{Error: "Invalid credentials"}
	case errors.Is(err, pipeline.ErrInvalidInterval), errors.Is(err, pipeline.ErrInvalidConfidence):
		return http.StatusBadRequest, errorBody{Error: err.Error()}
	case errors.As(err, &badReq):
		return http.StatusBadRequest, errorBody{Error: badReq.msg}
	case errors.As(err, &reportErr):
		return http.StatusInternalServerError, errorBody{Error: reportErr.Message}
	case errors.As(err, &analysisErr):
		return http.StatusInternalServerError, errorBody{Error: "Analysis failed", Details: analysisErr.Err.Error()}
	default:
		return http.StatusInternalServerError, errorBody{Error: "Internal server error"}
	}
}
