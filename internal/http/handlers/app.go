package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"photostudio/internal/domain"
	"photostudio/internal/imagecodec"
	"photostudio/internal/infra"
	"photostudio/internal/session"
	"photostudio/internal/templates"
)

type App struct {
	Sessions       *session.Registry
	Catalog        *templates.Catalog
	MaxUploadBytes int64
	Logger         *infra.Logger
}

func NewApp(sessions *session.Registry, catalog *templates.Catalog, maxUploadBytes int64, logger *infra.Logger) *App {
	if catalog == nil {
		catalog = templates.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = imagecodec.DefaultMaxBytes
	}
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &App{Sessions: sessions, Catalog: catalog, MaxUploadBytes: maxUploadBytes, Logger: logger}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// fail maps workflow errors onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, imagecodec.ErrTooLarge), errors.As(err, &maxErr):
		a.error(w, http.StatusRequestEntityTooLarge, "file_too_large", "The image is larger than the upload limit.")
	case errors.Is(err, domain.ErrUnsupportedInput):
		a.error(w, http.StatusUnsupportedMediaType, "unsupported_input", "The file could not be read as an image.")
	case errors.Is(err, domain.ErrUnknownTemplate):
		a.error(w, http.StatusUnprocessableEntity, "unknown_template", "No template with that id exists.")
	case errors.Is(err, domain.ErrPrecondition):
		a.error(w, http.StatusUnprocessableEntity, "precondition_failed", "Please upload an image and enter an instruction.")
	case errors.Is(err, domain.ErrAlreadyInFlight):
		a.error(w, http.StatusConflict, "already_in_flight", "An edit is already in progress.")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("http: unhandled error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
