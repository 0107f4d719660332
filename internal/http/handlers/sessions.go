package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"photostudio/internal/imagecodec"
	"photostudio/internal/session"
	"photostudio/internal/storage"
)

type imageInfo struct {
	MIMEType string `json:"mime_type"`
	Bytes    int    `json:"bytes"`
}

type resultInfo struct {
	Image     string `json:"image"`
	Narrative string `json:"narrative,omitempty"`
}

type sessionResponse struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	Instruction string      `json:"instruction"`
	Original    *imageInfo  `json:"original,omitempty"`
	Result      *resultInfo `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	Notice      string      `json:"notice,omitempty"`
	Generation  uint64      `json:"generation"`
	CanGenerate bool        `json:"can_generate"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type instructionRequest struct {
	Instruction string `json:"instruction"`
}

type templateRequest struct {
	TemplateID string `json:"template_id"`
}

func toSessionResponse(st session.State) sessionResponse {
	resp := sessionResponse{
		ID:          st.ID,
		Status:      st.Status.String(),
		Instruction: st.Instruction,
		Error:       st.Error,
		Notice:      st.Notice,
		Generation:  st.Generation,
		CanGenerate: st.CanGenerate(),
		UpdatedAt:   st.UpdatedAt,
	}
	if st.Original != nil {
		resp.Original = &imageInfo{MIMEType: st.Original.MIMEType, Bytes: len(st.Original.Data)}
	}
	if st.Result != nil {
		resp.Result = &resultInfo{Image: st.Result.EncodedImage, Narrative: st.Result.Narrative}
	}
	return resp
}

func (a *App) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	s, ok := a.Sessions.Get(id)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "session not found")
		return nil, false
	}
	return s, true
}

func (a *App) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := a.Sessions.Create()
	w.Header().Set("Location", "/v1/sessions/"+s.ID())
	a.json(w, http.StatusCreated, toSessionResponse(s.Snapshot()))
}

func (a *App) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, toSessionResponse(s.Snapshot()))
}

func (a *App) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if !a.Sessions.Delete(chi.URLParam(r, "id")) {
		a.error(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage accepts either a multipart form with an "image" field or the
// raw file as the request body.
func (a *App) UploadImage(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	// Multipart framing needs headroom beyond the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes+1<<20)

	var (
		body     io.Reader = r.Body
		declared           = r.Header.Get("Content-Type")
	)
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("image")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				a.fail(w, r, err)
				return
			}
			a.error(w, http.StatusBadRequest, "bad_request", "multipart field \"image\" is required")
			return
		}
		defer file.Close()
		body = file
		declared = header.Header.Get("Content-Type")
	}

	if err := s.LoadImage(body, declared, a.MaxUploadBytes); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toSessionResponse(s.Snapshot()))
}

func (a *App) SetInstruction(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req instructionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	s.SetInstruction(req.Instruction)
	a.json(w, http.StatusOK, toSessionResponse(s.Snapshot()))
}

func (a *App) ApplyTemplate(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.TemplateID) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "template_id is required")
		return
	}
	if err := s.ApplyTemplate(strings.TrimSpace(req.TemplateID)); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toSessionResponse(s.Snapshot()))
}

// Generate starts an edit. With ?wait=true the response is held until the
// edit finishes or the client goes away.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	call, err := s.Start(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		a.json(w, http.StatusAccepted, toSessionResponse(s.Snapshot()))
		return
	}
	st, err := call.Wait(r.Context())
	if err != nil {
		a.Logger.Debug().Err(err).Str("session_id", s.ID()).Msg("http: client left before edit finished")
		return
	}
	a.json(w, http.StatusOK, toSessionResponse(st))
}

func (a *App) CancelGenerate(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	if !s.Cancel() {
		a.error(w, http.StatusConflict, "not_in_flight", "No edit is in progress.")
		return
	}
	a.json(w, http.StatusOK, toSessionResponse(s.Snapshot()))
}

func (a *App) Original(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	st := s.Snapshot()
	if st.Original == nil {
		a.error(w, http.StatusNotFound, "not_found", "no image uploaded")
		return
	}
	a.file(w, st.Original.MIMEType, "", st.Original.Data)
}

func (a *App) Result(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	st := s.Snapshot()
	if st.Result == nil {
		a.error(w, http.StatusNotFound, "not_found", "no edited image yet")
		return
	}
	img, err := imagecodec.FromEncoded(st.Result.EncodedImage)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.file(w, img.MIMEType, storage.ResultFilename, img.Data)
}

func (a *App) ResultBundle(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	st := s.Snapshot()
	if st.Result == nil {
		a.error(w, http.StatusNotFound, "not_found", "no edited image yet")
		return
	}
	archive, err := storage.ResultBundle(st.Original, *st.Result, st.UpdatedAt)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.file(w, "application/zip", storage.BundleFilename, archive)
}

func (a *App) file(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if filename != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
