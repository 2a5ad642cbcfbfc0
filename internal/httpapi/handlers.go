package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/diagramcraft/pkg/buildinfo"
	"github.com/matzehuels/diagramcraft/pkg/controller"
	derrors "github.com/matzehuels/diagramcraft/pkg/errors"
	"github.com/matzehuels/diagramcraft/pkg/project"
	"github.com/matzehuels/diagramcraft/pkg/session"
	"github.com/matzehuels/diagramcraft/pkg/templates"
)

// =============================================================================
// Projects
// =============================================================================

type createRequest struct {
	Name     string `json:"name"`
	Template string `json:"template,omitempty"`
}

type renameRequest struct {
	Name string `json:"name"`
}

type selectResponse struct {
	Project   *project.Project `json:"project"`
	RequestID uint64           `json:"request_id"`
	Session   *sessionResponse `json:"session,omitempty"`
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	ps, err := s.ctrl.Store().List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ps == nil {
		ps = []*project.Project{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": ps, "active_id": s.ctrl.ActiveID()})
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !s.decode(w, r, &req) {
		return
	}

	var (
		p   *project.Project
		err error
	)
	if req.Template != "" {
		tpl, terr := templates.Get(req.Template)
		if terr != nil {
			s.writeError(w, terr)
			return
		}
		p, err = s.ctrl.CreateWithSource(r.Context(), req.Name, tpl.Source)
	} else {
		p, err = s.ctrl.Create(r.Context(), req.Name)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.ctrl.Store().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) renameProject(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.ctrl.Rename(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) selectProject(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.ctrl.Select(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	p, err := s.ctrl.Active(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := selectResponse{Project: p, RequestID: ticket.ID}
	if wantWait(r) {
		if _, err := ticket.Wait(r.Context()); err != nil {
			s.writeError(w, err)
			return
		}
		sr := s.sessionState()
		resp.Session = &sr
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	versions, err := s.ctrl.Store().History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *Server) restore(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version <= 0 {
		s.writeError(w, derrors.New(derrors.ErrCodeInvalidInput, "version must be a positive number"))
		return
	}
	p, ticket, err := s.ctrl.Restore(r.Context(), chi.URLParam(r, "id"), version)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := selectResponse{Project: p}
	if ticket != nil {
		resp.RequestID = ticket.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Session
// =============================================================================

type sourceRequest struct {
	Source *string `json:"source"`
}

type sessionResponse struct {
	controller.Status
	HasArtifact bool `json:"has_artifact"`
}

func (s *Server) sessionState() sessionResponse {
	st := s.ctrl.Status()
	return sessionResponse{Status: st, HasArtifact: st.Session.HasArtifact()}
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessionState())
}

func (s *Server) editSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Source == nil {
		s.writeError(w, derrors.New(derrors.ErrCodeInvalidInput, "source is required"))
		return
	}
	s.ctrl.Edit(*req.Source)
	writeJSON(w, http.StatusOK, s.sessionState())
}

func (s *Server) render(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.ctrl.Render(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !wantWait(r) {
		writeJSON(w, http.StatusAccepted, map[string]any{"request_id": ticket.ID, "state": session.Rendering})
		return
	}
	if _, err := ticket.Wait(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionState())
}

func (s *Server) commit(w http.ResponseWriter, r *http.Request) {
	p, err := s.ctrl.Commit(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// =============================================================================
// Export and templates
// =============================================================================

func (s *Server) exportDiagram(w http.ResponseWriter, r *http.Request) {
	d, err := s.export.Export(r.Context(), chi.URLParam(r, "format"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", d.MIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(d.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(d.Data)
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"templates": templates.All(),
		"arrows":    templates.Arrows,
	})
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := templates.Get(chi.URLParam(r, "key"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": buildinfo.Version})
}

// =============================================================================
// Helpers
// =============================================================================

func wantWait(r *http.Request) bool {
	v := r.URL.Query().Get("wait")
	return v == "1" || v == "true"
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, derrors.Wrap(derrors.ErrCodeInvalidInput, err, "invalid JSON body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code  derrors.Code `json:"code"`
	Error string       `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := derrors.GetCode(err)
	if code == "" {
		code = derrors.ErrCodeInternal
	}
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Code: code, Error: derrors.UserMessage(err)})
}

func statusFor(code derrors.Code) int {
	switch code {
	case derrors.ErrCodeEmptyName, derrors.ErrCodeInvalidInput, derrors.ErrCodeInvalidFormat, derrors.ErrCodeInvalidEngine:
		return http.StatusBadRequest
	case derrors.ErrCodeProjectNotFound, derrors.ErrCodeVersionNotFound, derrors.ErrCodeTemplateNotFound:
		return http.StatusNotFound
	case derrors.ErrCodeNoArtifact, derrors.ErrCodeNoActiveProject:
		return http.StatusConflict
	case derrors.ErrCodeUnsupported:
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}
