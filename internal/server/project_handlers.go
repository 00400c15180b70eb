package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MeKo-Tech/wallsight/internal/calibration"
	"github.com/MeKo-Tech/wallsight/internal/project"
	"github.com/MeKo-Tech/wallsight/internal/utils"
)

// projectsHandler lists projects (GET) or creates one (POST).
func (s *Server) projectsHandler(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Project store not configured", "")
		return
	}

	switch r.Method {
	case http.MethodGet:
		projects, err := s.store.List(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "store_error", err.Error(), "")
			return
		}
		resp := ProjectListResponse{Projects: make([]ProjectSummary, len(projects)), Count: len(projects)}
		for i, p := range projects {
			resp.Projects[i] = summarize(p)
		}
		s.writeJSON(w, http.StatusOK, resp)

	case http.MethodPost:
		s.createProject(w, r)

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
	}
}

// createProject rectifies the uploaded quad, fingerprints the result and
// stores it together with the optional calibration.
func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "missing_name", "Project name is required", "")
		return
	}
	calib, err := parseCalibration(r.FormValue("calibration"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_calibration", err.Error(),
			"Send one quaternion {x,y,z,w} or a list of samples.")
		return
	}

	img, ok := s.formImage(w, r, "image")
	if !ok {
		return
	}
	q, ok := s.formQuad(w, r, img, false)
	if !ok {
		return
	}
	out, ok := s.rectify(w, img, q)
	if !ok {
		return
	}
	fp, ok := s.extract(w, out.Image)
	if !ok {
		return
	}

	b := img.Bounds()
	p := &project.Project{
		Name:         name,
		Quad:         q,
		SourceWidth:  b.Dx(),
		SourceHeight: b.Dy(),
		Fingerprint:  fp,
		Calibration:  calib,
		Target:       out.Image,
	}
	if err := s.store.Save(r.Context(), p); err != nil {
		if errors.Is(err, project.ErrInvalidProject) {
			s.writeError(w, http.StatusBadRequest, "invalid_project", err.Error(), "")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "store_error", err.Error(), "")
		return
	}

	s.logger.Info("project created", "id", p.ID, "name", p.Name, "keypoints", fp.Len())
	w.Header().Set("Location", "/projects/"+p.ID)
	s.writeJSON(w, http.StatusCreated, summarize(p))
}

// projectHandler shows (GET) or deletes (DELETE) one project.
func (s *Server) projectHandler(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Project store not configured", "")
		return
	}

	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		p, ok := s.lookupProject(r.Context(), w, id)
		if !ok {
			return
		}
		s.writeJSON(w, http.StatusOK, summarize(p))

	case http.MethodDelete:
		err := s.store.Delete(r.Context(), id)
		switch {
		case errors.Is(err, project.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "not_found", err.Error(), "")
		case err != nil:
			s.writeError(w, http.StatusInternalServerError, "store_error", err.Error(), "")
		default:
			s.logger.Info("project deleted", "id", id)
			w.WriteHeader(http.StatusNoContent)
		}

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
	}
}

// projectTargetHandler serves the stored rectified target as PNG.
func (s *Server) projectTargetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Project store not configured", "")
		return
	}

	p, ok := s.lookupProject(r.Context(), w, r.PathValue("id"))
	if !ok {
		return
	}
	if p.Target == nil {
		s.writeError(w, http.StatusNotFound, "no_target", "Project has no stored target image", "")
		return
	}

	var buf bytes.Buffer
	if err := utils.EncodePNG(&buf, p.Target); err != nil {
		s.writeError(w, http.StatusInternalServerError, "encode_failed", err.Error(), "")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// lookupProject loads id, answering 404 or 500 itself on failure.
func (s *Server) lookupProject(ctx context.Context, w http.ResponseWriter, id string) (*project.Project, bool) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Project store not configured", "")
		return nil, false
	}
	p, err := s.store.Get(ctx, id)
	switch {
	case errors.Is(err, project.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("project %q not found", id), "")
		return nil, false
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, "store_error", err.Error(), "")
		return nil, false
	}
	return p, true
}

// parseCalibration accepts a single quaternion or a list of samples, which
// are averaged. An empty value means no calibration.
func parseCalibration(raw string) (*calibration.Quaternion, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var samples []calibration.Quaternion
		if err := json.Unmarshal([]byte(raw), &samples); err != nil {
			return nil, fmt.Errorf("invalid calibration samples: %w", err)
		}
		if len(samples) == 0 {
			return nil, errors.New("calibration samples are empty")
		}
		avg := calibration.Average(samples)
		return &avg, nil
	}
	var q calibration.Quaternion
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return nil, fmt.Errorf("invalid calibration: %w", err)
	}
	if q.Norm() == 0 {
		return nil, errors.New("calibration quaternion has zero norm")
	}
	q = q.Normalize()
	return &q, nil
}
