package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/wallsight/internal/calibration"
	"github.com/MeKo-Tech/wallsight/internal/features"
	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/MeKo-Tech/wallsight/internal/project"
	"github.com/MeKo-Tech/wallsight/internal/rectify"
	"github.com/MeKo-Tech/wallsight/internal/relocalize"
	"github.com/MeKo-Tech/wallsight/internal/utils"
	"github.com/MeKo-Tech/wallsight/internal/version"
)

const (
	guidanceWiderCorners   = "Pick corners that are farther apart and form a convex shape."
	guidanceDetailedTarget = "Point the camera at a more detailed surface."
)

var errMissingField = errors.New("missing form field")

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Get().Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	if s.store != nil {
		if projects, err := s.store.List(r.Context()); err == nil {
			response.Projects = len(projects)
		} else {
			s.logger.Warn("health: listing projects failed", "error", err)
		}
	}
	s.writeJSON(w, http.StatusOK, response)
}

// rectifyHandler warps the uploaded quad into a PNG rectangle.
func (s *Server) rectifyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}
	if !s.parseForm(w, r) {
		return
	}

	img, ok := s.formImage(w, r, "image")
	if !ok {
		return
	}
	q, ok := s.formQuad(w, r, img, true)
	if !ok {
		return
	}

	out, ok := s.rectify(w, img, q)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := utils.EncodePNG(&buf, out.Image); err != nil {
		s.writeError(w, http.StatusInternalServerError, "encode_failed", err.Error(), "")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Rectified-Width", strconv.Itoa(out.Width))
	w.Header().Set("X-Rectified-Height", strconv.Itoa(out.Height))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Debug("writing rectified image failed", "error", err)
	}
}

// fingerprintHandler extracts a fingerprint from the uploaded image. When a
// quad is supplied the image is rectified first.
func (s *Server) fingerprintHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}
	if !s.parseForm(w, r) {
		return
	}

	img, ok := s.formImage(w, r, "image")
	if !ok {
		return
	}
	if r.FormValue("quad") != "" {
		q, ok := s.formQuad(w, r, img, true)
		if !ok {
			return
		}
		out, ok := s.rectify(w, img, q)
		if !ok {
			return
		}
		img = out.Image
	}

	fp, ok := s.extract(w, img)
	if !ok {
		return
	}

	format := r.FormValue("format")
	if format == "" {
		format = r.URL.Query().Get("format")
	}
	switch format {
	case "binary":
		data, err := fp.MarshalBinary()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "encode_failed", err.Error(), "")
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	default:
		s.writeJSON(w, http.StatusOK, fp)
	}
}

// matchHandler matches an uploaded frame against a fingerprint given inline,
// a stored project, or every stored project.
func (s *Server) matchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}
	if !s.parseForm(w, r) {
		return
	}

	frame, ok := s.formImage(w, r, "frame")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	start := time.Now()
	var resp MatchResponse
	var stored *features.Fingerprint

	switch {
	case r.FormValue("project_id") != "":
		p, ok := s.lookupProject(r.Context(), w, r.FormValue("project_id"))
		if !ok {
			return
		}
		stored = p.Fingerprint
		resp.ProjectID = p.ID

	default:
		fp, err := formFingerprint(r)
		switch {
		case errors.Is(err, errMissingField):
			s.matchAll(ctx, w, frame, start)
			return
		case err != nil:
			s.writeError(w, http.StatusBadRequest, "invalid_fingerprint", err.Error(), "")
			return
		}
		stored = fp
	}

	res, err := s.matcher.MatchContext(ctx, frame, stored)
	if err != nil {
		s.writeError(w, http.StatusGatewayTimeout, "timeout", "Matching did not finish in time", "")
		return
	}
	observeMatch("http", res.InlierCount, res.IsMatch, time.Since(start).Seconds())

	resp.Result = res
	if corners, ok := res.TargetCorners(stored); ok {
		resp.Corners = &corners
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// matchAll checks frame against every stored project and reports the best.
func (s *Server) matchAll(ctx context.Context, w http.ResponseWriter, frame image.Image, start time.Time) {
	if s.store == nil {
		s.writeError(w, http.StatusBadRequest, "missing_fingerprint",
			"Provide a fingerprint or project_id", "")
		return
	}
	projects, err := s.store.List(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "store_error", err.Error(), "")
		return
	}
	candidates := project.Fingerprints(projects)

	best, found, err := relocalize.MatchAny(ctx, s.matcher, frame, candidates, s.parallel)
	if err != nil {
		s.writeError(w, http.StatusGatewayTimeout, "timeout", "Matching did not finish in time", "")
		return
	}
	observeMatch("http_all", best.Result.InlierCount, found, time.Since(start).Seconds())

	resp := MatchResponse{Result: best.Result}
	if found {
		resp.ProjectID = best.ID
		if corners, ok := best.Result.TargetCorners(candidates[best.ID]); ok {
			resp.Corners = &corners
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// averageHandler averages calibration quaternions.
func (s *Server) averageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())
	var req AverageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_json", fmt.Sprintf("Invalid request body: %v", err), "")
		return
	}

	avg := calibration.Average(req.Samples)
	spread := calibration.Spread(req.Samples, avg)
	s.writeJSON(w, http.StatusOK, AverageResponse{
		Average:   avg,
		Count:     len(req.Samples),
		SpreadRad: spread,
		SpreadDeg: spread * 180 / math.Pi,
	})
}

func (s *Server) maxUploadBytes() int64 { return s.maxUploadMB * 1024 * 1024 }

// parseForm limits the body and parses a multipart (or urlencoded) form.
func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) bool {
	if r.ContentLength > 0 {
		uploadSizeBytes.Observe(float64(r.ContentLength))
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())

	err := r.ParseMultipartForm(s.maxUploadBytes())
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "too_large", "Upload too large", "")
			return false
		}
		s.writeError(w, http.StatusBadRequest, "invalid_form", "Failed to parse form data", "")
		return false
	}
	return true
}

// formImage decodes the uploaded image in field.
func (s *Server) formImage(w http.ResponseWriter, r *http.Request, field string) (image.Image, bool) {
	file, _, err := r.FormFile(field)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing_image", fmt.Sprintf("No %s file provided", field), "")
		return nil, false
	}
	defer func() { _ = file.Close() }()

	img, _, err := utils.DecodeImage(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_image", "Invalid image format", "")
		return nil, false
	}
	return img, true
}

// formQuad parses the "quad" field into pixel coordinates of img. With
// "normalized" set the corners are read as fractions of the image size.
func (s *Server) formQuad(w http.ResponseWriter, r *http.Request, img image.Image, required bool) (geometry.Quad, bool) {
	raw := r.FormValue("quad")
	if raw == "" {
		if required {
			s.writeError(w, http.StatusBadRequest, "missing_quad", "No quad provided",
				"Send four corners as x1,y1;x2,y2;x3,y3;x4,y4.")
			return geometry.Quad{}, false
		}
		b := img.Bounds()
		return geometry.Rect(0, 0, float64(b.Dx()), float64(b.Dy())), true
	}
	q, err := geometry.ParseQuad(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_quad", err.Error(),
			"Send four corners as x1,y1;x2,y2;x3,y3;x4,y4.")
		return geometry.Quad{}, false
	}
	if normalized, _ := strconv.ParseBool(r.FormValue("normalized")); normalized {
		b := img.Bounds()
		q = q.ToPixels(b.Dx(), b.Dy())
	}
	return q, true
}

// rectify runs the rectifier, mapping geometry failures to 422.
func (s *Server) rectify(w http.ResponseWriter, img image.Image, q geometry.Quad) (*rectify.Output, bool) {
	start := time.Now()
	out, err := s.rectifier.Apply(img, q)
	rectificationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		rectificationsTotal.WithLabelValues("error").Inc()
		if errors.Is(err, geometry.ErrDegenerateQuad) || errors.Is(err, rectify.ErrSingularTransform) {
			s.writeError(w, http.StatusUnprocessableEntity, "degenerate_quad", err.Error(), guidanceWiderCorners)
			return nil, false
		}
		s.writeError(w, http.StatusInternalServerError, "rectify_failed", err.Error(), "")
		return nil, false
	}
	rectificationsTotal.WithLabelValues("success").Inc()
	return out, true
}

// extract fingerprints img, answering 422 for untrackable surfaces.
func (s *Server) extract(w http.ResponseWriter, img image.Image) (*features.Fingerprint, bool) {
	fp, ok := s.extractor.Extract(img)
	if !ok {
		extractionsTotal.WithLabelValues("no_features").Inc()
		s.writeError(w, http.StatusUnprocessableEntity, "no_features",
			"No trackable features found in the image", guidanceDetailedTarget)
		return nil, false
	}
	extractionsTotal.WithLabelValues("success").Inc()
	fingerprintKeypoints.Observe(float64(fp.Len()))
	return fp, true
}

// formFingerprint reads a JSON fingerprint from the "fingerprint" field,
// given either as a value or as an uploaded file.
func formFingerprint(r *http.Request) (*features.Fingerprint, error) {
	var data []byte
	if v := r.FormValue("fingerprint"); v != "" {
		data = []byte(v)
	} else if file, _, err := r.FormFile("fingerprint"); err == nil {
		defer func() { _ = file.Close() }()
		if data, err = io.ReadAll(file); err != nil {
			return nil, err
		}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errMissingField
	}
	if !strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		fp := new(features.Fingerprint)
		if err := fp.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		return fp, nil
	}
	return features.UnmarshalJSONBytes(data)
}
