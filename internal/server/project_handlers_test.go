package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/wallsight/internal/calibration"
	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/MeKo-Tech/wallsight/internal/testutil"
)

func createProjectRequest(t *testing.T, img image.Image, fields map[string]string) *http.Request {
	t.Helper()
	return createMultipartRequest(t, "/projects", map[string][]byte{"image": encodeImageToPNG(t, img)}, fields)
}

func TestProjectsHandler_Lifecycle(t *testing.T) {
	s := newTestServer(t)
	src := texturedTarget(31)
	calib := calibration.FromAxisAngle(1, 0, 0, 0.3)
	calibJSON, err := json.Marshal(calib)
	require.NoError(t, err)

	// Create
	w := serve(s, createProjectRequest(t, src, map[string]string{
		"name":        "living room",
		"quad":        "20,10;300,10;300,230;20,230",
		"calibration": string(calibJSON),
	}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created ProjectSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "/projects/"+created.ID, w.Header().Get("Location"))
	assert.Equal(t, "living room", created.Name)
	assert.Equal(t, 320, created.SourceWidth)
	assert.Equal(t, 280, created.TargetWidth)
	assert.Equal(t, 220, created.TargetHeight)
	assert.Positive(t, created.Keypoints)
	require.NotNil(t, created.Calibration)
	assert.Less(t, calibration.Angle(*created.Calibration, calib), 1e-9)

	// List
	w = serve(s, httptest.NewRequest(http.MethodGet, "/projects", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list ProjectListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, created.ID, list.Projects[0].ID)

	// Show
	w = serve(s, httptest.NewRequest(http.MethodGet, "/projects/"+created.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var shown ProjectSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &shown))
	assert.Equal(t, created.Keypoints, shown.Keypoints)
	assert.Equal(t, created.Quad, shown.Quad)

	// Target image
	w = serve(s, httptest.NewRequest(http.MethodGet, "/projects/"+created.ID+"/target.png", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	target, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 280, 220), target.Bounds())

	// Delete
	w = serve(s, httptest.NewRequest(http.MethodDelete, "/projects/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = serve(s, httptest.NewRequest(http.MethodGet, "/projects/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = serve(s, httptest.NewRequest(http.MethodDelete, "/projects/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProjectsHandler_CalibrationSamples(t *testing.T) {
	s := newTestServer(t)
	q := calibration.FromAxisAngle(0, 1, 0, 0.5)
	samples, err := json.Marshal([]calibration.Quaternion{q, q.Negate(), q})
	require.NoError(t, err)

	w := serve(s, createProjectRequest(t, texturedTarget(32), map[string]string{
		"name":        "stairs",
		"quad":        "0,0;320,0;320,240;0,240",
		"calibration": string(samples),
	}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created ProjectSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotNil(t, created.Calibration)
	assert.Less(t, calibration.Angle(*created.Calibration, q), 1e-9)
}

func TestProjectsHandler_DefaultsToWholeImage(t *testing.T) {
	s := newTestServer(t)

	w := serve(s, createProjectRequest(t, texturedTarget(35), map[string]string{"name": "whole wall"}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created ProjectSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, geometry.Rect(0, 0, 320, 240), created.Quad)
	assert.Equal(t, 320, created.TargetWidth)
	assert.Equal(t, 240, created.TargetHeight)
}

func TestProjectsHandler_CreateErrors(t *testing.T) {
	s := newTestServer(t)
	textured := texturedTarget(33)
	blank := testutil.CreateTestImage(200, 200, color.White)

	tests := []struct {
		name   string
		img    image.Image
		fields map[string]string
		status int
		code   string
	}{
		{name: "missing name", img: textured, fields: map[string]string{"quad": "0,0;10,0;10,10;0,10"},
			status: http.StatusBadRequest, code: "missing_name"},
		{name: "bad calibration", img: textured, fields: map[string]string{"name": "x", "quad": "0,0;100,0;100,100;0,100", "calibration": "{"},
			status: http.StatusBadRequest, code: "invalid_calibration"},
		{name: "zero calibration", img: textured, fields: map[string]string{"name": "x", "quad": "0,0;100,0;100,100;0,100", "calibration": `{"x":0,"y":0,"z":0,"w":0}`},
			status: http.StatusBadRequest, code: "invalid_calibration"},
		{name: "degenerate quad", img: textured, fields: map[string]string{"name": "x", "quad": "0,0;100,100;0,0;100,100"},
			status: http.StatusUnprocessableEntity, code: "degenerate_quad"},
		{name: "untrackable surface", img: blank, fields: map[string]string{"name": "x", "quad": "0,0;200,0;200,200;0,200"},
			status: http.StatusUnprocessableEntity, code: "no_features"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, createProjectRequest(t, tt.img, tt.fields))
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Error)
		})
	}

	projects, err := s.store.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestProjectHandlers_Errors(t *testing.T) {
	s := newTestServer(t)

	w := serve(s, httptest.NewRequest(http.MethodGet, "/projects/not-a-uuid", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodPost, "/projects/8a1d3c5e-2b4f-4d6a-9c8e-0f1a2b3c4d5e", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	p := storeProject(t, s, "no preview", texturedTarget(34))
	p.Target = nil
	require.NoError(t, s.store.Save(t.Context(), p))
	w = serve(s, httptest.NewRequest(http.MethodGet, "/projects/"+p.ID+"/target.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no_target", decodeError(t, w).Error)
}

func TestProjectHandlers_NoStore(t *testing.T) {
	s := NewServer(Config{}, nil)
	for _, path := range []string{"/projects", "/projects/8a1d3c5e-2b4f-4d6a-9c8e-0f1a2b3c4d5e", "/projects/8a1d3c5e-2b4f-4d6a-9c8e-0f1a2b3c4d5e/target.png"} {
		w := serve(s, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}
