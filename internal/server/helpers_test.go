package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/wallsight/internal/geometry"
	"github.com/MeKo-Tech/wallsight/internal/project"
	"github.com/MeKo-Tech/wallsight/internal/testutil"
)

// newTestServer returns a server backed by a file store in a temp dir.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := project.NewFileStore(t.TempDir())
	require.NoError(t, err)
	s := NewServer(Config{}, store)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// encodeImageToPNG encodes an image to PNG bytes.
func encodeImageToPNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// createMultipartRequest builds a multipart POST with the given files and fields.
func createMultipartRequest(t *testing.T, target string, files map[string][]byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for field, data := range files {
		part, err := writer.CreateFormFile(field, field+".png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// serve runs req through the routed handler.
func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// storeProject saves a project fingerprinted from img directly in the store.
func storeProject(t *testing.T, s *Server, name string, img image.Image) *project.Project {
	t.Helper()
	fp, ok := s.extractor.Extract(img)
	require.True(t, ok)
	b := img.Bounds()
	p := &project.Project{
		Name:         name,
		Quad:         geometry.Rect(0, 0, float64(b.Dx()), float64(b.Dy())),
		SourceWidth:  b.Dx(),
		SourceHeight: b.Dy(),
		Fingerprint:  fp,
		Target:       img,
	}
	require.NoError(t, s.store.Save(context.Background(), p))
	return p
}

func texturedTarget(seed uint64) image.Image {
	return testutil.GenerateTexturedImage(320, 240, seed)
}
