package support

import (
	"fmt"
	"log/slog"
	"net/http/httptest"

	"github.com/MeKo-Tech/wallsight/internal/project"
	"github.com/MeKo-Tech/wallsight/internal/server"
)

// HTTPTestServerWrapper wraps an in-process server for integration tests.
type HTTPTestServerWrapper struct {
	Server     *httptest.Server
	TestServer *server.Server
	Store      project.Store
}

// createTestHTTPServer serves the real handlers from an httptest server
// backed by a file store in the scenario temp dir.
func (testCtx *TestContext) createTestHTTPServer(cfg server.Config) error {
	store, err := project.NewFileStore(testCtx.TempPath("server-projects"))
	if err != nil {
		return fmt.Errorf("failed to create project store: %w", err)
	}

	srv := server.NewServer(cfg, store).WithLogger(slog.New(slog.DiscardHandler))
	testCtx.HTTPTestServer = &HTTPTestServerWrapper{
		Server:     httptest.NewServer(srv.Handler()),
		TestServer: srv,
		Store:      store,
	}
	return nil
}

// stopTestHTTPServer shuts the in-process server down.
func (testCtx *TestContext) stopTestHTTPServer() error {
	w := testCtx.HTTPTestServer
	testCtx.HTTPTestServer = nil
	w.Server.Close()
	return w.TestServer.Close()
}
