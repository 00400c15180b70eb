package support

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/wallsight/internal/relocalize"
	"github.com/MeKo-Tech/wallsight/internal/server"
)

func (testCtx *TestContext) aWallsightServerIsRunning() error {
	return testCtx.createTestHTTPServer(server.Config{
		CORSOrigin: "*",
		Scanner:    relocalize.Config{Interval: 50 * time.Millisecond},
	})
}

func (testCtx *TestContext) aWallsightServerIsRunningWithCORSOrigin(origin string) error {
	return testCtx.createTestHTTPServer(server.Config{CORSOrigin: origin})
}

func (testCtx *TestContext) aRateLimitedServerIsRunning(perMinute int) error {
	return testCtx.createTestHTTPServer(server.Config{
		RateLimit: server.RateLimitConfig{RequestsPerMinute: perMinute},
	})
}

func (testCtx *TestContext) iStartTheServerWith(command string) error {
	return testCtx.StartServer(command)
}

func (testCtx *TestContext) iSendSIGTERMToTheServer() error {
	if testCtx.ServerProcess == nil {
		return errors.New("no server process running")
	}
	return testCtx.ServerProcess.Signal(syscall.SIGTERM)
}

// theServerShouldShutdownGracefully waits for the process to exit cleanly.
func (testCtx *TestContext) theServerShouldShutdownGracefully() error {
	if testCtx.ServerProcess == nil {
		return errors.New("no server process running")
	}
	done := make(chan error, 1)
	go func() {
		state, err := testCtx.ServerProcess.Wait()
		if err == nil && !state.Success() {
			err = fmt.Errorf("server exited with %s", state)
		}
		done <- err
	}()

	select {
	case err := <-done:
		testCtx.ServerProcess = nil
		return err
	case <-time.After(10 * time.Second):
		return errors.New("server did not shut down within 10s")
	}
}

// do sends req and records status, headers and body.
func (testCtx *TestContext) do(req *http.Request) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		testCtx.LastError = err
		testCtx.LastExitCode = 1
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = body
	testCtx.LastOutput = string(body)
	testCtx.LastStdout = string(body)
	testCtx.LastError = nil
	testCtx.LastExitCode = 0
	if resp.StatusCode >= 400 {
		testCtx.LastExitCode = 1
		testCtx.LastError = fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	testCtx.LastHTTPHeaders = make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) > 0 {
			testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(key)] = values[0]
		}
	}
	return nil
}

func (testCtx *TestContext) makeHTTPRequest(method, endpoint string) error {
	endpoint = testCtx.substituteVariables(endpoint)
	req, err := http.NewRequest(method, testCtx.GetServerURL()+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if method == http.MethodOptions {
		req.Header.Set("Origin", "http://example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	return testCtx.do(req)
}

func (testCtx *TestContext) iGET(endpoint string) error {
	return testCtx.makeHTTPRequest(http.MethodGet, endpoint)
}

func (testCtx *TestContext) iDELETE(endpoint string) error {
	return testCtx.makeHTTPRequest(http.MethodDelete, endpoint)
}

func (testCtx *TestContext) iMakeAnOPTIONSRequestTo(endpoint string) error {
	return testCtx.makeHTTPRequest(http.MethodOptions, endpoint)
}

// iPOSTFormTo posts a multipart form. Table rows are field/value pairs; a
// value starting with "@" uploads that file from the scenario temp dir.
func (testCtx *TestContext) iPOSTFormTo(endpoint string, table *godog.Table) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for i, row := range table.Rows {
		if len(row.Cells) != 2 {
			return fmt.Errorf("row %d: expected field and value", i+1)
		}
		field := row.Cells[0].Value
		value := testCtx.substituteVariables(row.Cells[1].Value)
		if i == 0 && field == "field" {
			continue
		}

		if name, ok := strings.CutPrefix(value, "@"); ok {
			data, err := os.ReadFile(testCtx.resolvePath(name)) //nolint:gosec // G304: scenario-controlled path
			if err != nil {
				return fmt.Errorf("failed to read upload %s: %w", name, err)
			}
			part, err := mw.CreateFormFile(field, filepath.Base(name))
			if err != nil {
				return err
			}
			if _, err := part.Write(data); err != nil {
				return err
			}
			continue
		}
		if err := mw.WriteField(field, value); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, testCtx.GetServerURL()+testCtx.substituteVariables(endpoint), &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return testCtx.do(req)
}

func (testCtx *TestContext) iPOSTJSONTo(endpoint string, doc *godog.DocString) error {
	req, err := http.NewRequest(http.MethodPost, testCtx.GetServerURL()+testCtx.substituteVariables(endpoint),
		strings.NewReader(doc.Content))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return testCtx.do(req)
}

// iSaveTheResponseAs writes the last response body into the temp dir.
func (testCtx *TestContext) iSaveTheResponseAs(name string) error {
	path := testCtx.resolvePath(name)
	testCtx.TrackFile(path)
	return os.WriteFile(path, testCtx.LastHTTPResponse, 0o600)
}

func (testCtx *TestContext) theResponseStatusShouldBe(expected int) error {
	if testCtx.LastHTTPStatusCode != expected {
		return fmt.Errorf("expected status %d, got %d\nBody: %s",
			expected, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, expected string) error {
	got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]
	if got != expected {
		return fmt.Errorf("header %s is %q, expected %q", name, got, expected)
	}
	return nil
}

func (testCtx *TestContext) theHealthEndpointShouldRespondWithStatus(expected int) error {
	if err := testCtx.iGET("/health"); err != nil {
		return err
	}
	return testCtx.theResponseStatusShouldBe(expected)
}

// RegisterServerSteps registers all server mode step definitions.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	// Server lifecycle
	sc.Step(`^a wallsight server is running$`, testCtx.aWallsightServerIsRunning)
	sc.Step(`^a wallsight server is running with CORS origin "([^"]*)"$`, testCtx.aWallsightServerIsRunningWithCORSOrigin)
	sc.Step(`^a wallsight server is running with a limit of (\d+) requests per minute$`, testCtx.aRateLimitedServerIsRunning)
	sc.Step(`^I start the server with "([^"]*)"$`, testCtx.iStartTheServerWith)
	sc.Step(`^I send SIGTERM to the server$`, testCtx.iSendSIGTERMToTheServer)
	sc.Step(`^the server should shutdown gracefully$`, testCtx.theServerShouldShutdownGracefully)

	// Requests
	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^I DELETE "([^"]*)"$`, testCtx.iDELETE)
	sc.Step(`^I make an OPTIONS request to "([^"]*)"$`, testCtx.iMakeAnOPTIONSRequestTo)
	sc.Step(`^I POST a form to "([^"]*)":$`, testCtx.iPOSTFormTo)
	sc.Step(`^I POST JSON to "([^"]*)":$`, testCtx.iPOSTJSONTo)
	sc.Step(`^I save the response as "([^"]*)"$`, testCtx.iSaveTheResponseAs)

	// Response verification
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^the health endpoint should respond with status (\d+)$`, testCtx.theHealthEndpointShouldRespondWithStatus)
}
