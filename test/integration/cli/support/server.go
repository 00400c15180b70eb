package support

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// StartServer starts "wallsight serve" as a child process.
func (testCtx *TestContext) StartServer(command string) error {
	command = testCtx.substituteVariables(command)
	if err := testCtx.parseServerCommand(command); err != nil {
		return err
	}

	if testCtx.isPortInUse(testCtx.ServerPort) {
		return fmt.Errorf("port %d is already in use", testCtx.ServerPort)
	}

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}
	if parts[0] == "wallsight" {
		if bin := os.Getenv("WALLSIGHT_BIN"); bin != "" {
			parts[0] = bin
		}
	}

	cmd := exec.Command(parts[0], parts[1:]...) //nolint:gosec // G204: scenario-controlled command
	cmd.Dir = testCtx.TempDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	testCtx.ServerProcess = cmd.Process

	if err := testCtx.waitForServerReady(); err != nil {
		if stopErr := testCtx.StopServerProcess(); stopErr != nil {
			return fmt.Errorf("server failed to start and also failed to stop: %w; stop error: %w", err, stopErr)
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// StopServerProcess stops the running server process with SIGTERM.
func (testCtx *TestContext) StopServerProcess() error {
	if testCtx.ServerProcess == nil {
		return nil
	}

	if err := testCtx.ServerProcess.Signal(syscall.SIGTERM); err != nil {
		if killErr := testCtx.ServerProcess.Kill(); killErr != nil {
			return fmt.Errorf("failed to kill server process: %w", killErr)
		}
	}

	_, err := testCtx.ServerProcess.Wait()
	testCtx.ServerProcess = nil
	return err
}

// parseServerCommand extracts host and port from the command line.
func (testCtx *TestContext) parseServerCommand(command string) error {
	parts := strings.Fields(command)

	testCtx.ServerPort = 8080
	testCtx.ServerHost = "localhost"

	for i, part := range parts {
		switch {
		case (part == "--port" || part == "-p") && i+1 < len(parts):
			port, err := strconv.Atoi(parts[i+1])
			if err != nil {
				return fmt.Errorf("invalid port: %s", parts[i+1])
			}
			testCtx.ServerPort = port
		case strings.HasPrefix(part, "--port="):
			port, err := strconv.Atoi(strings.TrimPrefix(part, "--port="))
			if err != nil {
				return fmt.Errorf("invalid port: %s", part)
			}
			testCtx.ServerPort = port
		case (part == "--host" || part == "-H") && i+1 < len(parts):
			testCtx.ServerHost = parts[i+1]
		case strings.HasPrefix(part, "--host="):
			testCtx.ServerHost = strings.TrimPrefix(part, "--host=")
		}
	}
	if testCtx.ServerHost == "0.0.0.0" {
		testCtx.ServerHost = "localhost"
	}
	return nil
}

// isPortInUse checks if a port is already in use.
func (testCtx *TestContext) isPortInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)), time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// waitForServerReady waits for the server to respond to health checks.
func (testCtx *TestContext) waitForServerReady() error {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if testCtx.isServerHealthy() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return errors.New("server did not become ready within timeout")
}

// isServerHealthy checks if the server responds to the health endpoint.
func (testCtx *TestContext) isServerHealthy() bool {
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get(testCtx.GetServerURL() + "/health")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// GetServerURL returns the base URL for the running server.
func (testCtx *TestContext) GetServerURL() string {
	if testCtx.HTTPTestServer != nil && testCtx.HTTPTestServer.Server != nil {
		return testCtx.HTTPTestServer.Server.URL
	}
	return "http://" + net.JoinHostPort(testCtx.ServerHost, strconv.Itoa(testCtx.ServerPort))
}
