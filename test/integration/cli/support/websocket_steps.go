package support

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cucumber/godog"
	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/wallsight/internal/server"
)

// relocalizeOverWebSocket streams frames to /ws/relocalize until the server
// reports a match or closes the stream. Frames are resent in order, so a
// slow scanner still sees every one of them.
func (testCtx *TestContext) relocalizeOverWebSocket(projectID, frameList string) error {
	url := "ws" + strings.TrimPrefix(testCtx.GetServerURL(), "http") +
		"/ws/relocalize?project=" + testCtx.substituteVariables(projectID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", url, err)
	}
	defer func() { _ = conn.Close() }()

	var frames [][]byte
	for _, name := range strings.Split(frameList, ",") {
		data, err := os.ReadFile(testCtx.resolvePath(strings.TrimSpace(name))) //nolint:gosec // G304: scenario-controlled path
		if err != nil {
			return fmt.Errorf("failed to read frame %s: %w", name, err)
		}
		frames = append(frames, data)
	}

	testCtx.WSMessages = nil
	deadline := time.Now().Add(20 * time.Second)
	next := 0
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg server.WebSocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("websocket read failed: %w", err)
		}
		testCtx.WSMessages = append(testCtx.WSMessages, msg)

		switch msg.Type {
		case "ready", "attempt":
			if err := conn.WriteMessage(websocket.BinaryMessage, frames[next]); err != nil {
				return fmt.Errorf("websocket write failed: %w", err)
			}
			next = min(next+1, len(frames)-1)
		case "error":
			return fmt.Errorf("server reported %s: %s", msg.Error, msg.Message)
		}
	}
	return errors.New("no match reported within 20s")
}

func (testCtx *TestContext) theWebSocketShouldReportAMatch() error {
	for _, msg := range testCtx.WSMessages {
		if msg.Type == "match" {
			if msg.Result == nil || !msg.Result.IsMatch {
				return errors.New("match message without a matching result")
			}
			if msg.Corners == nil {
				return errors.New("match message without corners")
			}
			return nil
		}
	}
	return fmt.Errorf("no match message among %d messages", len(testCtx.WSMessages))
}

// RegisterWebSocketSteps registers the live relocalization steps.
func (testCtx *TestContext) RegisterWebSocketSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I relocalize project "([^"]*)" over the websocket with frames "([^"]*)"$`, testCtx.relocalizeOverWebSocket)
	sc.Step(`^the websocket should report a match$`, testCtx.theWebSocketShouldReportAMatch)
}
