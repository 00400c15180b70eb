package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/wallsight/internal/testutil"
)

// commandTimeout bounds every CLI invocation.
const commandTimeout = 60 * time.Second

// iRunCommand executes a command and stores the result. Bare "wallsight"
// resolves to the binary built by TestMain.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substituteVariables(command)

	testCtx.LastCommand = command
	testCtx.LastStartTime = time.Now()

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}
	if parts[0] == "wallsight" {
		if bin := os.Getenv("WALLSIGHT_BIN"); bin != "" {
			parts[0] = bin
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = testCtx.TempDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	testCtx.LastStdout = stdout.String()
	testCtx.LastOutput = stdout.String() + stderr.String()
	testCtx.LastError = err
	testCtx.LastDuration = time.Since(testCtx.LastStartTime)

	if err != nil {
		exitError := &exec.ExitError{}
		if errors.As(err, &exitError) {
			testCtx.LastExitCode = exitError.ExitCode()
		} else {
			testCtx.LastExitCode = -1
		}
	} else {
		testCtx.LastExitCode = 0
	}

	return nil
}

// theCommandShouldSucceed verifies the command succeeded.
func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d: %w\nOutput: %s",
			testCtx.LastExitCode, testCtx.LastError, testCtx.LastOutput)
	}
	return nil
}

// theCommandShouldFail verifies the command failed.
func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldContain verifies the output contains specific text.
func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	expectedText = testCtx.substituteVariables(expectedText)
	if !strings.Contains(testCtx.LastOutput, expectedText) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expectedText, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(text string) error {
	text = testCtx.substituteVariables(text)
	if strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output unexpectedly contains '%s'\nActual output: %s", text, testCtx.LastOutput)
	}
	return nil
}

// lastJSON decodes the JSON document on stdout or in the last HTTP response.
func (testCtx *TestContext) lastJSON() (interface{}, error) {
	output := strings.TrimSpace(testCtx.LastStdout)
	start := strings.IndexAny(output, "{[")
	if start == -1 {
		return nil, fmt.Errorf("no JSON found in output: %s", testCtx.LastOutput)
	}
	var data interface{}
	if err := json.Unmarshal([]byte(output[start:]), &data); err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w\nJSON part: %s", err, output[start:])
	}
	return data, nil
}

// theOutputShouldBeValidJSON verifies the output is valid JSON.
func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	_, err := testCtx.lastJSON()
	return err
}

// jsonField walks a dotted path such as "corners.1.x" through decoded JSON.
func (testCtx *TestContext) jsonField(field string) (interface{}, error) {
	current, err := testCtx.lastJSON()
	if err != nil {
		return nil, err
	}
	parts := strings.Split(field, ".")
	for i, part := range parts {
		switch node := current.(type) {
		case map[string]interface{}:
			val, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("field '%s' not found in JSON", strings.Join(parts[:i+1], "."))
			}
			current = val
		case []interface{}:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("invalid index '%s' at '%s'", part, strings.Join(parts[:i], "."))
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("cannot navigate deeper into non-object field '%s'", strings.Join(parts[:i], "."))
		}
	}
	return current, nil
}

// theJSONShouldContain verifies JSON contains a specific field.
func (testCtx *TestContext) theJSONShouldContain(field string) error {
	_, err := testCtx.jsonField(field)
	return err
}

// theJSONFieldShouldBe compares the field's textual form with expected.
func (testCtx *TestContext) theJSONFieldShouldBe(field, expected string) error {
	val, err := testCtx.jsonField(field)
	if err != nil {
		return err
	}
	expected = testCtx.substituteVariables(expected)
	if got := fmt.Sprint(val); got != expected {
		return fmt.Errorf("JSON field %s is %q, expected %q", field, got, expected)
	}
	return nil
}

// theJSONFieldShouldBeAbout compares a numeric field within a tolerance.
func (testCtx *TestContext) theJSONFieldShouldBeAbout(field string, expected, tolerance float64) error {
	val, err := testCtx.jsonField(field)
	if err != nil {
		return err
	}
	f, ok := val.(float64)
	if !ok {
		return fmt.Errorf("JSON field %s is not a number: %v", field, val)
	}
	if f < expected-tolerance || f > expected+tolerance {
		return fmt.Errorf("JSON field %s is %g, expected %g ± %g", field, f, expected, tolerance)
	}
	return nil
}

// iRememberTheJSONFieldAs stores a field for later {name} substitution.
func (testCtx *TestContext) iRememberTheJSONFieldAs(field, name string) error {
	val, err := testCtx.jsonField(field)
	if err != nil {
		return err
	}
	testCtx.Vars[name] = fmt.Sprint(val)
	return nil
}

// iRememberTheOutputAs stores trimmed stdout for later {name} substitution.
func (testCtx *TestContext) iRememberTheOutputAs(name string) error {
	out := strings.TrimSpace(testCtx.LastStdout)
	if out == "" {
		return errors.New("nothing on stdout to remember")
	}
	testCtx.Vars[name] = out
	return nil
}

// theErrorShouldMention verifies the error message contains specific text.
func (testCtx *TestContext) theErrorShouldMention(errorText string) error {
	if testCtx.LastError == nil && testCtx.LastExitCode == 0 {
		return fmt.Errorf("no error occurred, but expected error containing '%s'", errorText)
	}

	fullErrorText := testCtx.LastOutput
	if testCtx.LastError != nil {
		fullErrorText += " " + testCtx.LastError.Error()
	}

	if !strings.Contains(strings.ToLower(fullErrorText), strings.ToLower(errorText)) {
		return fmt.Errorf("error does not contain '%s'\nActual error: %s", errorText, fullErrorText)
	}
	return nil
}

// theFileShouldExist checks for a file relative to the scenario temp dir.
func (testCtx *TestContext) theFileShouldExist(filename string) error {
	path := testCtx.resolvePath(filename)
	if !testutil.FileExists(path) {
		return fmt.Errorf("file %s does not exist", path)
	}
	return nil
}

// theFileShouldContain checks a file's contents for a substring.
func (testCtx *TestContext) theFileShouldContain(filename, expectedContent string) error {
	path := testCtx.resolvePath(filename)
	data, err := os.ReadFile(path) //nolint:gosec // G304: scenario-controlled path
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if !strings.Contains(string(data), expectedContent) {
		return fmt.Errorf("file %s does not contain '%s'", path, expectedContent)
	}
	return nil
}

// theImageShouldMeasure decodes an image and checks its dimensions.
func (testCtx *TestContext) theImageShouldMeasure(filename string, width, height int) error {
	img, err := imaging.Open(testCtx.resolvePath(filename))
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		return fmt.Errorf("image %s is %dx%d, expected %dx%d", filename, b.Dx(), b.Dy(), width, height)
	}
	return nil
}

// theEnvironmentVariableIsSetTo adds an environment variable for later commands.
func (testCtx *TestContext) theEnvironmentVariableIsSetTo(name, value string) error {
	testCtx.AddEnvVar(name, testCtx.substituteVariables(value))
	return nil
}

// aFileWithContent writes a doc string into the scenario temp dir.
func (testCtx *TestContext) aFileWithContent(filename string, content *godog.DocString) error {
	path := testCtx.resolvePath(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content.Content), 0o600)
}

func (testCtx *TestContext) registerCommandSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, testCtx.theEnvironmentVariableIsSetTo)
}

func (testCtx *TestContext) registerOutputSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the JSON should contain "([^"]*)"$`, testCtx.theJSONShouldContain)
	sc.Step(`^the JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theJSONFieldShouldBe)
	sc.Step(`^the JSON field "([^"]*)" should be about ([0-9.]+) within ([0-9.]+)$`, testCtx.theJSONFieldShouldBeAbout)
	sc.Step(`^I remember the JSON field "([^"]*)" as "([^"]*)"$`, testCtx.iRememberTheJSONFieldAs)
	sc.Step(`^I remember the output as "([^"]*)"$`, testCtx.iRememberTheOutputAs)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)
}

func (testCtx *TestContext) registerFileSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a file "([^"]*)" with content:$`, testCtx.aFileWithContent)
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
	sc.Step(`^the image "([^"]*)" should be (\d+)x(\d+) pixels$`, testCtx.theImageShouldMeasure)
}

// RegisterCommonSteps registers all common step definitions.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	testCtx.registerCommandSteps(sc)
	testCtx.registerOutputSteps(sc)
	testCtx.registerFileSteps(sc)
}
