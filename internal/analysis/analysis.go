// Package analysis exposes code-analysis commands (lint, type-check) as
// a tool registry. Each tool wraps one external command invoked
// synchronously with a bounded context.
package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"devtoolbox-mcp/internal/config"
	"devtoolbox-mcp/internal/registry"
)

const (
	serverName    = "CodeAnalysisServer"
	serverVersion = "0.1.0"

	// commandWaitDelay bounds how long a canceled command may hold its
	// output pipes before they are forcibly closed.
	commandWaitDelay = time.Second
)

var (
	// commandContext allows overriding command creation for testing
	commandContext = exec.CommandContext
	// lookPath allows overriding binary lookup for testing
	lookPath = exec.LookPath
)

// Report is the success payload of an analysis tool. A non-zero exit code
// from the underlying command (findings present) still produces a Report.
type Report struct {
	Status string `json:"status"`
	Output string `json:"output"`
	Errors string `json:"errors"`
}

// NewRegistry builds the code analysis tool registry
func NewRegistry(cfg config.AnalysisConfig, logger *slog.Logger) (*registry.Registry, error) {
	r := registry.New(serverName, serverVersion, logger)
	timeout := time.Duration(cfg.Timeout)

	tools := []registry.Tool{
		{
			Name:        "run_linter",
			Description: "Performs linting and static analysis on a project path using the configured lint command (ruff by default) and returns the results.",
			Schema:      pathSchema("Filesystem path passed to the lint command"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				path, _ := args["project_path"].(string)
				return runCommand(ctx, cfg.Linter, path, timeout, "No issues found.")
			},
		},
		{
			Name:        "run_type_checker",
			Description: "Performs static type checking on a project path using the configured type-check command (mypy by default) and returns the results.",
			Schema:      pathSchema("Filesystem path passed to the type-check command"),
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				path, _ := args["project_path"].(string)
				return runCommand(ctx, cfg.TypeChecker, path, timeout, "No type errors found.")
			},
		},
	}

	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func pathSchema(description string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"project_path": {Type: "string", Description: description},
		},
		Required: []string{"project_path"},
	}
}

// runCommand executes argv with the project path appended and maps the
// outcome to the tool contract: a missing binary or a timeout is a
// handler failure, any completed run is a success report carrying the
// command's output.
func runCommand(ctx context.Context, argv []string, path string, timeout time.Duration, emptyMarker string) (any, error) {
	bin := argv[0]
	if _, err := lookPath(bin); err != nil {
		return nil, fmt.Errorf("%s is not installed or not in PATH.", bin)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, argv[1:]...), path)
	cmd := commandContext(runCtx, bin, args...)
	// Analysis commands fork worker processes that inherit the output
	// pipes. Without a wait bound, Run blocks past cancellation until
	// every descendant lets go of them.
	cmd.WaitDelay = commandWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctxErr := runCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s timed out after %s", bin, timeout)
		}
		return nil, fmt.Errorf("%s canceled before completion", bin)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("error running %s: %v", bin, err)
		}
		// Non-zero exit means the command found issues; that is still a
		// successful tool call carrying the findings.
	}

	output := stdout.String()
	if output == "" {
		output = emptyMarker
	}
	return Report{Status: "success", Output: output, Errors: stderr.String()}, nil
}
