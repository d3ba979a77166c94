// Package dockerctl exposes Docker container control as a tool registry.
// The runtime connection is established once at startup; when it is not
// available every tool reports the same failure envelope instead of
// aborting the call chain.
package dockerctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"devtoolbox-mcp/internal/config"
	"devtoolbox-mcp/internal/registry"
)

const (
	serverName    = "DockerControlServer"
	serverVersion = "0.1.0"

	unavailableMessage = "Docker is not running or is not installed."
)

// Conn is the runtime connection state decided at startup: connected to a
// runtime, or unavailable with a reason.
type Conn struct {
	runtime Runtime
	reason  string
}

// Connected wraps an established runtime connection
func Connected(rt Runtime) Conn { return Conn{runtime: rt} }

// Unavailable records that no runtime connection could be established
func Unavailable(reason string) Conn { return Conn{reason: reason} }

// Available reports whether a runtime connection exists
func (c Conn) Available() bool { return c.runtime != nil }

// Reason returns why the runtime is unavailable, if it is
func (c Conn) Reason() string { return c.reason }

// Close releases the underlying runtime connection, if any
func (c Conn) Close() error {
	if c.runtime == nil {
		return nil
	}
	return c.runtime.Close()
}

// StopResult is the success payload of stop_container
type StopResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewRegistry builds the container control tool registry
func NewRegistry(conn Conn, cfg config.DockerConfig, logger *slog.Logger) (*registry.Registry, error) {
	r := registry.New(serverName, serverVersion, logger)
	timeout := time.Duration(cfg.Timeout)

	tools := []registry.Tool{
		{
			Name:        "list_containers",
			Description: "Lists Docker containers. Set all_containers to include stopped ones.",
			Schema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"all_containers": {
						Type:        "boolean",
						Description: "Include stopped containers",
						Default:     json.RawMessage("false"),
					},
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				if !conn.Available() {
					return nil, errors.New(unavailableMessage)
				}
				all, _ := args["all_containers"].(bool)

				callCtx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()

				containers, err := conn.runtime.List(callCtx, all)
				if err != nil {
					return nil, err
				}
				return containers, nil
			},
		},
		{
			Name:        "stop_container",
			Description: "Stops a running Docker container by its ID.",
			Schema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"container_id": {
						Type:        "string",
						Description: "Container ID or name",
					},
				},
				Required: []string{"container_id"},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				if !conn.Available() {
					return nil, errors.New(unavailableMessage)
				}
				id, _ := args["container_id"].(string)

				callCtx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()

				if err := conn.runtime.Stop(callCtx, id); err != nil {
					if errors.Is(err, ErrContainerNotFound) {
						return nil, fmt.Errorf("Container %s not found.", id)
					}
					return nil, err
				}
				return StopResult{
					Status:  "success",
					Message: fmt.Sprintf("Container %s stopped.", id),
				}, nil
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
