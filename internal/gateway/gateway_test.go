package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devtoolbox-mcp/internal/registry"
)

func echoRegistry(t *testing.T, name, tool string) *registry.Registry {
	t.Helper()
	r := registry.New(name, "0.0.1", nil)
	require.NoError(t, r.Register(registry.Tool{
		Name:        tool,
		Description: "Echoes back a message.",
		Schema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"message": {Type: "string"},
			},
			Required: []string{"message"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"status": "success", "echo": args["message"], "from": name}, nil
		},
	}))
	return r
}

func newTestGateway(t *testing.T, transport Transport) *httptest.Server {
	t.Helper()
	g := New("127.0.0.1:0", transport, nil,
		Mount{Prefix: "/code", Registry: echoRegistry(t, "CodeAnalysisServer", "echo_code")},
		Mount{Prefix: "/docker", Registry: echoRegistry(t, "DockerControlServer", "echo_docker")},
	)
	ts := httptest.NewServer(g.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestParseTransport(t *testing.T) {
	testCases := []struct {
		in      string
		want    Transport
		wantErr bool
	}{
		{"sse", TransportSSE, false},
		{"stream-http", TransportStreamableHTTP, false},
		{"", "", true},
		{"websocket", "", true},
		{"SSE", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseTransport(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestUnmountedPathIsTransportLevelNotFound(t *testing.T) {
	ts := newTestGateway(t, TransportStreamableHTTP)

	for _, path := range []string{"/", "/nope", "/codex", "/tools/call"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "path %s", path)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestGateway(t, TransportSSE)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func callEcho(t *testing.T, transport mcp.Transport, tool, registryName string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "gateway-test", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, transport)
	require.NoError(t, err)
	defer session.Close()

	tools, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, tool, tools.Tools[0].Name)

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      tool,
		Arguments: map[string]any{"message": "hello"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "hello")
	assert.Contains(t, text.Text, registryName)
}

func TestSSETransportEndToEnd(t *testing.T) {
	ts := newTestGateway(t, TransportSSE)

	callEcho(t, mcp.NewSSEClientTransport(ts.URL+"/code", nil), "echo_code", "CodeAnalysisServer")
	callEcho(t, mcp.NewSSEClientTransport(ts.URL+"/docker", nil), "echo_docker", "DockerControlServer")
}

func TestStreamableTransportEndToEnd(t *testing.T) {
	ts := newTestGateway(t, TransportStreamableHTTP)

	callEcho(t, mcp.NewStreamableClientTransport(ts.URL+"/code", nil), "echo_code", "CodeAnalysisServer")
	callEcho(t, mcp.NewStreamableClientTransport(ts.URL+"/docker", nil), "echo_docker", "DockerControlServer")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	g := New("127.0.0.1:0", TransportSSE, nil,
		Mount{Prefix: "/code", Registry: echoRegistry(t, "CodeAnalysisServer", "echo_code")},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	// Give the listener a moment to come up, then ask for shutdown.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not shut down after context cancellation")
	}
}
