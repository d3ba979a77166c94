package dockerctl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
)

// ErrContainerNotFound reports that an id resolved to no container
var ErrContainerNotFound = errors.New("container not found")

// Container is the projection of a runtime container returned by
// list_containers
type Container struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Image  string `json:"image"`
	Status string `json:"status"`
}

// Runtime is the container-runtime surface the toolset depends on
type Runtime interface {
	// List returns all containers when all is set, running only otherwise
	List(ctx context.Context, all bool) ([]Container, error)

	// Stop stops a container by id; an unknown id yields
	// ErrContainerNotFound
	Stop(ctx context.Context, id string) error

	Close() error
}

type dockerRuntime struct {
	cli *client.Client
}

// Connect establishes the Docker Engine connection once at startup and
// verifies the daemon is reachable. An empty host uses the environment
// defaults (DOCKER_HOST and friends).
func Connect(ctx context.Context, host string) (Runtime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return &dockerRuntime{cli: cli}, nil
}

func (d *dockerRuntime) List(ctx context.Context, all bool) ([]Container, error) {
	summaries, err := d.cli.ContainerList(ctx, container.ListOptions{All: all})
	if err != nil {
		return nil, err
	}

	out := make([]Container, 0, len(summaries))
	for _, c := range summaries {
		out = append(out, Container{
			ID:     shortID(c.ID),
			Name:   primaryName(c.Names),
			Image:  imageRef(c.Image),
			Status: c.Status,
		})
	}
	return out, nil
}

func (d *dockerRuntime) Stop(ctx context.Context, id string) error {
	if err := d.cli.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrContainerNotFound, id)
		}
		return err
	}
	return nil
}

func (d *dockerRuntime) Close() error { return d.cli.Close() }

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func primaryName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}

// imageRef reports the image reference the container was created from,
// or "N/A" when the reference is a bare digest (untagged image)
func imageRef(image string) string {
	if image == "" || strings.HasPrefix(image, "sha256:") {
		return "N/A"
	}
	return image
}
