// Package sandbox runs a single subject call inside a container, for
// variants that pin an execution image. The subject server itself stays on
// the host; the container reaches it through the host gateway.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
)

type CallOpts struct {
	Image     string
	Bin       string
	Agent     string
	Prompt    string
	ServerURL string
	Timeout   time.Duration
}

type CallResult struct {
	Output   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// RunCall executes `<bin> call <agent> <prompt>` in a fresh container and
// captures its output. The container runs with a TTY so logs come back as
// plain text rather than a multiplexed stream. A timed-out call is killed
// and reported with exit code 124.
func RunCall(ctx context.Context, opts *CallOpts) (*CallResult, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	defer cli.Close()

	containerCfg := &container.Config{
		Image:  opts.Image,
		Cmd:    []string{opts.Bin, "call", opts.Agent, opts.Prompt},
		Env:    []string{"SUBJECT_SERVER=" + opts.ServerURL},
		Tty:    true,
		Labels: map[string]string{"crucible": "true"},
	}

	initTrue := true
	hostCfg := &container.HostConfig{
		Init: &initTrue,
		// Let the container reach the subject server on the host.
		ExtraHosts: []string{"host.docker.internal:host-gateway"},
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	containerID := createResp.ID
	defer func() {
		cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
	}()

	start := time.Now()
	if _, err := cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	waitResult := cli.ContainerWait(timeoutCtx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	for {
		select {
		case err := <-waitResult.Error:
			if err != nil {
				cli.ContainerKill(context.Background(), containerID, client.ContainerKillOptions{Signal: "SIGKILL"})
				return &CallResult{
					Output:   readLogs(cli, containerID),
					ExitCode: 124,
					TimedOut: true,
					Duration: time.Since(start),
				}, nil
			}
			// nil error means no error on this channel; wait for result
		case status := <-waitResult.Result:
			return &CallResult{
				Output:   readLogs(cli, containerID),
				ExitCode: int(status.StatusCode),
				TimedOut: false,
				Duration: time.Since(start),
			}, nil
		}
	}
}

func readLogs(cli *client.Client, containerID string) string {
	logReader, err := cli.ContainerLogs(context.Background(), containerID, client.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil || logReader == nil {
		return ""
	}
	defer logReader.Close()
	data, _ := io.ReadAll(logReader)
	return string(data)
}
