// Package logstream serves a container's combined stdout/stderr as a
// Server-Sent Events stream (spec.md §4.7).
package logstream

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jordanhubbard/refactorctl/internal/dockercli"
)

// Streamer turns Container Driver log lines into SSE frames.
type Streamer struct {
	driver *dockercli.Driver
}

// New builds a Streamer.
func New(driver *dockercli.Driver) *Streamer {
	return &Streamer{driver: driver}
}

// Frame is one SSE frame: either a log line or a keep-alive ping.
type Frame struct {
	Event string
	Data  string
}

// Stream sends one Frame per log line via emit, plus a "ping" frame every
// 30s of inactivity while following. When follow is true it continues
// until the container exits, ctx is cancelled, or emit returns an error;
// when false it sends the existing backlog and returns.
func (s *Streamer) Stream(ctx context.Context, containerID string, tailLines int, follow bool, emit func(Frame) error) error {
	lines, err := s.driver.LogsFollow(ctx, containerID, tailLines, follow)
	if err != nil {
		return fmt.Errorf("logs_follow: %w", err)
	}

	keepAlive := time.NewTicker(30 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-keepAlive.C:
			if err := emit(Frame{Event: "ping", Data: "keep-alive"}); err != nil {
				return err
			}

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				if line.Err == io.EOF {
					return nil
				}
				return line.Err
			}
			keepAlive.Reset(30 * time.Second)
			if err := emit(Frame{Event: "log", Data: line.Text}); err != nil {
				return err
			}
		}
	}
}
