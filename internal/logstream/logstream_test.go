package logstream

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/jordanhubbard/refactorctl/internal/dockercli"
)

type fakeRunner struct{}

func (fakeRunner) Run(context.Context, ...string) ([]byte, []byte, int, error) {
	return nil, nil, 0, nil
}

func (fakeRunner) Stream(context.Context, ...string) (io.ReadCloser, func() error, error) {
	return io.NopCloser(strings.NewReader("first line\nsecond line\n")), func() error { return nil }, nil
}

func TestStreamEmitsOneFramePerLine(t *testing.T) {
	driver := dockercli.NewWithRunner(fakeRunner{})
	s := New(driver)

	var frames []Frame
	err := s.Stream(context.Background(), "abc123", 50, true, func(f Frame) error {
		frames = append(frames, f)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if len(frames) != 2 || frames[0].Event != "log" || frames[0].Data != "first line" || frames[1].Data != "second line" {
		t.Fatalf("frames = %+v", frames)
	}
}

func TestStreamStopsWhenEmitErrors(t *testing.T) {
	driver := dockercli.NewWithRunner(fakeRunner{})
	s := New(driver)

	calls := 0
	err := s.Stream(context.Background(), "abc123", 50, true, func(f Frame) error {
		calls++
		return io.ErrClosedPipe
	})
	if err != io.ErrClosedPipe {
		t.Fatalf("err = %v, want io.ErrClosedPipe", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (should stop on first error)", calls)
	}
}
