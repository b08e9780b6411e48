package cmd

import (
	"context"
	"image/png"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/segbridge/internal/bridge"
	"github.com/bnema/segbridge/internal/config"
	"github.com/bnema/segbridge/internal/guest"
	"github.com/bnema/segbridge/internal/input"
	"github.com/bnema/segbridge/internal/shmif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRecorder(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "compositor.sock")
	frames := filepath.Join(dir, "frames")

	srv := shmif.NewServer(shmif.ServerOptions{Dir: dir, Width: 64, Height: 32})
	rec := newFrameRecorder(frames)
	rec.minInterval = 0
	rec.attach(srv)

	l, err := net.Listen("unix", sock)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, l) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	host := guest.NewHost(config.GuestConfig{Consoles: 1, Width: 24, Height: 12}, bridge.FormatX8R8G8B8)
	b := bridge.New(bridge.NewShmifConnector(sock), host, host, input.NewLogQueue(), bridge.Options{Label: "rec"})
	_, err = b.Open(ctx)
	require.NoError(t, err)
	defer b.Close()

	host.Tick(time.Now())

	require.Eventually(t, func() bool {
		return rec.Ident(1) == "VM[0][]:rec(Running)" && rec.Frames(1) >= 2
	}, 3*time.Second, 10*time.Millisecond)

	path := rec.snapshotPath(1)
	assert.Equal(t, filepath.Join(frames, "segment-1.png"), path)
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 24, img.Bounds().Dx())
	assert.Equal(t, 12, img.Bounds().Dy())
}

func TestFrameRecorderWithoutSnapshots(t *testing.T) {
	rec := newFrameRecorder("")
	assert.Zero(t, rec.Frames(7))
	assert.Empty(t, rec.Ident(7))
}
