package network

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/segbridge/internal/config"
	pb "github.com/bnema/segbridge/internal/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"
)

func testProvider() (*pb.StatusResponse, error) {
	return &pb.StatusResponse{Running: true, State: "running", Name: "test"}, nil
}

func newSigner(t *testing.T) gossh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := gossh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}

func startMonitor(t *testing.T, allow func(string) bool) *MonitorServer {
	t.Helper()
	keyPath := filepath.Join(t.TempDir(), "host_key")
	s := NewMonitorServer("127.0.0.1", 0, keyPath, testProvider)
	if allow != nil {
		s.Allow = allow
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		s.Stop()
	})
	require.NoError(t, s.Start(ctx))
	return s
}

func dial(addr string, signer gossh.Signer) (*gossh.Client, error) {
	return gossh.Dial("tcp", addr, &gossh.ClientConfig{
		User:            "monitor",
		Auth:            []gossh.AuthMethod{gossh.PublicKeys(signer)},
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
		Timeout:         2 * time.Second,
	})
}

func TestMonitorStartStop(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "host_key")
	s := NewMonitorServer("127.0.0.1", 0, keyPath, testProvider)
	assert.Nil(t, s.Addr())

	require.NoError(t, s.Start(context.Background()))
	require.NotNil(t, s.Addr())
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)

	_, err := os.Stat(keyPath)
	assert.NoError(t, err, "host key generated on start")

	s.Stop()
	s.Stop()
	assert.Zero(t, s.SessionCount())
}

func TestMonitorStopsWithContext(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "host_key")
	s := NewMonitorServer("127.0.0.1", 0, keyPath, testProvider)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	addr := s.Addr().String()
	cancel()

	signer := newSigner(t)
	assert.Eventually(t, func() bool {
		c, err := dial(addr, signer)
		if err == nil {
			_ = c.Close()
		}
		return err != nil
	}, 2*time.Second, 20*time.Millisecond, "monitor at %s still accepting", addr)
}

func TestMonitorKeyAuth(t *testing.T) {
	allowed := newSigner(t)
	other := newSigner(t)
	fingerprint := gossh.FingerprintSHA256(allowed.PublicKey())

	tests := []struct {
		name    string
		keys    []string
		signer  gossh.Signer
		wantErr bool
	}{
		{name: "allowed key", keys: []string{fingerprint}, signer: allowed},
		{name: "unknown key", keys: []string{fingerprint}, signer: other, wantErr: true},
		{name: "empty allowlist denies", keys: nil, signer: allowed, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig
			cfg.Monitor.AllowedKeys = tt.keys
			config.Set(&cfg)
			t.Cleanup(func() { config.Set(nil) })

			s := startMonitor(t, nil)
			client, err := dial(s.Addr().String(), tt.signer)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, client.Close())
		})
	}
}

func TestMonitorRequiresPTY(t *testing.T) {
	signer := newSigner(t)
	fingerprint := gossh.FingerprintSHA256(signer.PublicKey())
	s := startMonitor(t, func(fp string) bool { return fp == fingerprint })

	client, err := dial(s.Addr().String(), signer)
	require.NoError(t, err)
	defer client.Close()

	sess, err := client.NewSession()
	require.NoError(t, err)
	defer sess.Close()

	out, err := sess.CombinedOutput("")
	assert.Error(t, err)
	assert.Contains(t, string(out), "PTY")
}
