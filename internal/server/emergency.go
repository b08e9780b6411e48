package server

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bnema/segbridge/internal/logger"
)

// DefaultReleaseFile triggers a key release when it appears
const DefaultReleaseFile = "/tmp/segbridge-release"

// EmergencyRelease releases every held guest key on SIGUSR1 or when the
// trigger file appears
type EmergencyRelease struct {
	server      *Server
	triggerFile string
	interval    time.Duration
	stopChan    chan struct{}
	startOnce   sync.Once
	stopOnce    sync.Once
}

// NewEmergencyRelease creates a release handler for server
func NewEmergencyRelease(server *Server) *EmergencyRelease {
	return &EmergencyRelease{
		server:      server,
		triggerFile: DefaultReleaseFile,
		interval:    time.Second,
		stopChan:    make(chan struct{}),
	}
}

// Start begins watching for release triggers
func (er *EmergencyRelease) Start() {
	er.startOnce.Do(func() {
		go er.handleSignals()
		go er.monitorFileTrigger()
		logger.Debugf("[EMERGENCY] Key release armed: SIGUSR1 or %s", er.triggerFile)
	})
}

// Stop stops all emergency monitoring
func (er *EmergencyRelease) Stop() {
	er.stopOnce.Do(func() {
		close(er.stopChan)
	})
}

// handleSignals listens for SIGUSR1
func (er *EmergencyRelease) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			logger.Warn("[EMERGENCY] SIGUSR1 received - releasing held keys")
			er.triggerRelease("signal")
		case <-er.stopChan:
			return
		}
	}
}

// monitorFileTrigger checks for presence of the trigger file
func (er *EmergencyRelease) monitorFileTrigger() {
	ticker := time.NewTicker(er.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := os.Stat(er.triggerFile); err == nil {
				logger.Warn("[EMERGENCY] Release file detected - releasing held keys")
				os.Remove(er.triggerFile)
				er.triggerRelease("file")
			}
		case <-er.stopChan:
			return
		}
	}
}

// triggerRelease posts the release onto the guest loop
func (er *EmergencyRelease) triggerRelease(reason string) {
	err := er.server.exec(func() {
		n := er.server.ReleaseKeys()
		logger.Warnf("[EMERGENCY] Released %d key(s) (reason: %s)", n, reason)
	})
	if err != nil {
		logger.Errorf("[EMERGENCY] Key release failed: %v", err)
	}
}
