package media

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gb28181-simulator/pkg/errors"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestBridgeStartWithoutBinary(t *testing.T) {
	bridge := &FFmpegBridge{logger: quietLogger(), path: ""}

	relay, err := bridge.Start("rtsp://cam/stream", "192.168.1.100", 30000, "0000000001")
	require.Error(t, err)
	assert.Nil(t, relay)
	assert.True(t, errors.IsErrorType(err, errors.ErrRelay))
}

func TestBridgeStartReportsImmediateExit(t *testing.T) {
	// A binary that exits right away must surface as a startup failure,
	// not a live relay.
	bridge := &FFmpegBridge{logger: quietLogger(), path: "/bin/false"}

	relay, err := bridge.Start("rtsp://cam/stream", "192.168.1.100", 30000, "0000000001")
	require.Error(t, err)
	assert.Nil(t, relay)
	assert.True(t, errors.IsErrorType(err, errors.ErrRelay))
}

func TestRelayStopTerminatesProcess(t *testing.T) {
	// Stand-in binary that ignores the ffmpeg arguments and just runs.
	script := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755))

	bridge := &FFmpegBridge{logger: quietLogger(), path: script}

	relay, err := bridge.Start("rtsp://cam/stream", "192.168.1.100", 30000, "0000000001")
	require.NoError(t, err)

	relay.Stop()
	relay.Stop() // second stop must be a no-op

	proc := relay.(*ffmpegRelay)
	require.NotNil(t, proc.cmd.ProcessState)
	assert.False(t, proc.cmd.ProcessState.Success())
}
