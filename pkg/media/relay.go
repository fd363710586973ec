package media

import (
	"bytes"
	"fmt"
	"math/rand"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"gb28181-simulator/pkg/errors"
)

const (
	// startupCheck bounds how long a start waits to detect immediate
	// relay failure before returning control to signaling.
	startupCheck = 500 * time.Millisecond

	// stopGrace bounds how long a stop waits for orderly exit before
	// force-terminating the relay.
	stopGrace = 3 * time.Second
)

// Relay is a running media relay. Stop is idempotent; only the first call
// terminates the process.
type Relay interface {
	Stop()
}

// Bridge starts continuous relays from a channel's media source into a
// negotiated RTP target. The signaling core treats this as an opaque
// capability.
type Bridge interface {
	Start(sourceURL, destIP string, destPort int, ssrc string) (Relay, error)
}

// FFmpegBridge spawns one ffmpeg process per relay, repackaging the source
// as PS over RTP the way GB28181 platforms ingest it.
type FFmpegBridge struct {
	logger *logrus.Logger
	path   string
}

// NewFFmpegBridge locates the ffmpeg binary. A missing binary is not fatal
// here; Start reports it per relay so signaling can proceed without media.
func NewFFmpegBridge(logger *logrus.Logger) *FFmpegBridge {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		logger.Warn("ffmpeg not found in PATH, media relays will be unavailable")
	}
	return &FFmpegBridge{logger: logger, path: path}
}

// Start launches a relay and waits startupCheck for immediate failure. A
// relay that survives the check is returned regardless of steady-state
// readiness.
func (b *FFmpegBridge) Start(sourceURL, destIP string, destPort int, ssrc string) (Relay, error) {
	if b.path == "" {
		return nil, errors.NewRelayError("ffmpeg not installed")
	}

	dest := fmt.Sprintf("rtp://%s:%d?localport=%d", destIP, destPort, 20000+rand.Intn(10000))
	cmd := exec.Command(b.path,
		"-re",
		"-i", sourceURL,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-profile:v", "baseline",
		"-b:v", "1000k",
		"-an",
		"-f", "rtp_mpegts",
		dest,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log := b.logger.WithFields(logrus.Fields{
		"source": sourceURL,
		"dest":   fmt.Sprintf("%s:%d", destIP, destPort),
		"ssrc":   ssrc,
	})

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "ffmpeg start failed")
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		detail := stderr.String()
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return nil, errors.NewRelayError("ffmpeg exited during startup", map[string]interface{}{
			"error":  fmt.Sprint(err),
			"stderr": detail,
		})
	case <-time.After(startupCheck):
	}

	log.WithField("pid", cmd.Process.Pid).Info("Media relay started")
	return &ffmpegRelay{cmd: cmd, done: done, logger: log}, nil
}

type ffmpegRelay struct {
	cmd    *exec.Cmd
	done   chan error
	logger *logrus.Entry
	once   sync.Once
}

// Stop terminates the relay: SIGTERM, then SIGKILL if it does not exit
// within the grace period.
func (r *ffmpegRelay) Stop() {
	r.once.Do(func() {
		if err := r.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			r.logger.WithError(err).Debug("Relay already gone")
			return
		}
		select {
		case <-r.done:
		case <-time.After(stopGrace):
			r.logger.Warn("Relay did not exit in time, killing")
			_ = r.cmd.Process.Kill()
			<-r.done
		}
		r.logger.Info("Media relay stopped")
	})
}
