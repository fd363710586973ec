package gb28181

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"gb28181-simulator/pkg/metrics"
	"gb28181-simulator/pkg/sip"
)

// Heartbeat emits a Keepalive MESSAGE on a fixed period and waits briefly
// for the platform's reply. A missed reply or a transient send failure is
// logged and the loop continues to the next tick.
type Heartbeat struct {
	identity  *Identity
	sender    Sender
	responses <-chan *sip.Message
	interval  time.Duration
	wait      time.Duration
	logger    *logrus.Logger
}

// NewHeartbeat creates the keepalive scheduler. responses must be the
// dispatcher's demultiplexed response channel; the heartbeat is its only
// consumer once registration has completed.
func NewHeartbeat(identity *Identity, sender Sender, responses <-chan *sip.Message, interval, wait time.Duration, logger *logrus.Logger) *Heartbeat {
	return &Heartbeat{
		identity:  identity,
		sender:    sender,
		responses: responses,
		interval:  interval,
		wait:      wait,
		logger:    logger,
	}
}

// Run ticks until the context is canceled.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	h.logger.WithField("interval", h.interval.String()).Info("Heartbeat scheduler started")

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("Heartbeat scheduler stopping")
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *Heartbeat) tick(ctx context.Context) {
	// Discard responses left over from earlier exchanges so the wait
	// below observes the reply to this keepalive, not a stale one.
	for {
		select {
		case stale := <-h.responses:
			h.logger.WithField("status", stale.StatusCode).Debug("Discarding stale response")
			continue
		default:
		}
		break
	}

	body, err := BuildKeepaliveBody(h.identity.DeviceID, time.Now().Unix())
	if err != nil {
		h.logger.WithError(err).Error("Failed to build keepalive")
		return
	}

	msg := h.identity.NewMessage(body)
	metrics.IncRequestSent("MESSAGE")
	metrics.IncHeartbeatSent()
	if err := h.sender.Send(msg.Encode()); err != nil {
		h.logger.WithError(err).Warn("Keepalive send failed")
		return
	}
	h.logger.WithField("cseq", h.identity.CSeq()).Debug("Keepalive sent")

	timer := time.NewTimer(h.wait)
	defer timer.Stop()
	select {
	case resp := <-h.responses:
		h.logger.WithField("status", resp.StatusCode).Debug("Keepalive response received")
	case <-timer.C:
		metrics.IncHeartbeatUnanswered()
		h.logger.Warn("No response to keepalive")
	case <-ctx.Done():
	}
}
