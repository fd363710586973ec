package gb28181

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"gb28181-simulator/pkg/errors"
	"gb28181-simulator/pkg/media"
	"gb28181-simulator/pkg/metrics"
	"gb28181-simulator/pkg/sip"
)

// Call session states.
const (
	SessionIdle       = "idle"
	SessionTrying     = "trying"
	SessionActive     = "active"
	SessionTerminated = "terminated"
)

var channelIDPattern = regexp.MustCompile(`sip:(\d{20})@`)

// CallSession is one inbound play dialog, keyed by Call-ID. The relay handle
// is non-nil only while the session is active and media started.
type CallSession struct {
	CallID    string
	ChannelID string
	Channel   *Channel
	Target    media.RTPTarget
	StartTime time.Time

	machine  *fsm.FSM
	relay    media.Relay
	stopOnce sync.Once
}

// State returns the session's current state.
func (s *CallSession) State() string {
	return s.machine.Current()
}

// stopRelay terminates the session's relay at most once.
func (s *CallSession) stopRelay() {
	s.stopOnce.Do(func() {
		if s.relay != nil {
			s.relay.Stop()
			metrics.RemoveRelay()
		}
	})
}

// Responder sends a response correlated to the request being handled, back
// to the datagram's source address.
type Responder func(resp *sip.Message) error

// SessionManager owns the per-call lifecycle: INVITE answers, relay
// start/stop, BYE teardown. It is mutated only from dispatcher-invoked
// handlers; the mutex covers the shutdown path.
type SessionManager struct {
	identity *Identity
	registry *Registry
	bridge   media.Bridge
	logger   *logrus.Logger

	mu       sync.Mutex
	sessions map[string]*CallSession
}

// NewSessionManager creates a session manager over the channel registry and
// media bridge.
func NewSessionManager(identity *Identity, registry *Registry, bridge media.Bridge, logger *logrus.Logger) *SessionManager {
	return &SessionManager{
		identity: identity,
		registry: registry,
		bridge:   bridge,
		logger:   logger,
		sessions: make(map[string]*CallSession),
	}
}

func newSessionFSM() *fsm.FSM {
	return fsm.NewFSM(
		SessionIdle,
		fsm.Events{
			{Name: "invite", Src: []string{SessionIdle}, Dst: SessionTrying},
			{Name: "answer", Src: []string{SessionTrying}, Dst: SessionActive},
			{Name: "bye", Src: []string{SessionActive, SessionTrying}, Dst: SessionTerminated},
		},
		fsm.Callbacks{},
	)
}

// extractChannel resolves the requested channel from the request-URI or the
// To header (20-digit device code). When neither yields a configured
// channel, the first configured channel is the documented fallback.
func (m *SessionManager) extractChannel(req *sip.Message) *Channel {
	for _, candidate := range []string{req.RequestURI, req.GetHeader("To")} {
		match := channelIDPattern.FindStringSubmatch(candidate)
		if match == nil {
			continue
		}
		if ch, ok := m.registry.Find(match[1]); ok {
			return ch
		}
		m.logger.WithField("channel_id", match[1]).Warn("INVITE for unconfigured channel, falling back to first channel")
		return m.registry.First()
	}
	m.logger.Warn("INVITE without parseable channel id, falling back to first channel")
	return m.registry.First()
}

// HandleInvite answers an inbound INVITE: 100 Trying, then 200 OK with the
// SDP answer, then relay start when the negotiated port is nonzero. Relay
// failure does not fail the signaling transaction; the session stays active
// without media.
func (m *SessionManager) HandleInvite(ctx context.Context, req *sip.Message, respond Responder) {
	callID := req.GetHeader("Call-ID")
	channel := m.extractChannel(req)
	target := media.ExtractRTPTarget(req.Body, m.identity.ServerIP)

	log := m.logger.WithFields(logrus.Fields{
		"call_id":    callID,
		"channel_id": channel.ID,
		"rtp_target": target.IP,
		"rtp_port":   target.Port,
		"ssrc":       target.SSRC,
	})
	log.Info("INVITE received")

	session := &CallSession{
		CallID:    callID,
		ChannelID: channel.ID,
		Channel:   channel,
		Target:    target,
		StartTime: time.Now(),
		machine:   newSessionFSM(),
	}
	_ = session.machine.Event(ctx, "invite")

	trying := sip.NewResponse(req, 100, "Trying", "")
	if err := respond(trying); err != nil {
		log.WithError(err).Error("Failed to send 100 Trying")
		return
	}

	answer, err := media.BuildAnswer(m.identity.LocalIP, channel.SourceURL, target.SSRC)
	if err != nil {
		log.WithError(err).Error("Failed to build SDP answer")
		return
	}

	ok := sip.NewResponse(req, 200, "OK", sip.NewTag())
	ok.AddHeader("Contact", contactFor(channel.ID, m.identity))
	ok.AddHeader("Content-Type", "application/sdp")
	ok.Body = answer
	if err := respond(ok); err != nil {
		log.WithError(err).Error("Failed to send 200 OK")
		return
	}
	_ = session.machine.Event(ctx, "answer")

	if target.Port > 0 {
		relay, err := m.bridge.Start(channel.SourceURL, target.IP, target.Port, target.SSRC)
		if err != nil {
			// Session stays active without media.
			metrics.IncRelayStart("failed")
			log.WithError(err).Warn("Media relay failed to start")
		} else {
			session.relay = relay
			metrics.IncRelayStart("ok")
			metrics.AddRelay()
		}
	} else {
		log.Debug("Offer negotiated port 0, not starting relay")
	}

	m.mu.Lock()
	if existing, ok := m.sessions[callID]; ok {
		// One active session per Call-ID: a duplicate INVITE replaces
		// the old session and its relay.
		existing.stopRelay()
	} else {
		metrics.AddSession()
	}
	m.sessions[callID] = session
	m.mu.Unlock()
}

// HandleBye tears a session down. The 200 OK is sent for unknown Call-IDs
// too; teardown is idempotent.
func (m *SessionManager) HandleBye(ctx context.Context, req *sip.Message, respond Responder) {
	callID := req.GetHeader("Call-ID")
	if err := respond(sip.NewResponse(req, 200, "OK", sip.NewTag())); err != nil {
		m.logger.WithError(err).Error("Failed to send 200 OK to BYE")
	}

	m.mu.Lock()
	session, ok := m.sessions[callID]
	if ok {
		delete(m.sessions, callID)
	}
	m.mu.Unlock()

	if !ok {
		m.logger.WithError(errors.NewSessionNotFound(callID)).Debug("BYE for unknown session")
		return
	}

	_ = session.machine.Event(ctx, "bye")
	session.stopRelay()
	metrics.RemoveSession()
	m.logger.WithFields(logrus.Fields{
		"call_id":    callID,
		"channel_id": session.ChannelID,
		"duration":   time.Since(session.StartTime).Round(time.Second).String(),
	}).Info("Session terminated")
}

// HandleAck acknowledges nothing: SIP sends no response to an ACK.
func (m *SessionManager) HandleAck(req *sip.Message) {
	m.logger.WithField("call_id", req.GetHeader("Call-ID")).Debug("ACK received")
}

// Get returns the session for a Call-ID.
func (m *SessionManager) Get(callID string) (*CallSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callID]
	return s, ok
}

// Count returns the number of active sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown force-stops every still-active relay. Called before the transport
// closes.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*CallSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*CallSession)
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.machine.Event(ctx, "bye")
		s.stopRelay()
		metrics.RemoveSession()
	}
	if len(sessions) > 0 {
		m.logger.WithField("count", len(sessions)).Info("All sessions terminated on shutdown")
	}
	return nil
}

func contactFor(channelID string, id *Identity) string {
	return fmt.Sprintf("<sip:%s@%s:%d>", channelID, id.LocalIP, id.LocalPort)
}
