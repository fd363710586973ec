package gb28181

import (
	"context"
	"time"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"gb28181-simulator/pkg/errors"
	"gb28181-simulator/pkg/metrics"
	"gb28181-simulator/pkg/sip"
)

// Registration states.
const (
	StateUnregistered      = "unregistered"
	StateAwaitingChallenge = "awaiting_challenge"
	StateAuthenticating    = "authenticating"
	StateAwaitingConfirm   = "awaiting_confirm"
	StateRegistered        = "registered"
	StateFailed            = "failed"
)

// Sender transmits one encoded SIP message to the platform.
type Sender interface {
	Send(data []byte) error
}

// Registrar drives the REGISTER handshake: plain REGISTER, digest challenge,
// authenticated REGISTER, confirmation. Responses arrive on the channel fed
// by the dispatcher's receive loop.
type Registrar struct {
	identity  *Identity
	sender    Sender
	responses <-chan *sip.Message
	timeout   time.Duration
	machine   *fsm.FSM
	logger    *logrus.Logger
}

// NewRegistrar creates a registrar over the shared transport.
func NewRegistrar(identity *Identity, sender Sender, responses <-chan *sip.Message, timeout time.Duration, logger *logrus.Logger) *Registrar {
	r := &Registrar{
		identity:  identity,
		sender:    sender,
		responses: responses,
		timeout:   timeout,
		logger:    logger,
	}
	r.machine = fsm.NewFSM(
		StateUnregistered,
		fsm.Events{
			{Name: "send", Src: []string{StateUnregistered}, Dst: StateAwaitingChallenge},
			{Name: "challenge", Src: []string{StateAwaitingChallenge}, Dst: StateAuthenticating},
			{Name: "resend", Src: []string{StateAuthenticating}, Dst: StateAwaitingConfirm},
			{Name: "confirm", Src: []string{StateAwaitingChallenge, StateAwaitingConfirm}, Dst: StateRegistered},
			{Name: "fail", Src: []string{StateUnregistered, StateAwaitingChallenge, StateAuthenticating, StateAwaitingConfirm}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				logger.WithFields(logrus.Fields{
					"from": e.Src,
					"to":   e.Dst,
				}).Debug("Registration state changed")
			},
		},
	)
	return r
}

// State returns the current registration state.
func (r *Registrar) State() string {
	return r.machine.Current()
}

// Run executes the registration handshake. A timeout or a final status other
// than 200/401 ends in the failed state; the caller treats that as fatal for
// this run, there is no retry loop.
func (r *Registrar) Run(ctx context.Context) error {
	if err := r.sendRegister(ctx, ""); err != nil {
		return r.fail(ctx, err)
	}
	_ = r.machine.Event(ctx, "send")

	resp := r.awaitResponse(ctx)
	if resp == nil {
		return r.fail(ctx, errors.Wrap(errors.ErrRegistration, "no response to REGISTER"))
	}

	if resp.StatusCode == 401 {
		challenge := sip.ParseChallenge(resp.GetHeader("WWW-Authenticate"))
		if challenge.Nonce == "" {
			// Proceed best-effort with an empty nonce rather than
			// aborting; some platforms challenge with auth disabled.
			r.logger.Warn("401 challenge without usable nonce, authenticating with empty nonce")
		}
		_ = r.machine.Event(ctx, "challenge")

		if err := r.sendRegister(ctx, r.identity.AuthorizationFor(challenge)); err != nil {
			return r.fail(ctx, err)
		}
		_ = r.machine.Event(ctx, "resend")

		resp = r.awaitResponse(ctx)
		if resp == nil {
			return r.fail(ctx, errors.Wrap(errors.ErrRegistration, "no response to authenticated REGISTER"))
		}
	}

	if resp.StatusCode == 200 {
		_ = r.machine.Event(ctx, "confirm")
		r.logger.WithField("device_id", r.identity.DeviceID).Info("Device registered")
		return nil
	}

	return r.fail(ctx, errors.Wrap(errors.ErrRegistration, "registration rejected", map[string]interface{}{
		"status": resp.StatusCode,
		"reason": resp.Reason,
	}))
}

// sendAttempts bounds resends on transport failure before giving up.
const sendAttempts = 3

func (r *Registrar) sendRegister(ctx context.Context, authorization string) error {
	req := r.identity.NewRegister(authorization)
	r.logger.WithFields(logrus.Fields{
		"cseq":          r.identity.CSeq(),
		"authenticated": authorization != "",
	}).Info("Sending REGISTER")
	metrics.IncRequestSent("REGISTER")

	var err error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		if err = r.sender.Send(req.Encode()); err == nil {
			return nil
		}
		r.logger.WithError(err).WithField("attempt", attempt).Warn("REGISTER send failed")
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "registration canceled")
		}
	}
	return errors.Wrap(err, "REGISTER send failed")
}

// awaitResponse waits up to the configured timeout for the next response
// routed to us by the dispatcher. Nil means timeout or cancellation.
func (r *Registrar) awaitResponse(ctx context.Context) *sip.Message {
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case resp := <-r.responses:
		r.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"reason": resp.Reason,
		}).Info("Registration response received")
		return resp
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (r *Registrar) fail(ctx context.Context, err error) error {
	_ = r.machine.Event(ctx, "fail")
	r.logger.WithError(err).Error("Registration failed")
	return err
}
