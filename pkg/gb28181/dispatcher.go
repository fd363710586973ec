package gb28181

import (
	"bytes"
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"gb28181-simulator/pkg/config"
	"gb28181-simulator/pkg/errors"
	"gb28181-simulator/pkg/metrics"
	"gb28181-simulator/pkg/sip"
	"gb28181-simulator/pkg/transport"
)

// Dispatcher is the single receiver for the shared socket. Every inbound
// datagram is decoded here; responses are demultiplexed to the response
// channel consumed by the registration handshake and the heartbeat loop,
// requests are routed to handlers by method. Running both periodic
// activities through one receiver removes the race two competing readers
// would have over which of them consumes a given reply.
type Dispatcher struct {
	transport *transport.UDPTransport
	identity  *Identity
	registry  *Registry
	sessions  *SessionManager
	logger    *logrus.Logger

	poll         time.Duration
	catalogDelay time.Duration

	responses chan *sip.Message
}

// NewDispatcher wires the receive loop to the session manager and registry.
func NewDispatcher(t *transport.UDPTransport, identity *Identity, registry *Registry, sessions *SessionManager, cfg *config.Config, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		transport:    t,
		identity:     identity,
		registry:     registry,
		sessions:     sessions,
		logger:       logger,
		poll:         cfg.ReceivePoll,
		catalogDelay: cfg.CatalogDelay,
		responses:    make(chan *sip.Message, 8),
	}
}

// Responses is the channel responses are demultiplexed onto. Consumed by
// the registrar during startup and the heartbeat loop afterwards.
func (d *Dispatcher) Responses() <-chan *sip.Message {
	return d.responses
}

// Run receives until the context is canceled. The short poll timeout bounds
// how long cancellation can go unobserved.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("Command dispatcher listening")
	for {
		if ctx.Err() != nil {
			d.logger.Debug("Dispatcher stopping")
			return
		}

		data, addr, err := d.transport.Receive(d.poll)
		if err != nil {
			if errors.IsErrorType(err, errors.ErrTimeout) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			d.logger.WithError(err).Warn("Receive failed")
			continue
		}

		msg, err := sip.Parse(data)
		if err != nil {
			// Malformed datagrams are logged and dropped, never fatal.
			metrics.IncParseError()
			d.logger.WithError(err).WithField("source", addr.String()).Warn("Dropping unparseable datagram")
			continue
		}

		if msg.IsResponse() {
			select {
			case d.responses <- msg:
			default:
				d.logger.WithFields(logrus.Fields{
					"status": msg.StatusCode,
					"cseq":   msg.GetHeader("CSeq"),
				}).Debug("Unmatched response discarded")
			}
			continue
		}

		metrics.IncRequestReceived(msg.Method)
		d.dispatch(ctx, msg, addr)
	}
}

// dispatch routes one request. Handlers only block to send their synchronous
// acknowledgement; the catalog body and relay startup are deferred off the
// loop.
func (d *Dispatcher) dispatch(ctx context.Context, req *sip.Message, addr *net.UDPAddr) {
	respond := d.responderFor(addr)
	log := d.logger.WithFields(logrus.Fields{
		"method":  req.Method,
		"source":  addr.String(),
		"call_id": req.GetHeader("Call-ID"),
	})

	switch req.Method {
	case "MESSAGE":
		d.handleMessage(ctx, req, respond, log)
	case "INVITE":
		d.sessions.HandleInvite(ctx, req, respond)
	case "BYE":
		d.sessions.HandleBye(ctx, req, respond)
	case "ACK":
		d.sessions.HandleAck(req)
	default:
		// Permissive default: acknowledge methods we do not model.
		log.Debug("Acknowledging unhandled method")
		d.sendOK(req, respond, log)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, req *sip.Message, respond Responder, log *logrus.Entry) {
	switch {
	case bytes.Contains(req.Body, []byte("Catalog")):
		log.Info("Catalog query received")
		d.sendOK(req, respond, log)
		d.deferredReply(ctx, req, "catalog")
	case bytes.Contains(req.Body, []byte("DeviceInfo")):
		log.Info("DeviceInfo query received")
		d.sendOK(req, respond, log)
		d.deferredReply(ctx, req, "deviceinfo")
	case bytes.Contains(req.Body, []byte("Keepalive")):
		// The platform echoing keepalives needs no action.
		log.Debug("Keepalive MESSAGE observed")
	default:
		d.sendOK(req, respond, log)
	}
}

// deferredReply emits the query's answer as a separate MESSAGE after a brief
// delay, so the 200 OK and the answer do not collide at the server (UDP
// gives no ordering guarantee between the two datagrams).
func (d *Dispatcher) deferredReply(ctx context.Context, req *sip.Message, kind string) {
	sn := 1
	if q, err := ParseQuery(req.Body); err == nil && q.SN != 0 {
		sn = q.SN
	}

	go func() {
		select {
		case <-time.After(d.catalogDelay):
		case <-ctx.Done():
			return
		}

		var body []byte
		var err error
		switch kind {
		case "catalog":
			body, err = BuildCatalogBody(d.identity.DeviceID, d.identity.Realm, sn, d.registry.All())
		case "deviceinfo":
			body, err = BuildDeviceInfoBody(d.identity.DeviceID, sn, d.registry.Count())
		}
		if err != nil {
			d.logger.WithError(err).Error("Failed to build query reply")
			return
		}

		msg := d.identity.NewMessage(body)
		metrics.IncRequestSent("MESSAGE")
		if err := d.transport.Send(msg.Encode()); err != nil {
			d.logger.WithError(err).Warn("Failed to send query reply")
			return
		}
		d.logger.WithFields(logrus.Fields{
			"kind": kind,
			"sn":   sn,
		}).Info("Query reply sent")
	}()
}

func (d *Dispatcher) responderFor(addr *net.UDPAddr) Responder {
	return func(resp *sip.Message) error {
		metrics.IncResponseSent(resp.StatusCode)
		return d.transport.SendTo(resp.Encode(), addr)
	}
}

func (d *Dispatcher) sendOK(req *sip.Message, respond Responder, log *logrus.Entry) {
	if err := respond(sip.NewResponse(req, 200, "OK", sip.NewTag())); err != nil {
		log.WithError(err).Warn("Failed to send 200 OK")
	}
}
