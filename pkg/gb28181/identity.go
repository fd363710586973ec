package gb28181

import (
	"fmt"
	"sync/atomic"

	"gb28181-simulator/pkg/config"
	"gb28181-simulator/pkg/sip"
)

// Identity holds the simulated device's SIP identity. The CSeq counter is
// strictly monotonic across the process lifetime; a fresh Via branch is
// generated per transaction and never reused.
type Identity struct {
	DeviceID string
	ServerID string
	Realm    string
	Password string

	ServerIP   string
	ServerPort int
	LocalIP    string
	LocalPort  int

	Expires int

	// Registration dialog state: Call-ID and From tag stay stable for
	// the lifetime of the registration.
	callID string
	tag    string

	cseq atomic.Int64
}

// NewIdentity derives the device identity from configuration and the bound
// local address.
func NewIdentity(cfg *config.Config, localIP string, localPort int) *Identity {
	return &Identity{
		DeviceID:   cfg.DeviceID,
		ServerID:   cfg.ServerID,
		Realm:      cfg.Realm,
		Password:   cfg.Password,
		ServerIP:   cfg.ServerIP,
		ServerPort: cfg.ServerPort,
		LocalIP:    localIP,
		LocalPort:  localPort,
		Expires:    cfg.RegisterExpires,
		callID:     sip.NewCallID(localIP),
		tag:        sip.NewTag(),
	}
}

// NextCSeq increments and returns the outbound sequence number.
func (id *Identity) NextCSeq() int64 {
	return id.cseq.Add(1)
}

// CSeq returns the current sequence number without incrementing.
func (id *Identity) CSeq() int64 {
	return id.cseq.Load()
}

// Tag returns the stable From tag of the registration dialog.
func (id *Identity) Tag() string {
	return id.tag
}

// ServerURI is the request-URI for requests addressed to the platform.
func (id *Identity) ServerURI() string {
	return fmt.Sprintf("sip:%s@%s:%d", id.ServerID, id.ServerIP, id.ServerPort)
}

func (id *Identity) deviceURI() string {
	return fmt.Sprintf("sip:%s@%s", id.DeviceID, id.Realm)
}

func (id *Identity) viaValue(branch string) string {
	return fmt.Sprintf("SIP/2.0/UDP %s:%d;rport;branch=%s", id.LocalIP, id.LocalPort, branch)
}

// NewRegister builds a REGISTER for the registration dialog. Call-ID and
// From tag stay stable across the handshake; CSeq and branch advance per
// transaction. authorization is appended when non-empty (the authenticated
// resend after a 401).
func (id *Identity) NewRegister(authorization string) *sip.Message {
	req := sip.NewRequest("REGISTER", id.ServerURI())
	req.AddHeader("Via", id.viaValue(sip.NewBranch()))
	req.AddHeader("From", fmt.Sprintf("<%s>;tag=%s", id.deviceURI(), id.tag))
	req.AddHeader("To", fmt.Sprintf("<%s>", id.deviceURI()))
	req.AddHeader("Call-ID", id.callID)
	req.AddHeader("CSeq", fmt.Sprintf("%d REGISTER", id.NextCSeq()))
	req.AddHeader("Contact", fmt.Sprintf("<sip:%s@%s:%d>", id.DeviceID, id.LocalIP, id.LocalPort))
	req.AddHeader("Max-Forwards", "70")
	req.AddHeader("User-Agent", sip.UserAgent)
	req.AddHeader("Expires", fmt.Sprintf("%d", id.Expires))
	if authorization != "" {
		req.AddHeader("Authorization", authorization)
	}
	return req
}

// NewMessage builds an out-of-dialog MANSCDP MESSAGE carrying body. Each
// MESSAGE gets its own Call-ID; From keeps the device tag.
func (id *Identity) NewMessage(body []byte) *sip.Message {
	req := sip.NewRequest("MESSAGE", id.ServerURI())
	req.AddHeader("Via", id.viaValue(sip.NewBranch()))
	req.AddHeader("From", fmt.Sprintf("<%s>;tag=%s", id.deviceURI(), id.tag))
	req.AddHeader("To", fmt.Sprintf("<sip:%s@%s>", id.ServerID, id.Realm))
	req.AddHeader("Call-ID", sip.NewCallID(id.LocalIP))
	req.AddHeader("CSeq", fmt.Sprintf("%d MESSAGE", id.NextCSeq()))
	req.AddHeader("Max-Forwards", "70")
	req.AddHeader("User-Agent", sip.UserAgent)
	req.AddHeader("Content-Type", ContentTypeMANSCDP)
	req.Body = body
	return req
}

// AuthorizationFor computes the digest Authorization header for a challenge
// received on this identity's registration.
func (id *Identity) AuthorizationFor(challenge sip.Challenge) string {
	realm := challenge.Realm
	if realm == "" {
		realm = id.Realm
	}
	return sip.AuthorizationHeader(id.DeviceID, realm, id.Password, "REGISTER", id.ServerURI(), challenge.Nonce)
}
