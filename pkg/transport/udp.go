package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"gb28181-simulator/pkg/errors"
)

const readBufferSize = 65535

// UDPTransport is a thin abstraction over one UDP socket shared by all
// signaling loops. Concurrent sends are safe (independent datagrams);
// receives must stay on a single goroutine.
type UDPTransport struct {
	conn       *net.UDPConn
	serverAddr *net.UDPAddr
	localIP    string
	localPort  int
	logger     *logrus.Logger
	buf        []byte
}

// Bind opens a UDP socket on the first free port in [portMin, portMax] and
// resolves the server address. Bind failure is fatal to the caller.
func Bind(serverIP string, serverPort, portMin, portMax int, logger *logrus.Logger) (*UDPTransport, error) {
	serverAddr := &net.UDPAddr{IP: net.ParseIP(serverIP), Port: serverPort}
	if serverAddr.IP == nil {
		resolved, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", serverIP, serverPort))
		if err != nil {
			return nil, errors.NewTransportError("unresolvable server address", map[string]interface{}{
				"server": serverIP,
			})
		}
		serverAddr = resolved
	}

	var conn *net.UDPConn
	var lastErr error
	port := 0
	for p := portMin; p <= portMax; p++ {
		c, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: p})
		if err != nil {
			lastErr = err
			continue
		}
		conn, port = c, p
		break
	}
	if conn == nil {
		return nil, errors.Wrap(lastErr, "no free local port", map[string]interface{}{
			"port_min": portMin,
			"port_max": portMax,
		})
	}

	t := &UDPTransport{
		conn:       conn,
		serverAddr: serverAddr,
		localIP:    discoverLocalIP(serverAddr),
		localPort:  port,
		logger:     logger,
		buf:        make([]byte, readBufferSize),
	}

	logger.WithFields(logrus.Fields{
		"local_addr":  fmt.Sprintf("%s:%d", t.localIP, t.localPort),
		"server_addr": serverAddr.String(),
	}).Info("UDP transport bound")

	return t, nil
}

// discoverLocalIP finds the outbound interface address for the server by
// dialing it; no packet is sent for a UDP dial.
func discoverLocalIP(server *net.UDPAddr) string {
	c, err := net.DialUDP("udp4", nil, server)
	if err != nil {
		return "127.0.0.1"
	}
	defer c.Close()
	return c.LocalAddr().(*net.UDPAddr).IP.String()
}

// LocalIP returns the address this client advertises in Via/Contact headers.
func (t *UDPTransport) LocalIP() string { return t.localIP }

// LocalPort returns the bound port.
func (t *UDPTransport) LocalPort() int { return t.localPort }

// ServerAddr returns the platform's signaling address.
func (t *UDPTransport) ServerAddr() *net.UDPAddr { return t.serverAddr }

// Send transmits one datagram to the platform.
func (t *UDPTransport) Send(data []byte) error {
	return t.SendTo(data, t.serverAddr)
}

// SendTo transmits one datagram to an explicit address (responses go back to
// the request's source, which may differ from the configured server port).
func (t *UDPTransport) SendTo(data []byte, addr *net.UDPAddr) error {
	if _, err := t.conn.WriteToUDP(data, addr); err != nil {
		return errors.Wrap(err, "datagram send failed", map[string]interface{}{
			"dest":  addr.String(),
			"bytes": len(data),
		})
	}
	return nil
}

// Receive blocks for up to timeout and returns one datagram with its source
// address. A timeout yields errors.ErrTimeout.
func (t *UDPTransport) Receive(timeout time.Duration) ([]byte, *net.UDPAddr, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, errors.Wrap(err, "set read deadline")
	}
	n, addr, err := t.conn.ReadFromUDP(t.buf)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return nil, nil, errors.Wrap(errors.ErrTimeout, "receive timed out")
		}
		return nil, nil, errors.Wrap(err, "datagram receive failed")
	}
	data := make([]byte, n)
	copy(data, t.buf[:n])
	return data, addr, nil
}

// Close releases the socket. Callers must have stopped all loops and relays
// first.
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
