package sip

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gb28181-simulator/pkg/errors"
)

func TestParseRequest(t *testing.T) {
	raw := "MESSAGE sip:34020000002000000001@192.168.1.100:5060 SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP 192.168.1.50:5080;rport;branch=z9hG4bKabc\r\n" +
		"From: <sip:34020000001320000001@3402000000>;tag=123456\r\n" +
		"To: <sip:34020000002000000001@3402000000>\r\n" +
		"Call-ID: 111111@192.168.1.50\r\n" +
		"CSeq: 2 MESSAGE\r\n" +
		"Content-Length: 4\r\n" +
		"\r\n" +
		"body"

	msg, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.False(t, msg.IsResponse())
	assert.Equal(t, "MESSAGE", msg.Method)
	assert.Equal(t, "sip:34020000002000000001@192.168.1.100:5060", msg.RequestURI)
	assert.Equal(t, "2 MESSAGE", msg.GetHeader("CSeq"))
	assert.Equal(t, []byte("body"), msg.Body)
}

func TestParseResponse(t *testing.T) {
	raw := "SIP/2.0 401 Unauthorized\r\n" +
		"WWW-Authenticate: Digest realm=\"3402000000\", nonce=\"abc123\"\r\n" +
		"\r\n"

	msg, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.True(t, msg.IsResponse())
	assert.Equal(t, 401, msg.StatusCode)
	assert.Equal(t, "Unauthorized", msg.Reason)
}

func TestHeaderLookupCaseInsensitive(t *testing.T) {
	msg := NewRequest("INVITE", "sip:test@example.com")
	msg.AddHeader("Call-ID", "abc")

	assert.Equal(t, "abc", msg.GetHeader("call-id"))
	assert.Equal(t, "abc", msg.GetHeader("CALL-ID"))
	assert.True(t, msg.HasHeader("cAll-Id"))
	assert.Equal(t, "", msg.GetHeader("Missing"))
}

func TestEncodeSetsExactContentLength(t *testing.T) {
	msg := NewRequest("MESSAGE", "sip:server@example.com")
	msg.AddHeader("Call-ID", "x")
	msg.Body = []byte("<Notify></Notify>")

	wire := string(msg.Encode())
	assert.Contains(t, wire, "Content-Length: 17\r\n")
	assert.True(t, strings.HasSuffix(wire, "\r\n\r\n<Notify></Notify>"))
}

func TestRoundTrip(t *testing.T) {
	msg := NewRequest("INVITE", "sip:34020000001320000132@3402000000")
	msg.AddHeader("Via", "SIP/2.0/UDP 1.2.3.4:5060;branch=z9hG4bKxyz")
	msg.AddHeader("From", "<sip:server@realm>;tag=s1")
	msg.AddHeader("To", "<sip:34020000001320000132@realm>")
	msg.AddHeader("Call-ID", "call-1")
	msg.AddHeader("CSeq", "1 INVITE")
	msg.AddHeader("Content-Type", "application/sdp")
	msg.Body = []byte("v=0\r\nc=IN IP4 1.2.3.4\r\nm=video 30000 RTP/AVP 96\r\ny=0000001234\r\n")

	wire := msg.Encode()
	decoded, err := Parse(wire)
	require.NoError(t, err)

	assert.Equal(t, wire, decoded.Encode())
	assert.Equal(t, msg.Headers(), decoded.Headers())
	assert.Equal(t, msg.Body, decoded.Body)
}

func TestParseGarbage(t *testing.T) {
	for _, raw := range [][]byte{
		nil,
		{},
		[]byte("not a sip message"),
		[]byte("SIP/2.0 abc def\r\n\r\n"),
		[]byte("\r\n\r\n"),
	} {
		_, err := Parse(raw)
		require.Error(t, err)
		assert.True(t, errors.IsErrorType(err, errors.ErrParse), "expected ParseError for %q", raw)
	}
}

func TestNewResponseCorrelation(t *testing.T) {
	req := NewRequest("BYE", "sip:device@example.com")
	req.AddHeader("Via", "SIP/2.0/UDP 1.2.3.4:5060;branch=z9hG4bKabc")
	req.AddHeader("From", "<sip:server@realm>;tag=srv")
	req.AddHeader("To", "<sip:device@realm>")
	req.AddHeader("Call-ID", "call-9")
	req.AddHeader("CSeq", "3 BYE")

	resp := NewResponse(req, 200, "OK", "devtag")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, req.GetHeader("Via"), resp.GetHeader("Via"))
	assert.Equal(t, req.GetHeader("From"), resp.GetHeader("From"))
	assert.Equal(t, req.GetHeader("Call-ID"), resp.GetHeader("Call-ID"))
	assert.Equal(t, req.GetHeader("CSeq"), resp.GetHeader("CSeq"))
	assert.Equal(t, "<sip:device@realm>;tag=devtag", resp.GetHeader("To"))
}

func TestNewResponseKeepsExistingToTag(t *testing.T) {
	req := NewRequest("BYE", "sip:device@example.com")
	req.AddHeader("To", "<sip:device@realm>;tag=already")

	resp := NewResponse(req, 200, "OK", "devtag")
	assert.Equal(t, "<sip:device@realm>;tag=already", resp.GetHeader("To"))
}

func TestBodyNotEndingOnLineBoundary(t *testing.T) {
	raw := "MESSAGE sip:a@b SIP/2.0\r\nContent-Length: 7\r\n\r\npartial"
	msg, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []byte("partial"), msg.Body)
}
