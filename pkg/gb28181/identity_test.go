package gb28181

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gb28181-simulator/pkg/config"
	"gb28181-simulator/pkg/sip"
)

func testConfig() *config.Config {
	return &config.Config{
		ServerIP:        "192.168.1.100",
		ServerPort:      5060,
		DeviceID:        config.DefaultDeviceID,
		ServerID:        config.DefaultServerID,
		Realm:           config.DefaultRealm,
		RegisterExpires: 3600,
	}
}

func testIdentity() *Identity {
	return NewIdentity(testConfig(), "192.168.1.50", 5080)
}

func TestCSeqStrictlyMonotonic(t *testing.T) {
	id := testIdentity()
	last := int64(0)
	for i := 0; i < 50; i++ {
		var next int64
		if i%2 == 0 {
			next = extractCSeq(t, id.NewRegister(""))
		} else {
			next = extractCSeq(t, id.NewMessage([]byte("x")))
		}
		assert.Greater(t, next, last)
		last = next
	}
}

func extractCSeq(t *testing.T, msg *sip.Message) int64 {
	t.Helper()
	var n int64
	var method string
	_, err := fmt.Sscanf(msg.GetHeader("CSeq"), "%d %s", &n, &method)
	require.NoError(t, err)
	return n
}

func TestRegisterHeaders(t *testing.T) {
	id := testIdentity()
	req := id.NewRegister("")

	assert.Equal(t, "REGISTER", req.Method)
	assert.Equal(t, "sip:34020000002000000001@192.168.1.100:5060", req.RequestURI)
	assert.Contains(t, req.GetHeader("Via"), "SIP/2.0/UDP 192.168.1.50:5080;rport;branch=z9hG4bK")
	assert.Contains(t, req.GetHeader("From"), "<sip:34020000001320000001@3402000000>;tag=")
	assert.Equal(t, "<sip:34020000001320000001@3402000000>", req.GetHeader("To"))
	assert.Equal(t, "<sip:34020000001320000001@192.168.1.50:5080>", req.GetHeader("Contact"))
	assert.Equal(t, "3600", req.GetHeader("Expires"))
	assert.False(t, req.HasHeader("Authorization"))
}

func TestRegisterDialogStability(t *testing.T) {
	id := testIdentity()
	first := id.NewRegister("")
	second := id.NewRegister(`Digest username="x"`)

	// Call-ID and From stay stable across the handshake; the branch must
	// be fresh per transaction.
	assert.Equal(t, first.GetHeader("Call-ID"), second.GetHeader("Call-ID"))
	assert.Equal(t, first.GetHeader("From"), second.GetHeader("From"))
	assert.NotEqual(t, first.GetHeader("Via"), second.GetHeader("Via"))
	assert.True(t, second.HasHeader("Authorization"))
}

func TestNewMessageFreshCallID(t *testing.T) {
	id := testIdentity()
	a := id.NewMessage([]byte("one"))
	b := id.NewMessage([]byte("two"))

	assert.NotEqual(t, a.GetHeader("Call-ID"), b.GetHeader("Call-ID"))
	assert.Equal(t, ContentTypeMANSCDP, a.GetHeader("Content-Type"))
	assert.Equal(t, "<sip:34020000002000000001@3402000000>", a.GetHeader("To"))
	assert.True(t, strings.HasSuffix(string(a.Encode()), "one"))
}

func TestAuthorizationForFallsBackToConfiguredRealm(t *testing.T) {
	id := testIdentity()
	header := id.AuthorizationFor(sip.Challenge{Nonce: "abc123"})
	assert.Contains(t, header, `realm="3402000000"`)
	assert.Contains(t, header, `nonce="abc123"`)
}
