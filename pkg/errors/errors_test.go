package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCapturesLocation(t *testing.T) {
	err := New("something broke", map[string]interface{}{"attempt": 1})

	assert.Equal(t, "something broke: something broke", err.Error())
	assert.Equal(t, 1, err.GetFields()["attempt"])
	assert.True(t, strings.HasPrefix(err.Location(), "errors_test.go:"))
}

func TestWrapPreservesOriginal(t *testing.T) {
	cause := stderrors.New("socket closed")
	err := Wrap(cause, "send failed", map[string]interface{}{"dest": "1.2.3.4"})

	assert.Equal(t, "send failed: socket closed", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "1.2.3.4", err.GetFields()["dest"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "should vanish"))
}

func TestWithFieldDoesNotMutateOriginal(t *testing.T) {
	base := New("base", map[string]interface{}{"a": 1})
	derived := base.WithField("b", 2)

	assert.Equal(t, 2, derived.GetFields()["b"])
	assert.NotContains(t, base.GetFields(), "b")
	assert.Equal(t, 1, derived.GetFields()["a"])
}

func TestWithCode(t *testing.T) {
	err := New("base").WithCode("CUSTOM_CODE")
	assert.Equal(t, "CUSTOM_CODE", err.GetCode())
	assert.Equal(t, "CUSTOM_CODE", GetErrorCode(err))
}

func TestDomainConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		code     string
	}{
		{"parse", NewParseError("truncated start line"), ErrParse, "PARSE_ERROR"},
		{"protocol", NewProtocolError("missing CSeq"), ErrProtocol, "PROTOCOL_ERROR"},
		{"auth", NewAuthError("challenge rejected"), ErrAuth, "AUTH_ERROR"},
		{"transport", NewTransportError("socket gone"), ErrTransport, "TRANSPORT_ERROR"},
		{"relay", NewRelayError("ffmpeg exited"), ErrRelay, "RELAY_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, IsErrorType(tt.err, tt.sentinel))
			assert.Equal(t, tt.code, GetErrorCode(tt.err))
		})
	}
}

func TestSessionNotFoundCarriesCallID(t *testing.T) {
	err := NewSessionNotFound("abc@192.168.1.50")

	require.True(t, IsErrorType(err, ErrSessionNotFound))
	assert.Equal(t, "abc@192.168.1.50", err.GetFields()["call_id"])
}

func TestIsErrorTypeThroughWrapping(t *testing.T) {
	inner := NewTransportError("send failed")
	outer := Wrap(inner, "register aborted")

	assert.True(t, IsErrorType(outer, ErrTransport))
	assert.False(t, IsErrorType(outer, ErrAuth))
}

func TestGetErrorCodeOnPlainError(t *testing.T) {
	assert.Equal(t, "", GetErrorCode(fmt.Errorf("plain")))
	assert.Equal(t, "TRANSPORT_ERROR", GetErrorCode(fmt.Errorf("wrapped: %w", NewTransportError("x"))))
}
