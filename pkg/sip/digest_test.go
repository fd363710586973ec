package sip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseChallenge(t *testing.T) {
	c := ParseChallenge(`Digest realm="3402000000", nonce="abc123", algorithm=MD5`)
	assert.Equal(t, "3402000000", c.Realm)
	assert.Equal(t, "abc123", c.Nonce)
}

func TestParseChallengeMissingNonce(t *testing.T) {
	c := ParseChallenge(`Digest realm="3402000000"`)
	assert.Equal(t, "3402000000", c.Realm)
	assert.Equal(t, "", c.Nonce)
}

func TestParseChallengeEmpty(t *testing.T) {
	c := ParseChallenge("")
	assert.Equal(t, "", c.Realm)
	assert.Equal(t, "", c.Nonce)
}

// Known-answer test: values precomputed from the RFC 2617 MD5 construction.
func TestDigestResponseKnownAnswer(t *testing.T) {
	response := DigestResponse(
		"34020000001320000001",
		"3402000000",
		"",
		"REGISTER",
		"sip:34020000002000000001@192.168.1.100:5060",
		"abc123",
	)
	assert.Equal(t, "c7ce7d8c73fa307d357b049eafd928e1", response)
}

func TestDigestResponseEmptyNonce(t *testing.T) {
	response := DigestResponse(
		"34020000001320000001",
		"3402000000",
		"",
		"REGISTER",
		"sip:34020000002000000001@192.168.1.100:5060",
		"",
	)
	assert.Equal(t, "0f6f3d2a48a27e1d5d922b5a9850ddd8", response)
}

func TestAuthorizationHeaderFieldOrder(t *testing.T) {
	header := AuthorizationHeader(
		"34020000001320000001",
		"3402000000",
		"",
		"REGISTER",
		"sip:34020000002000000001@192.168.1.100:5060",
		"abc123",
	)
	assert.Equal(t,
		`Digest username="34020000001320000001", realm="3402000000", nonce="abc123", `+
			`uri="sip:34020000002000000001@192.168.1.100:5060", `+
			`response="c7ce7d8c73fa307d357b049eafd928e1", algorithm=MD5`,
		header)
}

func TestIdentifierShapes(t *testing.T) {
	assert.Contains(t, NewCallID("10.0.0.5"), "@10.0.0.5")
	assert.Len(t, NewTag(), 8)
	assert.Contains(t, NewBranch(), BranchMagic)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		b := NewBranch()
		assert.False(t, seen[b], "branch reused")
		seen[b] = true
	}
}
