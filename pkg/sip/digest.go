package sip

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
)

var (
	realmPattern = regexp.MustCompile(`realm="([^"]*)"`)
	noncePattern = regexp.MustCompile(`nonce="([^"]*)"`)
)

// Challenge holds the fields extracted from a WWW-Authenticate header.
type Challenge struct {
	Realm string
	Nonce string
}

// ParseChallenge extracts realm and nonce from a WWW-Authenticate header
// value. A missing nonce yields an empty string rather than an error; the
// client proceeds best-effort (GB28181 platforms with auth disabled send
// incomplete challenges).
func ParseChallenge(header string) Challenge {
	var c Challenge
	if m := realmPattern.FindStringSubmatch(header); m != nil {
		c.Realm = m[1]
	}
	if m := noncePattern.FindStringSubmatch(header); m != nil {
		c.Nonce = m[1]
	}
	return c
}

// md5 is mandated by the GB28181 wire protocol for registration digests.
// This is a compatibility requirement, not a security boundary.
func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// DigestResponse computes the RFC 2617 digest response:
// HA1 = MD5(username:realm:password), HA2 = MD5(method:uri),
// response = MD5(HA1:nonce:HA2), each rendered as lowercase hex.
func DigestResponse(username, realm, password, method, uri, nonce string) string {
	ha1 := md5Hex(fmt.Sprintf("%s:%s:%s", username, realm, password))
	ha2 := md5Hex(fmt.Sprintf("%s:%s", method, uri))
	return md5Hex(fmt.Sprintf("%s:%s:%s", ha1, nonce, ha2))
}

// AuthorizationHeader builds the Authorization header value for an
// authenticated REGISTER. Field order is fixed: username, realm, nonce, uri,
// response, algorithm.
func AuthorizationHeader(username, realm, password, method, uri, nonce string) string {
	response := DigestResponse(username, realm, password, method, uri, nonce)
	return fmt.Sprintf(`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s", algorithm=MD5`,
		username, realm, nonce, uri, response)
}
