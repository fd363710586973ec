package sip

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// BranchMagic is the RFC 3261 cookie every branch parameter starts with.
const BranchMagic = "z9hG4bK"

func token() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// NewCallID generates a Call-ID scoped to the given local address.
func NewCallID(localIP string) string {
	return fmt.Sprintf("%s@%s", token(), localIP)
}

// NewTag generates a From/To tag.
func NewTag() string {
	return token()
}

// NewBranch generates a Via branch parameter. A fresh branch is required per
// transaction and must never be reused.
func NewBranch() string {
	return BranchMagic + token()
}
