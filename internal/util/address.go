package util

import (
	"fmt"
	"net/mail"
	"strings"
)

// NormalizeAddress validates a recipient address and returns the bare
// addr-spec, lowercased on the domain side. Display names are dropped.
func NormalizeAddress(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty address")
	}

	a, err := mail.ParseAddress(s)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", raw, err)
	}

	addr := a.Address
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return "", fmt.Errorf("invalid address %q", raw)
	}

	return addr[:at] + "@" + strings.ToLower(addr[at+1:]), nil
}
