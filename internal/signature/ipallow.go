package signature

import (
	"strconv"
	"strings"
)

// AllowList is an optional secondary gate that checks a caller IP against a
// list of exact addresses or IPv4 CIDR prefixes. It is deliberately weaker
// than signature verification and must never be the sole gate on a webhook
// endpoint; it exists to narrow exposure for providers that publish source
// ranges.
type AllowList struct {
	entries []string
}

// NewAllowList builds an allow list from exact IPs ("203.0.113.7") and
// IPv4 CIDR entries ("203.0.113.0/24"). CIDR matching is a prefix match over
// octets and only supports /8, /16, and /24.
func NewAllowList(entries []string) *AllowList {
	cleaned := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e != "" {
			cleaned = append(cleaned, e)
		}
	}
	return &AllowList{entries: cleaned}
}

// Contains reports whether ip matches any entry. An empty list matches
// nothing.
func (l *AllowList) Contains(ip string) bool {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return false
	}
	for _, entry := range l.entries {
		if matchEntry(entry, ip) {
			return true
		}
	}
	return false
}

func matchEntry(entry, ip string) bool {
	base, bits, ok := strings.Cut(entry, "/")
	if !ok {
		return entry == ip
	}

	n, err := strconv.Atoi(bits)
	if err != nil || n%8 != 0 || n < 8 || n > 24 {
		return false
	}
	octets := n / 8

	baseParts := strings.Split(base, ".")
	ipParts := strings.Split(ip, ".")
	if len(baseParts) != 4 || len(ipParts) != 4 {
		return false
	}
	for i := 0; i < octets; i++ {
		if baseParts[i] != ipParts[i] {
			return false
		}
	}
	return true
}
