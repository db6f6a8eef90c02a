package helpers

import (
	"bytes"
	"net"
	"strings"
)

// IPClassification is the security class of an IP address as seen by outbound
// fetches of attacker-influenced URLs.
type IPClassification int

const (
	// IPClassificationPublic is a publicly routable address.
	IPClassificationPublic IPClassification = iota
	// IPClassificationLoopback is 127.0.0.0/8 or ::1.
	IPClassificationLoopback
	// IPClassificationPrivate is RFC 1918 (IPv4) or RFC 4193 fc00::/7 (IPv6).
	IPClassificationPrivate
	// IPClassificationLinkLocal is 169.254.0.0/16, fe80::/10 or link-local multicast.
	// The cloud instance metadata endpoint 169.254.169.254 falls in here.
	IPClassificationLinkLocal
	// IPClassificationUnspecified is 0.0.0.0 or ::.
	IPClassificationUnspecified
	// IPClassificationSharedAddress is RFC 6598 carrier-grade NAT space (100.64.0.0/10).
	IPClassificationSharedAddress
)

// sharedAddressSpace is RFC 6598 CGNAT space. Some cloud providers route internal
// services through it (e.g. Alibaba's metadata service at 100.100.100.200).
var sharedAddressSpace = &net.IPNet{
	IP:   net.IPv4(100, 64, 0, 0),
	Mask: net.CIDRMask(10, 32),
}

// blockedHostnames are names that resolve to instance metadata services or the
// local machine on common platforms. They are rejected before any DNS lookup.
var blockedHostnames = map[string]struct{}{
	"localhost":                  {},
	"metadata":                   {},
	"metadata.google.internal":   {},
	"instance-data":              {},
	"instance-data.ec2.internal": {},
	"metadata.azure.internal":    {},
}

// String returns a human-readable name for the IP classification.
func (c IPClassification) String() string {
	switch c {
	case IPClassificationPublic:
		return "public"
	case IPClassificationLoopback:
		return "loopback"
	case IPClassificationPrivate:
		return "private"
	case IPClassificationLinkLocal:
		return "link_local"
	case IPClassificationUnspecified:
		return "unspecified"
	case IPClassificationSharedAddress:
		return "shared_address"
	default:
		return "unknown"
	}
}

// nat64Prefix is the RFC 6052 well-known NAT64 prefix 64:ff9b::/96.
var nat64Prefix = []byte{0, 0x64, 0xff, 0x9b, 0, 0, 0, 0, 0, 0, 0, 0}

// ClassifyIP returns the security classification of an IP address.
// IPv6 addresses that carry an IPv4 address are classified as that IPv4
// address: IPv4-mapped (::ffff:a.b.c.d), IPv4-compatible (::a.b.c.d),
// NAT64 (64:ff9b::a.b.c.d) and 6to4 (2002:aabb:ccdd::/48).
// A nil IP is reported as unspecified.
func ClassifyIP(ip net.IP) IPClassification {
	if ip == nil {
		return IPClassificationUnspecified
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}

	switch {
	case ip.IsUnspecified():
		return IPClassificationUnspecified
	case ip.IsLoopback():
		return IPClassificationLoopback
	}

	if v4 := embeddedIPv4(ip); v4 != nil {
		return ClassifyIP(v4)
	}

	switch {
	case IsLinkLocal(ip):
		return IPClassificationLinkLocal
	case ip.IsPrivate():
		return IPClassificationPrivate
	case sharedAddressSpace.Contains(ip):
		return IPClassificationSharedAddress
	}
	return IPClassificationPublic
}

// embeddedIPv4 returns the IPv4 address inside an IPv4-compatible, NAT64 or
// 6to4 IPv6 address, or nil.
func embeddedIPv4(ip net.IP) net.IP {
	if len(ip) != net.IPv6len {
		return nil
	}
	switch {
	case isZero(ip[:12]), bytes.Equal(ip[:12], nat64Prefix):
		return net.IPv4(ip[12], ip[13], ip[14], ip[15]).To4()
	case ip[0] == 0x20 && ip[1] == 0x02:
		return net.IPv4(ip[2], ip[3], ip[4], ip[5]).To4()
	}
	return nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// IsLinkLocal reports whether ip is link-local unicast or multicast.
func IsLinkLocal(ip net.IP) bool {
	return ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// IsPrivateOrInternal reports whether ip is anything other than public.
func IsPrivateOrInternal(ip net.IP) bool {
	return ClassifyIP(ip) != IPClassificationPublic
}

// IsBlockedHostname reports whether hostname is a well-known local or metadata
// service name. Expects a hostname without port, as returned by url.URL.Hostname().
func IsBlockedHostname(hostname string) bool {
	h := strings.TrimSuffix(strings.ToLower(hostname), ".")
	if _, ok := blockedHostnames[h]; ok {
		return true
	}
	return strings.HasSuffix(h, ".localhost")
}

// ParseHostIP returns the IP if hostname is an IP literal (brackets allowed for
// IPv6), or nil otherwise.
func ParseHostIP(hostname string) net.IP {
	h := hostname
	if len(h) > 2 && h[0] == '[' && h[len(h)-1] == ']' {
		h = h[1 : len(h)-1]
	}
	return net.ParseIP(h)
}
