// Package ips normalizes address expressions — single hosts, host:port
// pairs, inclusive IPv4 ranges and comma-joined combinations — into the
// (host, port) list the fleet runner consumes.
package ips

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/luxops/luxfleet/pkg/models"
)

var ipPortPattern = regexp.MustCompile(`^(?P<ip>\d{1,3}(?:[.]\d{1,3}){3})(?::(?P<port>\d+))?$`)

// SplitAddr splits "host" or "host:port" into its parts. Port 0 means "no
// port given". Hosts may be dotted quads or DNS names; DNS names never
// expand into ranges.
func SplitAddr(txt string) (string, int, error) {
	if m := ipPortPattern.FindStringSubmatch(txt); m != nil {
		port := 0
		if m[2] != "" {
			p, err := strconv.Atoi(m[2])
			if err != nil || p < 1 || p > 65535 {
				return "", 0, fmt.Errorf("invalid port in address %q", txt)
			}
			port = p
		}
		return m[1], port, nil
	}

	// DNS name, optionally with a port.
	host, portTxt, hasPort := strings.Cut(txt, ":")
	if host == "" || strings.ContainsAny(host, " /@") {
		return "", 0, fmt.Errorf("invalid address %q", txt)
	}
	if !hasPort {
		return host, 0, nil
	}
	port, err := strconv.Atoi(portTxt)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in address %q", txt)
	}
	return host, port, nil
}

// IterRanges expands an address expression into (host, port) pairs:
//
//	127.0.0.1
//	127.0.0.1:4028
//	127.0.0.1-127.0.0.5
//	10.0.0.1:4028-10.0.0.9
//	seg1 , seg2 , ...
//
// Whitespace is insignificant. Ranges are inclusive and IPv4-only; a range
// with two ports is valid only when they match. defaultPort fills pairs
// that carry no explicit port; pass 0 to leave them unset.
func IterRanges(txt string, defaultPort int) ([]models.Address, error) {
	var out []models.Address
	for _, segment := range strings.Split(strings.ReplaceAll(txt, " ", ""), ",") {
		if segment == "" {
			continue
		}
		start, end, isRange := strings.Cut(segment, "-")
		// A hyphen inside a DNS name is not a range separator; ranges
		// need an IPv4 on the left.
		if isRange && !ipPortPattern.MatchString(start) {
			isRange = false
		}
		if !isRange {
			host, port, err := SplitAddr(segment)
			if err != nil {
				return nil, err
			}
			if port == 0 {
				port = defaultPort
			}
			out = append(out, models.Address{Host: host, Port: port})
			continue
		}

		startHost, startPort, err := SplitAddr(start)
		if err != nil {
			return nil, err
		}
		endHost, endPort, err := SplitAddr(end)
		if err != nil {
			return nil, err
		}
		if startPort != 0 && endPort != 0 && startPort != endPort {
			return nil, fmt.Errorf("invalid range ports in %q", segment)
		}
		port := startPort
		if port == 0 {
			port = endPort
		}
		if port == 0 {
			port = defaultPort
		}

		first, err := netip.ParseAddr(startHost)
		if err != nil || !first.Is4() {
			return nil, fmt.Errorf("range start %q is not an IPv4 address", startHost)
		}
		last, err := netip.ParseAddr(endHost)
		if err != nil || !last.Is4() {
			return nil, fmt.Errorf("range end %q is not an IPv4 address", endHost)
		}
		if last.Less(first) {
			return nil, fmt.Errorf("reversed range %q", segment)
		}

		for cur := first; !last.Less(cur); cur = nextAddr(cur) {
			out = append(out, models.Address{Host: cur.String(), Port: port})
		}
	}
	return out, nil
}

func nextAddr(a netip.Addr) netip.Addr {
	b := a.As4()
	v := binary.BigEndian.Uint32(b[:]) + 1
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
