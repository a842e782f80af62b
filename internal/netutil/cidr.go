// Package netutil provides IPv4 range enumeration and TCP port checks for
// the scanner.
package netutil

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrInvalidRange is returned for target strings that do not parse.
var ErrInvalidRange = errors.New("invalid ip range")

// MaxHosts bounds the size of a single expanded range.
const MaxHosts = 1 << 16

// ParseCIDR parses a CIDR notation string and returns all IP addresses in the range.
// Example: "192.168.1.0/24" returns all 254 usable IPs (excludes network and broadcast).
func ParseCIDR(cidr string) ([]string, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRange, err)
	}
	if ip.To4() == nil {
		return nil, fmt.Errorf("%w: only IPv4 networks are supported", ErrInvalidRange)
	}
	if ones, _ := ipnet.Mask.Size(); ones < 16 {
		return nil, fmt.Errorf("%w: %s is larger than /16", ErrInvalidRange, cidr)
	}

	var ips []string
	for ip := ip.Mask(ipnet.Mask).To4(); ipnet.Contains(ip); incIP(ip) {
		ips = append(ips, ip.String())
	}

	// Remove network address and broadcast address for IPv4
	if len(ips) > 2 {
		return ips[1 : len(ips)-1], nil
	}

	return ips, nil
}

// ParseRange parses an IP range and returns all IPs between start and end (inclusive).
// Example: "192.168.1.1", "192.168.1.10" returns 10 IPs.
func ParseRange(startIP, endIP string) ([]string, error) {
	start := net.ParseIP(strings.TrimSpace(startIP)).To4()
	if start == nil {
		return nil, fmt.Errorf("%w: invalid start IP %q", ErrInvalidRange, startIP)
	}
	end := net.ParseIP(strings.TrimSpace(endIP)).To4()
	if end == nil {
		return nil, fmt.Errorf("%w: invalid end IP %q", ErrInvalidRange, endIP)
	}

	startInt := ipToUint32(start)
	endInt := ipToUint32(end)

	if startInt > endInt {
		return nil, fmt.Errorf("%w: start IP must not exceed end IP", ErrInvalidRange)
	}
	if endInt-startInt >= MaxHosts {
		return nil, fmt.Errorf("%w: more than %d hosts", ErrInvalidRange, MaxHosts)
	}

	ips := make([]string, 0, endInt-startInt+1)
	for i := startInt; ; i++ {
		ips = append(ips, uint32ToIP(i).String())
		if i == endInt {
			break
		}
	}

	return ips, nil
}

// ParseOctets expands a dotted pattern where each octet is a number or an
// inclusive dash range: "192.168.1-3.1-50".
func ParseOctets(pattern string) ([]string, error) {
	parts := strings.Split(strings.TrimSpace(pattern), ".")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: %q needs four octets", ErrInvalidRange, pattern)
	}

	var bounds [4][2]int
	total := 1
	for i, p := range parts {
		lo, hi, err := parseOctet(p)
		if err != nil {
			return nil, fmt.Errorf("%w: octet %d of %q: %v", ErrInvalidRange, i+1, pattern, err)
		}
		bounds[i] = [2]int{lo, hi}
		total *= hi - lo + 1
	}
	if total > MaxHosts {
		return nil, fmt.Errorf("%w: more than %d hosts", ErrInvalidRange, MaxHosts)
	}

	ips := make([]string, 0, total)
	for a := bounds[0][0]; a <= bounds[0][1]; a++ {
		for b := bounds[1][0]; b <= bounds[1][1]; b++ {
			for c := bounds[2][0]; c <= bounds[2][1]; c++ {
				for d := bounds[3][0]; d <= bounds[3][1]; d++ {
					ips = append(ips, fmt.Sprintf("%d.%d.%d.%d", a, b, c, d))
				}
			}
		}
	}
	return ips, nil
}

func parseOctet(s string) (lo, hi int, err error) {
	loStr, hiStr, isRange := strings.Cut(s, "-")
	if lo, err = octet(loStr); err != nil {
		return 0, 0, err
	}
	if !isRange {
		return lo, lo, nil
	}
	if hi, err = octet(hiStr); err != nil {
		return 0, 0, err
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("%d-%d is descending", lo, hi)
	}
	return lo, hi, nil
}

func octet(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 || n > 255 {
		return 0, fmt.Errorf("%q is not an octet", s)
	}
	return n, nil
}

// ParseTarget expands any supported target syntax: a CIDR ("10.0.0.0/24"),
// a start-end range ("10.0.0.1-10.0.0.50"), an octet pattern
// ("10.0.1-3.1-50"), a single address, or a comma separated list of these.
func ParseTarget(target string) ([]string, error) {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	for _, part := range strings.Split(target, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ips, err := parseOne(part)
		if err != nil {
			return nil, err
		}
		for _, ip := range ips {
			if !seen[ip] {
				seen[ip] = true
				out = append(out, ip)
			}
		}
		if len(out) > MaxHosts {
			return nil, fmt.Errorf("%w: more than %d hosts", ErrInvalidRange, MaxHosts)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty target", ErrInvalidRange)
	}
	return out, nil
}

func parseOne(s string) ([]string, error) {
	switch {
	case strings.Contains(s, "/"):
		return ParseCIDR(s)
	case strings.Count(s, ".") == 6 && strings.Count(s, "-") == 1:
		start, end, _ := strings.Cut(s, "-")
		return ParseRange(start, end)
	case strings.Contains(s, "-"):
		return ParseOctets(s)
	default:
		if ip := net.ParseIP(s).To4(); ip != nil {
			return []string{ip.String()}, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
}

// IsValidIP checks if the given string is a valid IP address.
func IsValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

// incIP increments an IP address by one.
func incIP(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}

func ipToUint32(ip net.IP) uint32 {
	return binary.BigEndian.Uint32(ip.To4())
}

func uint32ToIP(n uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, n)
	return ip
}
