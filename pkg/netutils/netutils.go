// Package netutils implements the IPv4 prefix arithmetic the rest of
// the tool is built on: canonicalizing address strings, containment
// tests, summarizing a set of networks to their smallest common
// supernet and computing a unitless "distance" between two prefixes.
// All functions are pure and deterministic.
package netutils

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"inet.af/netaddr"
)

// MaxPrefix is the largest prefix length used when summarizing host
// addresses to an enclosing network.
const MaxPrefix = 24

// Base weight of one step of network distance.
const distBase = 1

// Upper bound on the number of hosts an address range may expand to.
// Ranges are enumerated host by host, so anything larger is rejected
// instead of silently producing huge tables.
const maxRangeLen = 256

// InvalidAddressError reports an address, netmask or range that cannot
// be brought into canonical prefix form.
type InvalidAddressError struct {
	Addr   string
	Reason string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address %q: %s", e.Addr, e.Reason)
}

func invalidAddr(addr, reason string) error {
	return &InvalidAddressError{Addr: addr, Reason: reason}
}

// Normalize appends /32 to a bare IPv4 address. Already prefixed
// input is returned unchanged.
func Normalize(ip string) string {
	if !strings.Contains(ip, "/") {
		return ip + "/32"
	}
	return ip
}

// IsNetwork reports whether addr represents more than one address,
// i.e. carries a prefix length other than 32.
func IsNetwork(addr string) bool {
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		return addr[i+1:] != "32"
	}
	return false
}

// ToNetwork parses addr as an IPv4 network. A bare address gets /32.
// An address with host bits set under its prefix denotes the single
// host address, not the network, so it collapses to /32 as well.
func ToNetwork(addr string) (netaddr.IPPrefix, error) {
	p, err := netaddr.ParseIPPrefix(Normalize(addr))
	if err != nil {
		return netaddr.IPPrefix{}, invalidAddr(addr, "not an IPv4 network")
	}
	if !p.IP().Is4() {
		return netaddr.IPPrefix{}, invalidAddr(addr, "not an IPv4 network")
	}
	if p.Masked() != p {
		return netaddr.IPPrefixFrom(p.IP(), 32), nil
	}
	return p, nil
}

// maskBits converts a dotted netmask to a prefix length. The second
// result is false for non-contiguous masks.
func maskBits(mask netaddr.IP) (uint8, bool) {
	b := mask.As4()
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	bits := uint8(0)
	for v&0x80000000 != 0 {
		bits++
		v <<= 1
	}
	return bits, v == 0
}

// SubnetToPrefix converts a (dotted address, dotted netmask) pair as
// found in firewall address objects to canonical CIDR form. An
// all-ones netmask gives a host /32. When host bits are set under the
// mask, or the mask is not contiguous, the pair denotes the host
// address and the netmask is ignored.
func SubnetToPrefix(addr, netmask string) (string, error) {
	ip, err := netaddr.ParseIP(addr)
	if err != nil || !ip.Is4() {
		return "", invalidAddr(addr, "not an IPv4 address")
	}
	hostPrefix := netaddr.IPPrefixFrom(ip, 32).String()
	if netmask == "255.255.255.255" {
		return hostPrefix, nil
	}
	mask, err := netaddr.ParseIP(netmask)
	if err != nil || !mask.Is4() {
		return "", invalidAddr(netmask, "not an IPv4 netmask")
	}
	bits, ok := maskBits(mask)
	if !ok {
		return hostPrefix, nil
	}
	p, err := ip.Prefix(bits)
	if err != nil {
		return "", invalidAddr(addr+"/"+netmask, "bad prefix length")
	}
	if p.IP() != ip {
		// Host bits set below the mask.
		return hostPrefix, nil
	}
	return p.String(), nil
}

// RangeToPrefixes enumerates every host address in [startIP, endIP] as
// an individual /bits entry. Both ends must share their first octet;
// this bounds the expansion of malformed ranges. Larger ranges within
// one octet are still capped at maxRangeLen hosts.
func RangeToPrefixes(startIP, endIP string, bits uint8) ([]string, error) {
	start, err := netaddr.ParseIP(startIP)
	if err != nil || !start.Is4() {
		return nil, invalidAddr(startIP, "not an IPv4 address")
	}
	end, err := netaddr.ParseIP(endIP)
	if err != nil || !end.Is4() {
		return nil, invalidAddr(endIP, "not an IPv4 address")
	}
	if strings.SplitN(startIP, ".", 2)[0] != strings.SplitN(endIP, ".", 2)[0] {
		return nil, invalidAddr(startIP+"-"+endIP,
			"range endpoints in different networks")
	}
	if start.Compare(end) > 0 {
		return nil, invalidAddr(startIP+"-"+endIP, "start after end")
	}
	s4, e4 := start.As4(), end.As4()
	sv := uint32(s4[0])<<24 | uint32(s4[1])<<16 | uint32(s4[2])<<8 | uint32(s4[3])
	ev := uint32(e4[0])<<24 | uint32(e4[1])<<16 | uint32(e4[2])<<8 | uint32(e4[3])
	if ev-sv+1 > maxRangeLen {
		return nil, invalidAddr(startIP+"-"+endIP, "range too large")
	}
	var result []string
	for ip := start; ; ip = ip.Next() {
		result = append(result, fmt.Sprintf("%s/%d", ip, bits))
		if ip == end {
			break
		}
	}
	return result, nil
}

// WithMask joins a dotted address and dotted netmask to "addr/bits"
// interface form, keeping the host part unmasked. An empty netmask
// gives /32.
func WithMask(addr, netmask string) (string, error) {
	ip, err := netaddr.ParseIP(addr)
	if err != nil || !ip.Is4() {
		return "", invalidAddr(addr, "not an IPv4 address")
	}
	bits := uint8(32)
	if netmask != "" {
		mask, err := netaddr.ParseIP(netmask)
		if err != nil || !mask.Is4() {
			return "", invalidAddr(netmask, "not an IPv4 netmask")
		}
		var ok bool
		bits, ok = maskBits(mask)
		if !ok {
			return "", invalidAddr(netmask, "netmask not contiguous")
		}
	}
	return netaddr.IPPrefixFrom(ip, bits).String(), nil
}

// Masked returns the network address of a prefix in interface form,
// e.g. 192.168.122.10/24 -> 192.168.122.0/24.
func Masked(addr string) (string, error) {
	p, err := netaddr.ParseIPPrefix(Normalize(addr))
	if err != nil || !p.IP().Is4() {
		return "", invalidAddr(addr, "not an IPv4 network")
	}
	return p.Masked().String(), nil
}

// NetworkAddress returns the masked network of a (dotted address,
// dotted netmask) pair. An empty netmask gives the /32 host.
func NetworkAddress(addr, netmask string) (string, error) {
	ifp, err := WithMask(addr, netmask)
	if err != nil {
		return "", err
	}
	return Masked(ifp)
}

// SupernetOf summarizes addr to the network with the given prefix
// length. It is an error when addr is already broader than bits.
func SupernetOf(addr string, bits uint8) (string, error) {
	p, err := ToNetwork(addr)
	if err != nil {
		return "", err
	}
	if p.Bits() < bits {
		return "", invalidAddr(addr, fmt.Sprintf("broader than /%d", bits))
	}
	super, err := p.IP().Prefix(bits)
	if err != nil {
		return "", invalidAddr(addr, "bad prefix length")
	}
	return super.String(), nil
}

// AddrsContaining returns the subset of addrs whose network contains
// ip, in input order. An entry matches by exact string equality or by
// network containment.
func AddrsContaining(ip string, addrs []string) []string {
	ipa := Normalize(ip)
	host, err := netaddr.ParseIP(strings.SplitN(ipa, "/", 2)[0])
	if err != nil {
		return nil
	}
	var found []string
	for _, addr := range addrs {
		if ipa == addr {
			found = append(found, addr)
			continue
		}
		net, err := ToNetwork(addr)
		if err != nil {
			continue
		}
		if net.Contains(host) {
			found = append(found, addr)
		}
	}
	return found
}

// Contains reports whether any entry of addrs contains ip.
func Contains(ip string, addrs []string) bool {
	return len(AddrsContaining(ip, addrs)) > 0
}

func subnetOf(n1, n2 netaddr.IPPrefix) bool {
	return n2.Bits() <= n1.Bits() && n2.Contains(n1.IP())
}

func commonSupernet(nets []netaddr.IPPrefix, maxBits uint8) (netaddr.IPPrefix, bool) {
	if len(nets) == 0 {
		return netaddr.IPPrefix{}, false
	}
	sorted := make([]netaddr.IPPrefix, len(nets))
	copy(sorted, nets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Bits() < sorted[j].Bits()
	})
	if sorted[0].Bits() < maxBits {
		maxBits = sorted[0].Bits()
	}
	for bits := int(maxBits); bits >= 1; bits-- {
		cand, err := sorted[0].IP().Prefix(uint8(bits))
		if err != nil {
			continue
		}
		all := true
		for _, n := range sorted[1:] {
			if !subnetOf(n, cand) {
				all = false
				break
			}
		}
		if all {
			return cand, true
		}
	}
	return netaddr.IPPrefix{}, false
}

// SmallestCommonSupernet finds the narrowest network no narrower than
// /maxBits containing every given network. The search starts at the
// broadest input's prefix length (capped at maxBits) and widens down
// to /1. Unparseable entries are skipped; the second result is false
// when no common supernet exists.
func SmallestCommonSupernet(nets []string, maxBits uint8) (netaddr.IPPrefix, bool) {
	var parsed []netaddr.IPPrefix
	for _, n := range nets {
		p, err := ToNetwork(n)
		if err != nil {
			continue
		}
		parsed = append(parsed, p)
	}
	return commonSupernet(parsed, maxBits)
}

// Distance computes the symmetric network distance between two
// prefixes. Identical nets are at 0; a host inside a network is at
// base distance; nested networks are apart by their prefix length
// difference; disjoint networks by the detour over their smallest
// common supernet. Networks with no common supernet down to /1 are
// infinitely far apart.
func Distance(net1, net2 string) (float64, error) {
	if net1 == net2 {
		return 0, nil
	}
	n1, err := ToNetwork(net1)
	if err != nil {
		return 0, err
	}
	n2, err := ToNetwork(net2)
	if err != nil {
		return 0, err
	}
	if n1.IsSingleIP() && n2.Contains(n1.IP()) {
		return distBase, nil
	}
	if n2.IsSingleIP() && n1.Contains(n2.IP()) {
		return distBase, nil
	}
	if subnetOf(n1, n2) || subnetOf(n2, n1) {
		return distBase * math.Abs(float64(n1.Bits())-float64(n2.Bits())), nil
	}
	super, ok := commonSupernet([]netaddr.IPPrefix{n1, n2}, 32)
	if !ok {
		return math.Inf(1), nil
	}
	return distBase * float64(int(n1.Bits())+int(n2.Bits())-2*int(super.Bits())), nil
}

// NearestNetwork returns the candidate network minimizing the distance
// to target. Ties are broken by input order.
func NearestNetwork(target string, nets []string) (string, error) {
	if len(nets) == 0 {
		return "", invalidAddr(target, "no candidate networks")
	}
	best := ""
	bestDist := math.Inf(1)
	for _, net := range nets {
		d, err := Distance(target, net)
		if err != nil {
			return "", err
		}
		if best == "" || d < bestDist {
			best, bestDist = net, d
		}
	}
	return best, nil
}
