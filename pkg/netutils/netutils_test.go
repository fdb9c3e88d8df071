package netutils

import (
	"math"
	"testing"

	"gotest.tools/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "192.168.122.1/32", Normalize("192.168.122.1"))
	assert.Equal(t, "192.168.122.0/24", Normalize("192.168.122.0/24"))
}

func TestIsNetwork(t *testing.T) {
	assert.Assert(t, IsNetwork("192.168.122.0/24"))
	assert.Assert(t, !IsNetwork("192.168.122.1/32"))
	assert.Assert(t, !IsNetwork("192.168.122.1"))
}

func TestToNetwork(t *testing.T) {
	p, err := ToNetwork("192.168.122.0/24")
	assert.NilError(t, err)
	assert.Equal(t, "192.168.122.0/24", p.String())

	// Host bits below the prefix denote the single host.
	p, err = ToNetwork("192.168.122.10/24")
	assert.NilError(t, err)
	assert.Equal(t, "192.168.122.10/32", p.String())

	p, err = ToNetwork("192.168.122.10")
	assert.NilError(t, err)
	assert.Equal(t, "192.168.122.10/32", p.String())

	_, err = ToNetwork("not-an-address")
	assert.ErrorContains(t, err, "invalid address")
}

func TestSubnetToPrefix(t *testing.T) {
	for _, tc := range []struct {
		addr, netmask, want string
	}{
		{"192.168.122.0", "255.255.255.0", "192.168.122.0/24"},
		{"192.168.122.1", "255.255.255.255", "192.168.122.1/32"},
		// Host bits set below the mask.
		{"192.168.122.5", "255.255.255.0", "192.168.122.5/32"},
		// Non-contiguous mask.
		{"10.0.0.0", "255.0.255.0", "10.0.0.0/32"},
		{"10.0.0.0", "255.0.0.0", "10.0.0.0/8"},
	} {
		got, err := SubnetToPrefix(tc.addr, tc.netmask)
		assert.NilError(t, err)
		assert.Equal(t, tc.want, got, "subnet %s %s", tc.addr, tc.netmask)
	}
	_, err := SubnetToPrefix("bad", "255.255.255.0")
	assert.ErrorContains(t, err, "not an IPv4 address")
	_, err = SubnetToPrefix("10.0.0.0", "bad")
	assert.ErrorContains(t, err, "not an IPv4 netmask")
}

func TestRangeToPrefixes(t *testing.T) {
	got, err := RangeToPrefixes("192.168.3.3", "192.168.3.5", 32)
	assert.NilError(t, err)
	assert.DeepEqual(t, got,
		[]string{"192.168.3.3/32", "192.168.3.4/32", "192.168.3.5/32"})

	got, err = RangeToPrefixes("192.168.3.3", "192.168.3.3", 24)
	assert.NilError(t, err)
	assert.DeepEqual(t, got, []string{"192.168.3.3/24"})

	_, err = RangeToPrefixes("192.168.3.3", "198.168.3.5", 32)
	assert.ErrorContains(t, err, "different networks")
	_, err = RangeToPrefixes("192.168.3.5", "192.168.3.3", 32)
	assert.ErrorContains(t, err, "start after end")
	_, err = RangeToPrefixes("10.0.0.0", "10.0.9.255", 32)
	assert.ErrorContains(t, err, "range too large")
}

func TestWithMaskAndMasked(t *testing.T) {
	got, err := WithMask("192.168.122.10", "255.255.255.0")
	assert.NilError(t, err)
	assert.Equal(t, "192.168.122.10/24", got)

	got, err = WithMask("192.168.122.10", "")
	assert.NilError(t, err)
	assert.Equal(t, "192.168.122.10/32", got)

	got, err = Masked("192.168.122.10/24")
	assert.NilError(t, err)
	assert.Equal(t, "192.168.122.0/24", got)

	got, err = NetworkAddress("192.168.122.10", "255.255.255.0")
	assert.NilError(t, err)
	assert.Equal(t, "192.168.122.0/24", got)
}

func TestSupernetOf(t *testing.T) {
	got, err := SupernetOf("192.168.122.50/32", 24)
	assert.NilError(t, err)
	assert.Equal(t, "192.168.122.0/24", got)

	_, err = SupernetOf("10.0.0.0/8", 24)
	assert.ErrorContains(t, err, "broader than /24")
}

func TestAddrsContaining(t *testing.T) {
	addrs := []string{
		"192.168.122.0/24", "10.0.0.0/8", "192.168.122.3/32",
	}
	assert.DeepEqual(t, AddrsContaining("192.168.122.3", addrs),
		[]string{"192.168.122.0/24", "192.168.122.3/32"})
	assert.Assert(t, Contains("10.1.2.3", addrs))
	assert.Assert(t, !Contains("172.16.0.1", addrs))
}

func TestSmallestCommonSupernet(t *testing.T) {
	super, ok := SmallestCommonSupernet(
		[]string{"192.168.1.0/24", "192.168.2.0/24"}, 32)
	assert.Assert(t, ok)
	assert.Equal(t, "192.168.0.0/22", super.String())

	// First bit already differs.
	_, ok = SmallestCommonSupernet(
		[]string{"10.0.0.0/8", "172.16.0.0/12"}, 32)
	assert.Assert(t, !ok)
}

func TestDistance(t *testing.T) {
	for _, tc := range []struct {
		net1, net2 string
		want       float64
	}{
		// String-identical nets are at distance 0.
		{"192.168.1.0/24", "192.168.1.0/24", 0},
		// Host inside a network.
		{"192.168.1.5/32", "192.168.1.0/24", 1},
		// Nested networks differ by their prefix lengths.
		{"192.168.1.0/24", "192.168.0.0/16", 8},
		// Disjoint networks take the detour over the common supernet.
		{"192.168.1.0/24", "192.168.2.0/24", 4},
	} {
		d, err := Distance(tc.net1, tc.net2)
		assert.NilError(t, err)
		assert.Equal(t, tc.want, d, "distance %s %s", tc.net1, tc.net2)

		// Distance is symmetric.
		d, err = Distance(tc.net2, tc.net1)
		assert.NilError(t, err)
		assert.Equal(t, tc.want, d, "distance %s %s", tc.net2, tc.net1)
	}

	d, err := Distance("10.0.0.0/8", "172.16.0.0/12")
	assert.NilError(t, err)
	assert.Assert(t, math.IsInf(d, 1))

	_, err = Distance("bad", "10.0.0.0/8")
	assert.ErrorContains(t, err, "invalid address")
}

func TestNearestNetwork(t *testing.T) {
	got, err := NearestNetwork("192.168.122.2/32",
		[]string{"192.168.122.0/24", "192.168.5.0/24"})
	assert.NilError(t, err)
	assert.Equal(t, "192.168.122.0/24", got)

	// Ties keep the first candidate.
	got, err = NearestNetwork("192.168.3.0/24",
		[]string{"192.168.1.0/24", "192.168.0.0/24"})
	assert.NilError(t, err)
	assert.Equal(t, "192.168.1.0/24", got)

	_, err = NearestNetwork("192.168.122.2/32", nil)
	assert.ErrorContains(t, err, "no candidate networks")
}
