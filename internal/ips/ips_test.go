package ips

import (
	"testing"

	"github.com/luxops/luxfleet/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitAddr(t *testing.T) {
	host, port, err := SplitAddr("127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, 0, port)

	host, port, err = SplitAddr("127.0.0.1:8080")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, 8080, port)

	host, port, err = SplitAddr("miner-12.rack3.example.com:4028")
	require.NoError(t, err)
	assert.Equal(t, "miner-12.rack3.example.com", host)
	assert.Equal(t, 4028, port)

	_, _, err = SplitAddr("127.0.0.1:99999")
	assert.Error(t, err)
	_, _, err = SplitAddr("")
	assert.Error(t, err)
}

func TestIterRangesSingle(t *testing.T) {
	got, err := IterRanges("127.0.0.1", 0)
	require.NoError(t, err)
	assert.Equal(t, []models.Address{{Host: "127.0.0.1", Port: 0}}, got)

	got, err = IterRanges("127.0.0.1:9999", 4028)
	require.NoError(t, err)
	assert.Equal(t, []models.Address{{Host: "127.0.0.1", Port: 9999}}, got)
}

func TestIterRangesExpansion(t *testing.T) {
	got, err := IterRanges("127.0.0.1-127.0.0.3", 0)
	require.NoError(t, err)
	assert.Equal(t, []models.Address{
		{Host: "127.0.0.1", Port: 0},
		{Host: "127.0.0.2", Port: 0},
		{Host: "127.0.0.3", Port: 0},
	}, got)
}

func TestIterRangesPortRules(t *testing.T) {
	// port on the start side
	got, err := IterRanges("10.0.0.1:4028-10.0.0.2", 0)
	require.NoError(t, err)
	assert.Equal(t, []models.Address{
		{Host: "10.0.0.1", Port: 4028},
		{Host: "10.0.0.2", Port: 4028},
	}, got)

	// port on the end side
	got, err = IterRanges("10.0.0.1-10.0.0.2:4028", 0)
	require.NoError(t, err)
	assert.Equal(t, 4028, got[0].Port)

	// both sides must match
	_, err = IterRanges("10.0.0.1:4028-10.0.0.2:4028", 0)
	assert.NoError(t, err)
	_, err = IterRanges("10.0.0.1:4028-10.0.0.2:9999", 0)
	assert.Error(t, err)
}

func TestIterRangesSegments(t *testing.T) {
	got, err := IterRanges("127.0.0.1 , 192.168.0.1-192.168.0.3", 4028)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "127.0.0.1", got[0].Host)
	assert.Equal(t, "192.168.0.3", got[3].Host)
	for _, a := range got {
		assert.Equal(t, 4028, a.Port)
	}
}

func TestIterRangesCrossesOctets(t *testing.T) {
	got, err := IterRanges("10.0.0.254-10.0.1.1", 0)
	require.NoError(t, err)
	hosts := make([]string, len(got))
	for i, a := range got {
		hosts[i] = a.Host
	}
	assert.Equal(t, []string{"10.0.0.254", "10.0.0.255", "10.0.1.0", "10.0.1.1"}, hosts)
}

func TestIterRangesHyphenatedHostnameIsNotARange(t *testing.T) {
	got, err := IterRanges("miner-12.rack3.example.com:4028", 0)
	require.NoError(t, err)
	assert.Equal(t, []models.Address{{Host: "miner-12.rack3.example.com", Port: 4028}}, got)
}

func TestIterRangesReversedRangeRejected(t *testing.T) {
	_, err := IterRanges("10.0.0.5-10.0.0.1", 0)
	assert.Error(t, err)
}
