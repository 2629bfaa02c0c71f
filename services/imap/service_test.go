package imap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSinceBound(t *testing.T) {
	now := time.Date(2024, time.May, 13, 12, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	tests := []struct {
		name      string
		lastCheck time.Time
		expected  time.Time
	}{
		{
			name:      "zero last check clamps to window",
			lastCheck: time.Time{},
			expected:  now.Add(-window),
		},
		{
			name:      "recent last check is kept",
			lastCheck: now.Add(-5 * time.Minute),
			expected:  now.Add(-5 * time.Minute),
		},
		{
			name:      "stale last check clamps to window",
			lastCheck: now.Add(-3 * time.Hour),
			expected:  now.Add(-window),
		},
		{
			name:      "last check exactly at window edge is kept",
			lastCheck: now.Add(-window),
			expected:  now.Add(-window),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sinceBound(tt.lastCheck, now, window))
		})
	}
}

func TestFilterUIDs(t *testing.T) {
	tests := []struct {
		name      string
		uids      []uint32
		watermark uint32
		expected  []uint32
	}{
		{"empty input", nil, 5, nil},
		{"all below watermark", []uint32{1, 2, 5}, 5, nil},
		{"mixed", []uint32{3, 7, 5, 9}, 5, []uint32{7, 9}},
		{"zero watermark keeps everything sorted", []uint32{4, 2, 8}, 0, []uint32{2, 4, 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, filterUIDs(tt.uids, tt.watermark))
		})
	}
}
