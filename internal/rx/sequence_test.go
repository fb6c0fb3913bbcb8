package rx

import "testing"

func TestSequenceMonitorObserve(t *testing.T) {
	tests := []struct {
		name     string
		counters []uint8
		want     []int
	}{
		{
			name:     "contiguous counters report no loss",
			counters: []uint8{0, 1, 2, 3, 4},
			want:     []int{0, 0, 0, 0, 0},
		},
		{
			name:     "gap of two",
			counters: []uint8{0, 1, 2, 5},
			want:     []int{0, 0, 0, 2},
		},
		{
			name:     "loss across the wrap",
			counters: []uint8{14, 15, 1},
			want:     []int{0, 0, 1},
		},
		{
			name:     "clean wrap",
			counters: []uint8{14, 15, 0, 1},
			want:     []int{0, 0, 0, 0},
		},
		{
			name:     "maximum observable gap",
			counters: []uint8{0, 0},
			want:     []int{0, 15},
		},
		{
			name:     "first observation sets the baseline",
			counters: []uint8{9, 10},
			want:     []int{0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewSequenceMonitor()
			for i, c := range tt.counters {
				if got := m.Observe(1, c); got != tt.want[i] {
					t.Errorf("Observe(%d) = %d, want %d", c, got, tt.want[i])
				}
			}
		})
	}
}

func TestSequenceMonitorIndependentStreams(t *testing.T) {
	m := NewSequenceMonitor()

	m.Observe(1, 0)
	m.Observe(2, 7)

	if got := m.Observe(1, 1); got != 0 {
		t.Errorf("stream 1 Observe(1) = %d, want 0", got)
	}
	if got := m.Observe(2, 10); got != 2 {
		t.Errorf("stream 2 Observe(10) = %d, want 2", got)
	}
}

func TestSequenceMonitorReset(t *testing.T) {
	m := NewSequenceMonitor()
	m.Observe(1, 3)
	m.Reset(1)

	if got := m.Observe(1, 9); got != 0 {
		t.Errorf("Observe after Reset = %d, want 0", got)
	}
}
