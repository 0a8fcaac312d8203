package model

import "testing"

func TestListOptions_Clamp(t *testing.T) {
	tests := []struct {
		name       string
		input      ListOptions
		wantLimit  int
		wantOffset int
	}{
		{"defaults", ListOptions{Limit: 0, Offset: 0}, 50, 0},
		{"negative limit", ListOptions{Limit: -5, Offset: 0}, 50, 0},
		{"over max", ListOptions{Limit: 2000, Offset: 0}, 500, 0},
		{"negative offset", ListOptions{Limit: 10, Offset: -3}, 10, 0},
		{"valid", ListOptions{Limit: 100, Offset: 10}, 100, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.input.Clamp()
			if tt.input.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", tt.input.Limit, tt.wantLimit)
			}
			if tt.input.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", tt.input.Offset, tt.wantOffset)
			}
		})
	}
}

func TestEventKind_Valid(t *testing.T) {
	for _, k := range []EventKind{EventTransition, EventEmit, EventLog} {
		if !k.Valid() {
			t.Errorf("%q.Valid() = false", k)
		}
	}
	if EventKind("tick").Valid() {
		t.Error(`"tick".Valid() = true`)
	}
}
