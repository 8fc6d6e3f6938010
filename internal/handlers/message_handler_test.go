package handlers

import (
	"testing"

	"github.com/classpage/backend/internal/repository"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{raw: "", want: 50},
		{raw: "25", want: 25},
		{raw: "200", want: 200},
		// Oversized limits clamp to the repository maximum so they all
		// resolve to the same query and the same cache key.
		{raw: "201", want: repository.MaxHistoryLimit},
		{raw: "999999", want: repository.MaxHistoryLimit},
		{raw: "0", wantErr: true},
		{raw: "-5", wantErr: true},
		{raw: "abc", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseLimit(tt.raw, 50)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseLimit(%q) expected an error, got %d", tt.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseLimit(%q) unexpected error: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
