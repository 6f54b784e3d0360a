package main

import (
	"path/filepath"
	"testing"
)

func TestOutputPattern(t *testing.T) {
	tests := []struct {
		input, output   string
		wantDir, wantPt string
		wantErr         bool
	}{
		{"/videos/talk.mp4", "", "/videos", "talk_part%03d.mp4", false},
		{"clip.mkv", "", ".", "clip_part%03d.mkv", false},
		{"/videos/talk.mp4", "out/scene_%02d", "out", "scene_%02d.mp4", false},
		{"/videos/talk.mp4", "p%d.mov", ".", "p%d.mov", false},
		{"/videos/talk.mp4", "out/noverb.mp4", "", "", true},
	}

	for _, tt := range tests {
		dir, pattern, err := outputPattern(tt.input, tt.output)
		if tt.wantErr {
			if err == nil {
				t.Errorf("outputPattern(%q, %q) expected error", tt.input, tt.output)
			}
			continue
		}
		if err != nil {
			t.Errorf("outputPattern(%q, %q) error: %v", tt.input, tt.output, err)
			continue
		}
		if dir != filepath.FromSlash(tt.wantDir) || pattern != tt.wantPt {
			t.Errorf("outputPattern(%q, %q) = %q, %q; want %q, %q", tt.input, tt.output, dir, pattern, tt.wantDir, tt.wantPt)
		}
	}
}
