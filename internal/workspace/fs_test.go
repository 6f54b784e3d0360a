package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitSaveRemove(t *testing.T) {
	base := t.TempDir()
	ws := New(base)

	if err := ws.InitJob("job-1"); err != nil {
		t.Fatalf("InitJob: %v", err)
	}
	for _, dir := range []string{ws.UploadDir("job-1"), ws.OutputDir("job-1")} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}

	path, n, err := ws.SaveUpload("job-1", "holiday.mp4", strings.NewReader("video-bytes"))
	if err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}
	if n != int64(len("video-bytes")) {
		t.Errorf("size = %d", n)
	}
	if path != filepath.Join(base, "uploads", "job-1", "holiday.mp4") {
		t.Errorf("path = %q", path)
	}

	if err := ws.RemoveJob("job-1"); err != nil {
		t.Fatalf("RemoveJob: %v", err)
	}
	if _, err := os.Stat(ws.UploadDir("job-1")); !os.IsNotExist(err) {
		t.Errorf("upload dir still exists: %v", err)
	}
	if _, err := os.Stat(ws.OutputDir("job-1")); !os.IsNotExist(err) {
		t.Errorf("output dir still exists: %v", err)
	}
}

func TestJobsArePartitioned(t *testing.T) {
	ws := New("/data")
	if ws.OutputDir("a") == ws.OutputDir("b") || ws.UploadDir("a") == ws.UploadDir("b") {
		t.Fatal("jobs must not share directories")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"movie.mp4", "movie.mp4"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\clip.mkv`, "clip.mkv"},
		{"", "upload.bin"},
		{"..", "upload.bin"},
		{"/", "upload.bin"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
