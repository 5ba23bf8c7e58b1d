package session

import "testing"

func TestVideoID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ"},
		{"https://m.youtube.com/watch?v=abc123", "abc123"},
		{"https://www.youtube.com/shorts/Xy12Ab", "Xy12Ab"},
		{"https://www.youtube.com/embed/EmB3d?autoplay=1", "EmB3d"},
		{"https://player.vimeo.com/embed/76979871/extra", "76979871"},
		{"https://youtu.be/short1", "short1"},
	}
	for _, tt := range tests {
		if got := VideoID(tt.url); got != tt.want {
			t.Errorf("VideoID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestVideoIDSynthetic(t *testing.T) {
	for _, raw := range []string{"", "not a url", "https://example.com/video.mp4", "https://www.youtube.com/watch", "blob:https://x/y"} {
		id := VideoID(raw)
		if !IsSynthetic(id) {
			t.Errorf("VideoID(%q) = %q, want synthetic", raw, id)
		}
	}
	if VideoID("") == VideoID("") {
		t.Error("synthetic ids should be unique")
	}
}
