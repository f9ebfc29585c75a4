package mediafile

import (
	"strings"
	"testing"
	"time"
)

func TestContentType(t *testing.T) {
	tests := []struct {
		category, filename, want string
	}{
		{CategoryPhoto, "holiday.JPG", "image/jpeg"},
		{CategoryPhoto, "snow.png", "image/png"},
		{CategoryPhoto, "mystery.bin", "image/jpeg"},
		{CategoryAsset3D, "ornament.glb", "model/gltf-binary"},
		{CategoryNarration, "voice.wav", "audio/wav"},
		{CategoryNarration, "voice.mp3", "audio/mpeg"},
		{CategoryMusic, "bgm", "audio/wav"},
		{"unknown", "x", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := ContentType(tt.category, tt.filename); got != tt.want {
			t.Errorf("ContentType(%q, %q) = %q, want %q", tt.category, tt.filename, got, tt.want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"photo.jpg", "photo.jpg"},
		{"../../etc/passwd", "passwd"},
		{"크리스마스 사진.jpg", "jpg"},
		{"my photo (1).png", "my_photo__1_.png"},
		{"///", "file"},
		{"", "file"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKey(t *testing.T) {
	now := time.UnixMilli(1765809199791)
	got := Key(CategoryPhoto, "orn-1", "kitchen.jpg", now)
	want := "photo/orn-1_1765809199791_kitchen.jpg"
	if got != want {
		t.Errorf("Key = %q, want %q", got, want)
	}
	if strings.Contains(Key(CategoryAsset3D, "orn-1", "../x.glb", now), "..") {
		t.Error("Key did not sanitize traversal sequences")
	}
}

func TestPhotoTakenAtGarbageBytes(t *testing.T) {
	if _, ok := PhotoTakenAt([]byte("not an image")); ok {
		t.Error("expected no capture date from garbage bytes")
	}
}
