package storage

import "testing"

func testClient() *S3 {
	return &S3{cfg: S3Config{Region: "us-east-1", ImagesBucket: "test-images"}}
}

func TestObjectKeyRoundTrip(t *testing.T) {
	s := testClient()
	key := BadgeImageKey("6f1c2a2e-9c1d-4a7a-8b0e-111111111111", "logo.png")
	if key != "badges/6f1c2a2e-9c1d-4a7a-8b0e-111111111111/logo.png" {
		t.Errorf("key = %q", key)
	}

	url := s.PublicObjectURL(key)
	got, ok := s.ObjectKey(url)
	if !ok || got != key {
		t.Errorf("ObjectKey(%q) = %q, %v; want %q", url, got, ok, key)
	}
}

func TestObjectKeyBareAndForeign(t *testing.T) {
	s := testClient()

	if got, ok := s.ObjectKey("badges/abc/logo.png"); !ok || got != "badges/abc/logo.png" {
		t.Errorf("bare key = %q, %v", got, ok)
	}
	if _, ok := s.ObjectKey("https://other-bucket.s3.us-east-1.amazonaws.com/x.png"); ok {
		t.Error("foreign bucket URL mapped to a key")
	}
	if _, ok := s.ObjectKey("https://example.com/image.png"); ok {
		t.Error("external URL mapped to a key")
	}
	if _, ok := s.ObjectKey(""); ok {
		t.Error("empty ref mapped to a key")
	}
}

func TestValidateImageFileType(t *testing.T) {
	cases := []struct {
		contentType, filename string
		want                  bool
	}{
		{"image/png", "badge.png", true},
		{"", "badge.jpeg", true},
		{"image/svg+xml", "", true},
		{"application/pdf", "badge.pdf", false},
		{"", "badge.exe", false},
	}
	for _, tc := range cases {
		if got := ValidateImageFileType(tc.contentType, tc.filename); got != tc.want {
			t.Errorf("ValidateImageFileType(%q, %q) = %v, want %v", tc.contentType, tc.filename, got, tc.want)
		}
	}
}

func TestContentTypeForFilename(t *testing.T) {
	if got := ContentTypeForFilename("logo.webp"); got != "image/webp" {
		t.Errorf("webp = %q", got)
	}
	if got := ContentTypeForFilename("file.bin"); got != "application/octet-stream" {
		t.Errorf("unknown = %q", got)
	}
}
