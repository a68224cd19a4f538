package utils

import (
	"strings"
	"testing"
)

func TestGenerateVerificationToken(t *testing.T) {
	token, err := GenerateVerificationToken()
	if err != nil {
		t.Fatal(err)
	}
	// 48 bytes of entropy, unpadded url-safe base64.
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64", len(token))
	}
	if strings.ContainsAny(token, "+/=") {
		t.Errorf("token %q not url-safe", token)
	}

	other, err := GenerateVerificationToken()
	if err != nil {
		t.Fatal(err)
	}
	if token == other {
		t.Error("two tokens identical")
	}
}
