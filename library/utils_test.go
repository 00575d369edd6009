package library

import (
	"testing"
)

func TestGeneratingStringWithCorrectLength(t *testing.T) {
	t.Parallel()
	length := 3
	if len(CreateRandomString(length)) != length {
		t.Fatalf("Failed to generate string with correct length")
	}
}
