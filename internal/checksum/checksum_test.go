package checksum

import "testing"

func TestSum(t *testing.T) {
	got := Sum([]byte("test"))
	want := "sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	if got != want {
		t.Errorf("Sum = %q, want %q", got, want)
	}
}
