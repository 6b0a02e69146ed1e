package crypto

import "testing"

func TestFingerprint_StableAndDistinct(t *testing.T) {
	t.Parallel()

	a, err := Fingerprint("host", "alice", "linux/amd64")
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	b, _ := Fingerprint(" host ", "", "alice", "linux/amd64")
	c, _ := Fingerprint("host", "bob", "linux/amd64")

	if len(a) != 2*fingerprintLen {
		t.Fatalf("len=%d", len(a))
	}
	if a != b {
		t.Fatalf("blank parts and padding must not change the result: %s vs %s", a, b)
	}
	if a == c {
		t.Fatalf("different parts produced the same fingerprint")
	}
}
