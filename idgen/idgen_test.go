package idgen

import (
	"sort"
	"strings"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	if len(id) != 36 || strings.Count(id, "-") != 4 {
		t.Fatalf("UUIDv7: unexpected format %q", id)
	}
	if id[14] != '7' {
		t.Fatalf("UUIDv7: version nibble = %c, want 7", id[14])
	}
}

func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = gen()
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatal("UUIDv7 ids generated in sequence should sort in order")
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("run_", UUIDv7())()
	if !strings.HasPrefix(id, "run_") {
		t.Fatalf("Prefixed: got %q", id)
	}
	if _, err := Parse(strings.TrimPrefix(id, "run_")); err != nil {
		t.Fatalf("Prefixed: inner id not a UUID: %v", err)
	}
}

func TestParse(t *testing.T) {
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Fatal("Parse: expected error")
	}
	got, err := Parse("0190A6E4-5B7C-7D2E-8F00-000000000001")
	if err != nil {
		t.Fatal(err)
	}
	if got != "0190a6e4-5b7c-7d2e-8f00-000000000001" {
		t.Fatalf("Parse: got %q", got)
	}
}
