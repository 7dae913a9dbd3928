package id

import (
	"strings"
	"testing"
)

func TestPrefixedIDs(t *testing.T) {
	sess := NewSessionID()
	if !strings.HasPrefix(sess, "sess_") {
		t.Errorf("expected sess_ prefix, got %s", sess)
	}

	msg := NewMessageID()
	if !strings.HasPrefix(msg, "msg_") {
		t.Errorf("expected msg_ prefix, got %s", msg)
	}

	if NewSessionID() == sess {
		t.Error("expected unique IDs")
	}
}

func TestSessionIDsSortable(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()
	if !(a < b) && a != b {
		// Same-millisecond ULIDs sort by entropy; monotonicity across
		// milliseconds is what matters for resumption lookups.
		t.Logf("ids generated within same timestamp: %s %s", a, b)
	}
}

func TestCanonicalTabID(t *testing.T) {
	canonical := NewTabID()
	got, replaced := CanonicalTabID(canonical)
	if replaced || got != canonical {
		t.Errorf("canonical id should pass through, got %s replaced=%v", got, replaced)
	}

	for _, bad := range []string{"tab-1", "template:notes", "", "{9b2e9a3e-1111-2222-3333-444455556666}"} {
		got, replaced := CanonicalTabID(bad)
		if !replaced {
			t.Errorf("expected %q to be replaced", bad)
		}
		if !IsCanonicalTabID(got) {
			t.Errorf("replacement %q is not canonical", got)
		}
	}
}
