package anchors

import (
	"testing"
)

func TestMarkAndQuery(t *testing.T) {
	tr, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer tr.Close()

	if tr.HasHit("post_purchase") {
		t.Error("fresh tracker should have no hits")
	}

	tr.MarkHit("post_purchase")
	tr.MarkHit("onboarding_done")
	tr.MarkHit("post_purchase") // repeat is fine

	if !tr.HasHit("post_purchase") {
		t.Error("hit not recorded")
	}
	if got := len(tr.Hits()); got != 2 {
		t.Errorf("hits = %d, want 2", got)
	}
}

func TestHitsSurviveReopen(t *testing.T) {
	dir := t.TempDir()

	tr, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tr.MarkHit("post_purchase")
	tr.Close()

	tr2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer tr2.Close()

	if !tr2.HasHit("post_purchase") {
		t.Error("hit lost across reopen")
	}
}
