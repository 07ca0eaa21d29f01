package privacy

import "testing"

func TestDetermineLevelExplicitWins(t *testing.T) {
	if got := DetermineLevel("hello", "public", []string{"secret"}, "internal"); got != Public {
		t.Fatalf("got %q, want public", got)
	}
}

func TestDetermineLevelPrivateTagForcesSecret(t *testing.T) {
	got := DetermineLevel("visible <private>hidden</private> text", "", nil, "internal")
	if got != Secret {
		t.Fatalf("got %q, want secret", got)
	}
}

func TestDetermineLevelTagBased(t *testing.T) {
	if got := DetermineLevel("x", "", []string{"private"}, "internal"); got != Private {
		t.Fatalf("got %q, want private", got)
	}
}

func TestDetermineLevelDefault(t *testing.T) {
	if got := DetermineLevel("x", "", nil, "internal"); got != Internal {
		t.Fatalf("got %q, want internal", got)
	}
}

func TestStripPrivateTags(t *testing.T) {
	out := StripPrivateTags("before <private>secret stuff</private> after")
	want := "before  after"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestRedactPII(t *testing.T) {
	in := "contact me at a@b.com or 080-1234-5678"
	out := RedactPII(in)
	if out == in {
		t.Fatal("expected redaction to change content")
	}
	if !contains(out, "[EMAIL]") {
		t.Fatalf("expected email redaction, got %q", out)
	}
}

func TestAllowedSecretNeverUnlessAdmin(t *testing.T) {
	if Allowed(Secret, Secret, false) {
		t.Fatal("secret must never be visible without admin flag")
	}
	if !Allowed(Secret, Secret, true) {
		t.Fatal("admin flag must surface secret entries")
	}
}

func TestAllowedRankOrdering(t *testing.T) {
	if !Allowed(Internal, Private, false) {
		t.Fatal("internal should be visible under a private max level")
	}
	if Allowed(Private, Public, false) {
		t.Fatal("private should not be visible under a public max level")
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
