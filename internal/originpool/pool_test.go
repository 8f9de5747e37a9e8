package originpool

import "testing"

func TestSelect_SingleOrigin(t *testing.T) {
	p := New(Config{Origins: []string{"http://only:1"}})
	if got := p.Select(); got != "http://only:1" {
		t.Fatalf("expected the only origin to always be selected, got %q", got)
	}
}

func TestSelect_AlwaysReturnsAConfiguredOrigin(t *testing.T) {
	origins := []string{"http://a:1", "http://b:2", "http://c:3"}
	p := New(Config{Origins: origins})

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		got := p.Select()
		found := false
		for _, o := range origins {
			if o == got {
				found = true
			}
		}
		if !found {
			t.Fatalf("Select returned an origin not in the configured list: %q", got)
		}
		seen[got] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected random selection to eventually hit more than one origin, saw %v", seen)
	}
}

func TestSelect_EmptyPool(t *testing.T) {
	p := New(Config{})
	if got := p.Select(); got != "" {
		t.Fatalf("expected empty string when no origins are configured, got %q", got)
	}
}

func TestSessionFor_ReturnsDistinctClientsPerOrigin(t *testing.T) {
	p := New(Config{Origins: []string{"http://a:1", "http://b:2"}})
	a := p.SessionFor("http://a:1")
	b := p.SessionFor("http://b:2")
	if a == nil || b == nil {
		t.Fatalf("expected a client for each configured origin")
	}
	if a == b {
		t.Fatalf("expected distinct clients per origin")
	}
}
