package httpurl

import "testing"

func TestNewFromTargetParsesPathAndQuery(t *testing.T) {
	u, err := NewFromTarget("Example.COM", "/a/b?x=1&y=2")
	if err != nil {
		t.Fatalf("NewFromTarget failed: %v", err)
	}
	if u.Host() != "example.com" {
		t.Fatalf("Host = %q, want lower-cased example.com", u.Host())
	}
	if u.Path() != "/a/b" {
		t.Fatalf("Path = %q, want /a/b", u.Path())
	}
	if u.QueryValue("x") != "1" || u.QueryValue("y") != "2" {
		t.Fatalf("query values wrong: %v", u.Query())
	}
}

func TestWithQueryAndWithoutQueryRoundTrip(t *testing.T) {
	u, _ := NewFromTarget("h", "/p?a=1")
	u2 := u.WithQuery("b", "2", true)
	if u2.QueryValue("a") != "1" || u2.QueryValue("b") != "2" {
		t.Fatalf("WithQuery didn't add b: %v", u2.Query())
	}
	u3 := u2.WithoutQuery("a")
	if u3.QueryValue("a") != "" {
		t.Fatalf("WithoutQuery didn't remove a: %v", u3.Query())
	}
	// original must be untouched (immutability).
	if u.QueryValue("b") != "" {
		t.Fatalf("original URL mutated by WithQuery")
	}
}

func TestTrailingQueryMarkPreservedUntilMutated(t *testing.T) {
	u, err := NewFromTarget("h", "/p?")
	if err != nil {
		t.Fatalf("NewFromTarget failed: %v", err)
	}
	if !u.HasTrailingQueryMark() {
		t.Fatalf("expected trailing '?' to be preserved on an untouched parse")
	}
	if u.String() != "/p?" {
		t.Fatalf("String() = %q, want /p?", u.String())
	}

	u2 := u.WithQuery("a", "1", true).WithoutQuery("a")
	if u2.HasTrailingQueryMark() {
		t.Fatalf("mutation should canonicalize away the trailing '?' quirk")
	}
	if u2.String() != "/p" {
		t.Fatalf("String() after mutation = %q, want /p", u2.String())
	}
}

func TestRebaseAndWithPathParentRoundTrip(t *testing.T) {
	u, _ := NewFromTarget("api.example.com", "/v1/users/42")
	rebased := u.Rebase("example.com", "/v1")

	if rebased.Host() != "api" {
		t.Fatalf("rebased host = %q, want api", rebased.Host())
	}
	if rebased.Path() != "/users/42" {
		t.Fatalf("rebased path = %q, want /users/42", rebased.Path())
	}
	if len(rebased.ParentDomains()) != 1 || rebased.ParentDomains()[0] != "example.com" {
		t.Fatalf("ParentDomains = %v", rebased.ParentDomains())
	}
	if len(rebased.ParentPaths()) != 1 || rebased.ParentPaths()[0] != "/v1" {
		t.Fatalf("ParentPaths = %v", rebased.ParentPaths())
	}

	back := rebased.WithPathParent()
	if back.Host() != "api.example.com" {
		t.Fatalf("WithPathParent host = %q, want api.example.com", back.Host())
	}
	if back.Path() != "/v1/users/42" {
		t.Fatalf("WithPathParent path = %q, want /v1/users/42", back.Path())
	}
}

func TestRebaseExactPathMatchInvertsCleanly(t *testing.T) {
	u, _ := NewFromTarget("h", "/admin")
	rebased := u.Rebase("", "/admin")
	if rebased.Path() != "/" {
		t.Fatalf("exact-match rebase path = %q, want /", rebased.Path())
	}

	back := rebased.WithPathParent()
	if back.Path() != "/admin" {
		t.Fatalf("WithPathParent after exact match = %q, want /admin", back.Path())
	}
}

func TestSuccessiveRebasesWalkBackUpOneAtATime(t *testing.T) {
	u, _ := NewFromTarget("h", "/a/b/c")
	r1 := u.Rebase("", "/a")
	r2 := r1.Rebase("", "/b")

	if r2.Path() != "/c" {
		t.Fatalf("after two rebases path = %q, want /c", r2.Path())
	}

	back1 := r2.WithPathParent()
	if back1.Path() != "/b/c" {
		t.Fatalf("first WithPathParent = %q, want /b/c", back1.Path())
	}
	back2 := back1.WithPathParent()
	if back2.Path() != "/a/b/c" {
		t.Fatalf("second WithPathParent = %q, want /a/b/c", back2.Path())
	}
}
