package dispatch

import (
	"testing"

	"github.com/embercore/ember/pkg/ember/httpurl"
	"github.com/embercore/ember/pkg/ember/wire"
)

func newReq(t *testing.T, host, target string) *wire.Request {
	t.Helper()
	u, err := httpurl.NewFromTarget(host, target)
	if err != nil {
		t.Fatalf("NewFromTarget failed: %v", err)
	}
	return &wire.Request{Method: wire.MethodGET, URL: u, Header: &wire.Header{}}
}

func okHandler(body string) func(*wire.Request) (*wire.Response, error) {
	return func(req *wire.Request) (*wire.Response, error) {
		return wire.NewResponse(200).WithBytes([]byte(body)), nil
	}
}

func TestResolverMatchesPathPrefixAndRebases(t *testing.T) {
	var gotPath string
	r := New()
	r.Add(Mapping{Path: "/api", Handler: func(req *wire.Request) (*wire.Response, error) {
		gotPath = req.URL.Path()
		return wire.NewResponse(200).WithBytes([]byte("ok")), nil
	}})

	req := newReq(t, "example.com", "/api/users/42")
	resp, err := r.Handle(req)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if resp == nil || resp.Status != 200 {
		t.Fatalf("resp = %+v", resp)
	}
	if gotPath != "/users/42" {
		t.Fatalf("rebased path = %q, want /users/42", gotPath)
	}
	// URL must be restored on the request object once Handle returns.
	if req.URL.Path() != "/api/users/42" {
		t.Fatalf("URL not restored after Handle: %q", req.URL.Path())
	}
}

func TestResolverDomainSuffixMatch(t *testing.T) {
	var gotHost string
	r := New()
	r.Add(Mapping{Domain: "example.com", Handler: func(req *wire.Request) (*wire.Response, error) {
		gotHost = req.URL.Host()
		return wire.NewResponse(200).WithBytes(nil), nil
	}})

	req := newReq(t, "api.example.com", "/x")
	if _, err := r.Handle(req); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if gotHost != "api" {
		t.Fatalf("rebased host = %q, want api", gotHost)
	}
}

func TestResolverNoMappingMatchesReturnsNil(t *testing.T) {
	r := New()
	r.Add(Mapping{Path: "/admin", Handler: okHandler("admin")})

	req := newReq(t, "h", "/public")
	resp, err := r.Handle(req)
	if resp != nil || err != nil {
		t.Fatalf("expected nil,nil for unmatched request, got resp=%v err=%v", resp, err)
	}
}

func TestResolverSkippableFallthroughRestoresURLAndTriesNext(t *testing.T) {
	var secondSawPath string
	r := New()
	r.Add(Mapping{Path: "/api", Skippable: true, Handler: func(req *wire.Request) (*wire.Response, error) {
		return nil, nil // declines
	}})
	r.Add(Mapping{Path: "/api", Handler: func(req *wire.Request) (*wire.Response, error) {
		secondSawPath = req.URL.Path()
		return wire.NewResponse(200).WithBytes([]byte("fallback")), nil
	}})

	req := newReq(t, "h", "/api/widgets")
	resp, err := r.Handle(req)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if resp == nil || string(resp.Bytes) != "fallback" {
		t.Fatalf("expected fallback mapping to answer, got %+v", resp)
	}
	if secondSawPath != "/widgets" {
		t.Fatalf("second mapping saw path %q, want /widgets (freshly rebased, not double-rebased)", secondSawPath)
	}
}

func TestResolverNonSkippableNilResponsePropagates(t *testing.T) {
	r := New()
	r.Add(Mapping{Path: "/strict", Handler: func(req *wire.Request) (*wire.Response, error) {
		return nil, nil
	}})
	r.Add(Mapping{Path: "/strict", Handler: okHandler("never reached")})

	req := newReq(t, "h", "/strict")
	resp, err := r.Handle(req)
	if resp != nil || err != nil {
		t.Fatalf("non-skippable nil response must propagate as-is, got resp=%v err=%v", resp, err)
	}
}

func TestResolverNestsAsInnerHandler(t *testing.T) {
	inner := New()
	inner.Add(Mapping{Path: "/v1", Handler: okHandler("inner")})

	outer := New()
	outer.Add(Mapping{Path: "/api", Handler: inner.Handle})

	req := newReq(t, "h", "/api/v1")
	resp, err := outer.Handle(req)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if resp == nil || string(resp.Bytes) != "inner" {
		t.Fatalf("nested resolver did not answer: %+v", resp)
	}
}

func TestResolverOrderMattersFirstMatchWins(t *testing.T) {
	r := New()
	r.Add(Mapping{Path: "/", Handler: okHandler("catch-all")})
	r.Add(Mapping{Path: "/specific", Handler: okHandler("specific")})

	req := newReq(t, "h", "/specific/thing")
	resp, err := r.Handle(req)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if string(resp.Bytes) != "catch-all" {
		t.Fatalf("expected the first registered mapping (catch-all) to win, got %q", resp.Bytes)
	}
}
