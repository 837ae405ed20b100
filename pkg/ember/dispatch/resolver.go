// Package dispatch implements the nested domain/path mapping resolver: an
// ordered list of mappings matched against a request's URL, with rebasing
// of the matched prefix onto the URL's parent stacks and skippable
// fallthrough when a handler declines to answer. Handlers are plain
// function references tried in declaration order, with no radix tree or
// reflection-based route table.
package dispatch

import (
	"strings"

	"github.com/embercore/ember/pkg/ember/conn"
	"github.com/embercore/ember/pkg/ember/httpurl"
	"github.com/embercore/ember/pkg/ember/wire"
)

// Mapping is one entry in a Resolver's ordered list.
type Mapping struct {
	// Domain, if non-empty, must match the request host on a suffix
	// boundary (either an exact match or preceded by a '.').
	Domain string

	// Path, if non-empty, must match the request path on a '/'-aligned
	// prefix boundary (either an exact match or followed by '/').
	Path string

	// Skippable marks a mapping whose handler may decline by returning a
	// nil Response, letting the resolver fall through to the next entry.
	Skippable bool

	Handler conn.Handler
}

// Resolver holds an ordered list of mappings and implements conn.Handler
// itself, so resolvers nest: an inner Resolver registered as another
// Resolver's mapping handler sees the already-rebased URL.
type Resolver struct {
	mappings []Mapping
}

// New builds an empty Resolver. Mappings are added with Add in the order
// they should be tried.
func New() *Resolver {
	return &Resolver{}
}

// Add appends a mapping, tried after every mapping already registered.
func (r *Resolver) Add(m Mapping) {
	r.mappings = append(r.mappings, m)
}

// Handle implements conn.Handler: it walks the mapping list in order,
// rebasing the request URL for each candidate and invoking its handler.
// The rebased URL is visible only while the handler runs; req.URL is
// restored to its value on entry before Handle moves on or returns.
// A nil response from a Skippable mapping's handler continues to the next
// mapping; a non-Skippable mapping's nil response is returned as-is (the
// caller, typically the error boundary, treats a nil response as a fault).
func (r *Resolver) Handle(req *wire.Request) (*wire.Response, error) {
	original := req.URL
	for _, m := range r.mappings {
		domainSuffix, pathPrefix, ok := match(original, m.Domain, m.Path)
		if !ok {
			continue
		}

		req.URL = original.Rebase(domainSuffix, pathPrefix)
		resp, err := m.Handler(req)
		req.URL = original

		if resp == nil && err == nil && m.Skippable {
			continue
		}
		return resp, err
	}
	req.URL = original
	return nil, nil
}

// match reports whether the mapping's domain/path constraints match the
// URL, and returns the exact suffix/prefix text to rebase (which may
// differ in case from the mapping's own Domain field, since matching is
// case-insensitive on the host).
func match(u *httpurl.URL, domain, path string) (domainSuffix, pathPrefix string, ok bool) {
	host := u.Host()
	if domain != "" {
		if !hostSuffixMatch(host, domain) {
			return "", "", false
		}
		domainSuffix = host[len(host)-len(domain):]
	}

	p := u.Path()
	// A mapping path of "/" matches every request path; there is no prefix
	// to peel off, since the remainder must itself keep its leading slash.
	if path != "" && path != "/" {
		if p != path && !strings.HasPrefix(p, path+"/") {
			return "", "", false
		}
		pathPrefix = path
	}
	return domainSuffix, pathPrefix, true
}

// hostSuffixMatch reports whether host ends with domain on a label
// boundary: either host == domain, or host ends with "."+domain.
func hostSuffixMatch(host, domain string) bool {
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}
