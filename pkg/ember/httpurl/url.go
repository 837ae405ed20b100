// Package httpurl models the request URL: host, path and an ordered,
// duplicate-preserving query multimap, together with the parent-domain and
// parent-path stacks nested dispatch resolvers use to rebase a URL as they
// descend into inner mappings.
//
// Values are immutable. Every mutator (WithPath, WithPathOnly, WithQuery,
// WithoutQuery, WithPathParent, rebase) returns a new *URL; the receiver is
// left untouched, so a URL can be shared across handler boundaries without
// defensive copying.
package httpurl

import "strings"

// QueryPair is one (key, value) entry of a parsed query string.
type QueryPair struct {
	Key   string
	Value string
}

type rebaseFrame struct {
	domain       string
	path         string
	pathWasExact bool // true if the matched path prefix consumed the whole path
}

// URL is the decomposed and percent-decoded form of a request target plus
// the Host header, together with rebase history from nested dispatch.
type URL struct {
	host     string
	path     string
	rawQuery string
	query    []QueryPair
	hadMark  bool // true if the original had a trailing '?' with no pairs
	frames   []rebaseFrame
}

// New builds a URL from an already-lower-cased host, a path beginning with
// "/" (or "*"), and a raw query string (without the leading '?').
func New(host, path, rawQuery string) (*URL, error) {
	pairs, err := ParseQuery(rawQuery)
	if err != nil {
		return nil, err
	}
	return &URL{
		host:     strings.ToLower(host),
		path:     path,
		rawQuery: rawQuery,
		query:    pairs,
		hadMark:  false,
	}, nil
}

// ParseRequestTarget splits a request-line target of the form
// "/path?query" (or "*") into path and raw query. A lone trailing '?'
// with no query pairs is recorded so serialization can reproduce it.
func ParseRequestTarget(target string) (path, rawQuery string, hadMark bool) {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		path = target[:i]
		rawQuery = target[i+1:]
		hadMark = rawQuery == ""
		return
	}
	return target, "", false
}

// NewFromTarget builds a URL from a Host header value and a request-line
// target ("/path?query" or "*").
func NewFromTarget(host, target string) (*URL, error) {
	path, rawQuery, hadMark := ParseRequestTarget(target)
	u, err := New(host, path, rawQuery)
	if err != nil {
		return nil, err
	}
	u.hadMark = hadMark
	return u, nil
}

func (u *URL) Host() string     { return u.host }
func (u *URL) Path() string     { return u.path }
func (u *URL) RawQuery() string { return u.rawQuery }

// Query returns the ordered list of query pairs. The slice is owned by the
// URL and must not be mutated by callers.
func (u *URL) Query() []QueryPair { return u.query }

// QueryValues returns every value associated with key, in first-seen order.
func (u *URL) QueryValues(key string) []string {
	var out []string
	for _, p := range u.query {
		if p.Key == key {
			out = append(out, p.Value)
		}
	}
	return out
}

// QueryValue returns the first value for key, or "" if absent.
func (u *URL) QueryValue(key string) string {
	for _, p := range u.query {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// ParentDomains returns the domain suffixes peeled off by successive
// rebases, oldest first. Joining them with Host() reconstructs the original
// Host header value.
func (u *URL) ParentDomains() []string {
	var out []string
	for _, f := range u.frames {
		if f.domain != "" {
			out = append(out, f.domain)
		}
	}
	return out
}

// ParentPaths returns the path prefixes peeled off by successive rebases,
// oldest first. Joining them with Path() reconstructs the original path.
func (u *URL) ParentPaths() []string {
	var out []string
	for _, f := range u.frames {
		if f.path != "" {
			out = append(out, f.path)
		}
	}
	return out
}

func (u *URL) clone() *URL {
	c := *u
	c.query = append([]QueryPair(nil), u.query...)
	c.frames = append([]rebaseFrame(nil), u.frames...)
	return &c
}

// WithPath replaces the path, preserving the query string.
func (u *URL) WithPath(p string) *URL {
	c := u.clone()
	c.path = p
	return c
}

// WithPathOnly replaces the path and drops the query entirely.
func (u *URL) WithPathOnly(p string) *URL {
	c := u.clone()
	c.path = p
	c.rawQuery = ""
	c.query = nil
	c.hadMark = false
	return c
}

// WithQuery sets key to a single value v, replacing any existing pairs for
// key. If present is false, all pairs for key are removed instead.
func (u *URL) WithQuery(key, v string, present bool) *URL {
	c := u.clone()
	if !present {
		c.query = removeKey(c.query, key)
		c.syncRawQuery()
		return c
	}
	replaced := false
	out := c.query[:0:0]
	for _, p := range c.query {
		if p.Key == key {
			if !replaced {
				out = append(out, QueryPair{Key: key, Value: v})
				replaced = true
			}
			continue
		}
		out = append(out, p)
	}
	if !replaced {
		out = append(out, QueryPair{Key: key, Value: v})
	}
	c.query = out
	c.syncRawQuery()
	return c
}

// WithoutQuery removes every pair with the given key.
func (u *URL) WithoutQuery(key string) *URL {
	c := u.clone()
	c.query = removeKey(c.query, key)
	c.syncRawQuery()
	return c
}

func removeKey(pairs []QueryPair, key string) []QueryPair {
	out := pairs[:0:0]
	for _, p := range pairs {
		if p.Key != key {
			out = append(out, p)
		}
	}
	return out
}

// syncRawQuery re-derives RawQuery from the (possibly mutated) pair list.
// A mutation that empties the query canonicalises the URL: the trailing
// '?' marker is dropped even if the original URL had one.
func (u *URL) syncRawQuery() {
	u.hadMark = false
	if len(u.query) == 0 {
		u.rawQuery = ""
		return
	}
	u.rawQuery = EncodeQuery(u.query)
}

// HasTrailingQueryMark reports whether a bare '?' with no pairs should be
// serialized: an untouched URL that was parsed with a trailing '?' keeps
// it; any query mutation canonicalises it away even if the result is once
// again empty.
func (u *URL) HasTrailingQueryMark() bool {
	return u.hadMark && len(u.query) == 0
}

// String serializes path, query and the trailing-'?' quirk, but not host.
func (u *URL) String() string {
	var b strings.Builder
	b.WriteString(u.path)
	if len(u.query) > 0 {
		b.WriteByte('?')
		b.WriteString(u.rawQuery)
	} else if u.HasTrailingQueryMark() {
		b.WriteByte('?')
	}
	return b.String()
}

// rebase peels domainSuffix off the host and pathPrefix off the path,
// pushing a frame so WithPathParent can undo it later. domainSuffix and
// pathPrefix must each be either "" or an already-validated matched prefix
// (see the dispatch package, which owns the matching rules).
func (u *URL) rebase(domainSuffix, pathPrefix string) *URL {
	c := u.clone()
	if domainSuffix != "" {
		c.host = strings.TrimSuffix(c.host, domainSuffix)
		c.host = strings.TrimSuffix(c.host, ".")
	}
	exact := false
	if pathPrefix != "" {
		rest := strings.TrimPrefix(c.path, pathPrefix)
		if rest == "" {
			rest = "/"
			exact = true
		}
		c.path = rest
	}
	c.frames = append(c.frames, rebaseFrame{domain: domainSuffix, path: pathPrefix, pathWasExact: exact})
	return c
}

// Rebase is the exported form dispatch resolvers call on a match.
func (u *URL) Rebase(domainSuffix, pathPrefix string) *URL {
	return u.rebase(domainSuffix, pathPrefix)
}

// WithPathParent pops the most recent rebase frame, restoring the domain
// suffix and path prefix it had peeled off.
func (u *URL) WithPathParent() *URL {
	if len(u.frames) == 0 {
		return u.clone()
	}
	c := u.clone()
	top := c.frames[len(c.frames)-1]
	c.frames = c.frames[:len(c.frames)-1]
	if top.domain != "" {
		if c.host == "" {
			c.host = top.domain
		} else {
			c.host = c.host + "." + top.domain
		}
	}
	if top.path != "" {
		if top.pathWasExact {
			c.path = top.path
		} else {
			c.path = top.path + c.path
		}
	}
	return c
}
