package chunk

import (
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultSizeBudget is the per-cookie size most browsers accept.
	DefaultSizeBudget = 4096
	// DefaultOverhead estimates the bytes a cookie spends on its name and attributes.
	DefaultOverhead = 160
)

// Options are the transport attributes shared by every chunk of one token.
type Options struct {
	Path     string
	Domain   string
	MaxAge   int
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// DefaultOptions returns HttpOnly, SameSite=Lax, Path=/ options with the given lifetime.
func DefaultOptions(maxAge time.Duration, secure bool) Options {
	return Options{
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		Secure:   secure,
		HTTPOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (o Options) cookie(name, value string) *http.Cookie {
	path := o.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   o.Domain,
		MaxAge:   o.MaxAge,
		Secure:   o.Secure,
		HttpOnly: o.HTTPOnly,
		SameSite: o.SameSite,
	}
}

func (o Options) expired(name string) *http.Cookie {
	c := o.cookie(name, "")
	// MaxAge<0 is rendered as Max-Age=0 by net/http.
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return c
}

// ChunkBudget returns the maximum value length of a single chunk for a cookie size
// budget after subtracting the estimated per-cookie overhead. The result is at least 1.
func ChunkBudget(sizeBudget, overhead int) int {
	n := sizeBudget - overhead
	if n < 1 {
		return 1
	}
	return n
}

// Name returns the cookie name of the chunk with the given ordinal.
func Name(base string, ordinal int) string {
	return base + "." + strconv.Itoa(ordinal)
}

// Encode splits token into cookies of at most maxChunkSize value bytes.
//
// A token that fits is emitted as one cookie named base. Otherwise the cookies are named
// base.0 through base.(k-1) in order. An empty token yields no cookies.
func Encode(token, base string, opts Options, maxChunkSize int) []*http.Cookie {
	if token == "" {
		return nil
	}
	if maxChunkSize < 1 {
		maxChunkSize = 1
	}
	if len(token) <= maxChunkSize {
		return []*http.Cookie{opts.cookie(base, token)}
	}

	count := (len(token) + maxChunkSize - 1) / maxChunkSize
	out := make([]*http.Cookie, 0, count)
	for i := 0; i < count; i++ {
		start := i * maxChunkSize
		end := start + maxChunkSize
		if end > len(token) {
			end = len(token)
		}
		out = append(out, opts.cookie(Name(base, i), token[start:end]))
	}
	return out
}

// Rewrite encodes token and appends expiry cookies for every name in prev that the new
// chunk set no longer uses, so a shrinking token never leaves stale chunks behind.
func Rewrite(prev Manifest, token, base string, opts Options, maxChunkSize int) []*http.Cookie {
	next := Encode(token, base, opts, maxChunkSize)

	used := make(map[string]struct{}, len(next))
	for _, c := range next {
		used[c.Name] = struct{}{}
	}
	for _, name := range prev.Names {
		if _, ok := used[name]; ok {
			continue
		}
		next = append(next, opts.expired(name))
	}
	return next
}

// Expire returns expiry cookies for every chunk name in m.
func Expire(m Manifest, opts Options) []*http.Cookie {
	if len(m.Names) == 0 {
		return nil
	}
	out := make([]*http.Cookie, 0, len(m.Names))
	for _, name := range m.Names {
		out = append(out, opts.expired(name))
	}
	return out
}

// Count reports how many chunks Encode would produce for a token of length n.
func Count(n, maxChunkSize int) int {
	if n == 0 {
		return 0
	}
	if maxChunkSize < 1 {
		maxChunkSize = 1
	}
	if n <= maxChunkSize {
		return 1
	}
	return (n + maxChunkSize - 1) / maxChunkSize
}
