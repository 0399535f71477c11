package executor

import (
	nethttp "net/http"
	"net/url"
	"slices"
	"strings"
)

// HeaderAuthorization is always the last outgoing header.
const HeaderAuthorization = "Authorization"

// AuthScheme prefixes the bearer token in the Authorization header.
const AuthScheme = "OAuth"

var supportedMethods = []string{nethttp.MethodGet, nethttp.MethodPost, nethttp.MethodPut, nethttp.MethodDelete}

// Header is one name/value pair of an ordered header list.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header list with case-insensitive unique names.
// The zero value is an empty list ready to use.
type Headers struct {
	entries []Header
}

// NewHeaders builds a list from alternating name/value arguments. A trailing name
// without a value is ignored.
func NewHeaders(pairs ...string) Headers {
	var h Headers
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return h
}

// Set replaces the value of an existing header (keeping its position) or appends it.
func (h *Headers) Set(name, value string) {
	for i := range h.entries {
		if strings.EqualFold(h.entries[i].Name, name) {
			h.entries[i].Value = value
			return
		}
	}
	h.entries = append(h.entries, Header{Name: name, Value: value})
}

// Get returns the value for name, matched case-insensitively.
func (h Headers) Get(name string) (string, bool) {
	for _, e := range h.entries {
		if strings.EqualFold(e.Name, name) {
			return e.Value, true
		}
	}
	return "", false
}

// Del removes name if present.
func (h *Headers) Del(name string) {
	h.entries = slices.DeleteFunc(h.entries, func(e Header) bool {
		return strings.EqualFold(e.Name, name)
	})
}

// Len returns the number of headers.
func (h Headers) Len() int { return len(h.entries) }

// All returns a copy of the headers in order.
func (h Headers) All() []Header {
	return slices.Clone(h.entries)
}

// Clone returns an independent copy.
func (h Headers) Clone() Headers {
	return Headers{entries: slices.Clone(h.entries)}
}

// HTTPHeader converts the list into a net/http header map. Order is lost; net/http
// writes header fields sorted by name.
func (h Headers) HTTPHeader() nethttp.Header {
	out := make(nethttp.Header, len(h.entries))
	for _, e := range h.entries {
		out.Add(e.Name, e.Value)
	}
	return out
}

// fields renders headers for structured logging; the logger masks Authorization.
func (h Headers) fields() map[string]any {
	out := make(map[string]any, len(h.entries))
	for _, e := range h.entries {
		out[e.Name] = e.Value
	}
	return out
}

// Descriptor describes one logical outbound request.
//
// Execute resets Method, Path, Headers and Body when it returns. URL and BearerToken
// survive the reset.
type Descriptor struct {
	Method      string
	URL         string
	Path        string
	Headers     Headers
	Body        []byte
	BearerToken string
}

// NewDescriptor creates a descriptor for method and rawURL authorised with bearerToken.
func NewDescriptor(method, rawURL, bearerToken string) *Descriptor {
	return &Descriptor{
		Method:      method,
		URL:         rawURL,
		BearerToken: bearerToken,
	}
}

// ResolvedURL joins URL and Path.
func (d *Descriptor) ResolvedURL() string {
	if d.Path == "" {
		return d.URL
	}
	return strings.TrimRight(d.URL, "/") + "/" + strings.TrimLeft(d.Path, "/")
}

// Reset returns the descriptor to its freshly constructed state: GET, no body, no
// endpoint path and no headers.
func (d *Descriptor) Reset() {
	d.Method = nethttp.MethodGet
	d.Path = ""
	d.Body = nil
	d.Headers = Headers{}
}

// BuildHeaders returns the outgoing header list: every descriptor header except
// Authorization, followed by "Authorization: OAuth <token>".
func BuildHeaders(d *Descriptor) Headers {
	out := Headers{entries: make([]Header, 0, d.Headers.Len()+1)}
	for _, e := range d.Headers.entries {
		if strings.EqualFold(e.Name, HeaderAuthorization) {
			continue
		}
		out.entries = append(out.entries, e)
	}
	out.entries = append(out.entries, Header{Name: HeaderAuthorization, Value: AuthScheme + " " + d.BearerToken})
	return out
}

func bodyAllowed(method string) bool {
	return method == nethttp.MethodPost || method == nethttp.MethodPut
}

// validateDescriptor rejects descriptors that cannot be sent before any I/O happens.
func validateDescriptor(d *Descriptor) error {
	if d == nil {
		return NewValidationError("descriptor cannot be nil", "descriptor")
	}
	if !slices.Contains(supportedMethods, d.Method) {
		return NewValidationError("unsupported method "+d.Method, "method")
	}
	if d.URL == "" {
		return NewValidationError("URL cannot be empty", "url")
	}
	u, err := url.Parse(d.ResolvedURL())
	if err != nil || u.Scheme == "" || u.Host == "" {
		return NewValidationError("URL must be absolute", "url")
	}
	if len(d.Body) > 0 && !bodyAllowed(d.Method) {
		return NewValidationError("body is only allowed for POST and PUT", "body")
	}
	return nil
}
