package sigv4

import (
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

type canonicalHeader struct {
	name  string
	value string
}

// canonicalRequest is the signed view of a request.
type canonicalRequest struct {
	method        string
	path          string
	query         string
	headers       []canonicalHeader
	signedHeaders string
	payloadHash   string
}

// String renders the canonical request as hashed into the string to sign.
func (c *canonicalRequest) String() string {
	var b strings.Builder
	b.WriteString(c.method)
	b.WriteByte('\n')
	b.WriteString(c.path)
	b.WriteByte('\n')
	b.WriteString(c.query)
	b.WriteByte('\n')
	for _, h := range c.headers {
		b.WriteString(h.name)
		b.WriteByte(':')
		b.WriteString(h.value)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(c.signedHeaders)
	b.WriteByte('\n')
	b.WriteString(c.payloadHash)
	return b.String()
}

// collectHeaders lowercases and normalizes the request headers, merging
// values of names that differ only in case. The host header is added from
// the request when missing.
func collectHeaders(req *http.Request) (map[string][]string, error) {
	names := make([]string, 0, len(req.Header))
	for name := range req.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string][]string, len(names)+4)
	for _, name := range names {
		if !validHeaderName(name) {
			return nil, signingError(name, ErrInvalidHeaderName)
		}
		lower := strings.ToLower(name)
		for _, v := range req.Header[name] {
			if !utf8.ValidString(v) {
				return nil, signingError(name, ErrInvalidUTF8InHeaderValue)
			}
			if !validHeaderValue(v) {
				return nil, signingError(name, ErrInvalidHeaderValue)
			}
			out[lower] = append(out[lower], trimAll(v))
		}
	}

	if _, ok := out["host"]; !ok {
		host := req.Host
		if host == "" && req.URL != nil {
			host = req.URL.Host
		}
		if host == "" {
			return nil, canonicalRequestError("request has no host")
		}
		out["host"] = []string{host}
	}
	if _, ok := out["content-length"]; !ok && req.ContentLength > 0 {
		out["content-length"] = []string{strconv.FormatInt(req.ContentLength, 10)}
	}
	return out, nil
}

// signedHeaderNames returns the sorted names to sign.
func signedHeaderNames(headers map[string][]string, settings *Settings) []string {
	excluded := make(map[string]struct{}, len(DefaultExcludedHeaders)+len(settings.ExcludedHeaders)+1)
	for _, h := range DefaultExcludedHeaders {
		excluded[h] = struct{}{}
	}
	for _, h := range settings.ExcludedHeaders {
		excluded[strings.ToLower(h)] = struct{}{}
	}
	if settings.Location == LocationQuery {
		excluded[HeaderUserAgent] = struct{}{}
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		if _, skip := excluded[name]; skip {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type queryParam struct {
	key   string
	value string
}

// parseQuery splits a raw query into decoded pairs, keeping duplicates.
func parseQuery(raw string) []queryParam {
	var params []queryParam
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		if dk, err := url.QueryUnescape(k); err == nil {
			k = dk
		}
		if dv, err := url.QueryUnescape(v); err == nil {
			v = dv
		}
		params = append(params, queryParam{key: k, value: v})
	}
	return params
}

// encodeQuery sorts params by key then value and URI-encodes them.
func encodeQuery(params []queryParam) string {
	sort.SliceStable(params, func(i, j int) bool {
		if params[i].key != params[j].key {
			return params[i].key < params[j].key
		}
		return params[i].value < params[j].value
	})
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(uriEncode(p.key, true))
		b.WriteByte('=')
		b.WriteString(uriEncode(p.value, true))
	}
	return b.String()
}

func canonicalPath(u *url.URL, settings *Settings) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if !settings.DisablePathNormalization {
		path = normalizePath(path)
	}
	if settings.PercentEncoding == DoubleEncode {
		path = uriEncode(path, false)
	}
	return path
}

// normalizePath removes "." and ".." segments. Empty segments are kept,
// object keys may contain "//".
func normalizePath(path string) string {
	trailing := strings.HasSuffix(path, "/")
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}
	res := "/" + strings.Join(out, "/")
	if trailing && !strings.HasSuffix(res, "/") {
		res += "/"
	}
	return res
}

// uriEncode percent-encodes everything outside the RFC 3986 unreserved
// set. "/" is kept unless encodeSlash is set.
func uriEncode(s string, encodeSlash bool) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || (c == '/' && !encodeSlash) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

// trimAll trims leading and trailing spaces and collapses runs of spaces.
// Other whitespace is left alone.
func trimAll(s string) string {
	s = strings.Trim(s, " ")
	if !strings.Contains(s, "  ") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' {
			if prevSpace {
				continue
			}
			prevSpace = true
		} else {
			prevSpace = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isTokenChar(name[i]) {
			return false
		}
	}
	return true
}

func isTokenChar(c byte) bool {
	if isUnreserved(c) {
		return true
	}
	return strings.IndexByte("!#$%&'*+^`|", c) >= 0
}

func validHeaderValue(v string) bool {
	for i := 0; i < len(v); i++ {
		c := v[i]
		if (c < ' ' && c != '\t') || c == 0x7f {
			return false
		}
	}
	return true
}
