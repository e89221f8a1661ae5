// Package digest implements the client side of HTTP digest authentication
// (RFC 2617, MD5, qop=auth) as spoken by embedded camera and robot bridges.
package digest

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ErrNoChallenge is returned when a 401 response carries no usable
// WWW-Authenticate header.
var ErrNoChallenge = errors.New("no digest challenge in response")

// Challenge is the parsed WWW-Authenticate header
type Challenge struct {
	Realm     string
	Nonce     string
	Opaque    string
	QOP       string
	Algorithm string
}

// ParseChallenge parses a `Digest realm="..", nonce=".."` header value
func ParseChallenge(header string) (Challenge, error) {
	var c Challenge
	h := strings.TrimSpace(header)
	if !strings.HasPrefix(strings.ToLower(h), "digest ") {
		return c, fmt.Errorf("%w: %q", ErrNoChallenge, header)
	}
	for _, part := range splitParams(h[len("digest "):]) {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		v = strings.Trim(strings.TrimSpace(v), `"`)
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "realm":
			c.Realm = v
		case "nonce":
			c.Nonce = v
		case "opaque":
			c.Opaque = v
		case "qop":
			c.QOP = v
		case "algorithm":
			c.Algorithm = v
		}
	}
	if c.Realm == "" || c.Nonce == "" {
		return c, fmt.Errorf("%w: %q", ErrNoChallenge, header)
	}
	return c, nil
}

// splitParams splits on commas outside quotes; qop="auth,auth-int" is common
func splitParams(s string) []string {
	var parts []string
	var cur strings.Builder
	quoted := false
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			cur.WriteRune(r)
		case r == ',' && !quoted:
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, strings.TrimSpace(cur.String()))
	}
	return parts
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Authorization builds the Authorization header value for one request
func (c Challenge) Authorization(user, pass, method, uri, cnonce string) string {
	ha1 := md5hex(user + ":" + c.Realm + ":" + pass)
	ha2 := md5hex(method + ":" + uri)

	if c.QOP == "" {
		resp := md5hex(ha1 + ":" + c.Nonce + ":" + ha2)
		return fmt.Sprintf(`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"%s`,
			user, c.Realm, c.Nonce, uri, resp, c.opaqueParam())
	}

	const nc = "00000001"
	resp := md5hex(ha1 + ":" + c.Nonce + ":" + nc + ":" + cnonce + ":auth:" + ha2)
	return fmt.Sprintf(`Digest username="%s", realm="%s", nonce="%s", uri="%s", cnonce="%s", nc=%s, qop=auth, response="%s"%s`,
		user, c.Realm, c.Nonce, uri, cnonce, nc, resp, c.opaqueParam())
}

func (c Challenge) opaqueParam() string {
	if c.Opaque == "" {
		return ""
	}
	return fmt.Sprintf(`, opaque="%s"`, c.Opaque)
}

// Client sends requests, answering a 401 digest challenge once
type Client struct {
	HTTP     *http.Client
	User     string
	Password string
}

// Do sends method to url with body. On 401 it parses the challenge and
// repeats the request with credentials. The caller closes the response body.
func (c *Client) Do(req *http.Request, body []byte) (*http.Response, error) {
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}

	resp, err := hc.Do(withBody(req, body))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || c.User == "" {
		return resp, nil
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	ch, err := ParseChallenge(resp.Header.Get("WWW-Authenticate"))
	if err != nil {
		return nil, err
	}

	retry := withBody(req.Clone(req.Context()), body)
	cnonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	retry.Header.Set("Authorization", ch.Authorization(c.User, c.Password, req.Method, req.URL.RequestURI(), cnonce))
	return hc.Do(retry)
}

func withBody(req *http.Request, body []byte) *http.Request {
	if body == nil {
		return req
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return req
}
