// Package digest implements the subset of HTTP Digest authentication the
// Tydom gateway uses: MD5 algorithm, qop=auth.
package digest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// Challenge is a parsed WWW-Authenticate: Digest ... header.
type Challenge struct {
	Realm     string
	Nonce     string
	QOP       string // comma-separated, as received
	Opaque    string // optional
	Algorithm string // optional; "" and "MD5" both mean MD5
}

// ErrNotDigest is returned when the header does not begin with "Digest ".
var ErrNotDigest = fmt.Errorf("digest: header is not a Digest challenge")

// UnsupportedAlgorithmError is returned for any algorithm other than MD5
// (or absent).
type UnsupportedAlgorithmError struct{ Algorithm string }

func (e *UnsupportedAlgorithmError) Error() string {
	return fmt.Sprintf("digest: unsupported algorithm %q", e.Algorithm)
}

// UnsupportedQOPError is returned when the challenge's qop does not list
// "auth".
type UnsupportedQOPError struct{ QOP string }

func (e *UnsupportedQOPError) Error() string {
	return fmt.Sprintf("digest: unsupported qop %q, want auth", e.QOP)
}

// ParseChallenge parses a case-insensitive "www-authenticate" header value
// beginning with "Digest ". Values are key=value pairs separated by
// commas; values may be double-quoted with backslash escapes.
func ParseChallenge(header string) (Challenge, error) {
	trimmed := strings.TrimSpace(header)
	if len(trimmed) < 7 || !strings.EqualFold(trimmed[:7], "Digest ") {
		return Challenge{}, ErrNotDigest
	}
	fields := parseKeyValuePairs(trimmed[7:])

	c := Challenge{
		Realm:     fields["realm"],
		Nonce:     fields["nonce"],
		QOP:       fields["qop"],
		Opaque:    fields["opaque"],
		Algorithm: fields["algorithm"],
	}

	if c.Algorithm != "" && !strings.EqualFold(c.Algorithm, "MD5") {
		return Challenge{}, &UnsupportedAlgorithmError{Algorithm: c.Algorithm}
	}
	if !qopContainsAuth(c.QOP) {
		return Challenge{}, &UnsupportedQOPError{QOP: c.QOP}
	}

	return c, nil
}

func qopContainsAuth(qop string) bool {
	for _, part := range strings.Split(qop, ",") {
		if strings.EqualFold(strings.TrimSpace(part), "auth") {
			return true
		}
	}
	return false
}

// parseKeyValuePairs splits "k1=v1, k2=\"v2\", k3=v3" respecting quoted
// values (which may contain escaped characters and commas).
func parseKeyValuePairs(s string) map[string]string {
	out := map[string]string{}
	i := 0
	n := len(s)
	for i < n {
		for i < n && (s[i] == ' ' || s[i] == ',') {
			i++
		}
		keyStart := i
		for i < n && s[i] != '=' {
			i++
		}
		if i >= n {
			break
		}
		key := strings.TrimSpace(s[keyStart:i])
		i++ // skip '='

		var value strings.Builder
		if i < n && s[i] == '"' {
			i++
			for i < n && s[i] != '"' {
				if s[i] == '\\' && i+1 < n {
					i++
				}
				value.WriteByte(s[i])
				i++
			}
			i++ // skip closing quote
		} else {
			for i < n && s[i] != ',' {
				value.WriteByte(s[i])
				i++
			}
		}
		out[strings.ToLower(key)] = strings.TrimSpace(value.String())
	}
	return out
}

// RandomBytesFunc produces n cryptographically random bytes. Injected so
// tests can be deterministic; see digest.Params.
type RandomBytesFunc func(n int) ([]byte, error)

// Params are the inputs needed to compute an Authorization header.
type Params struct {
	Username string
	Password string
	Method   string
	URI      string
	Challenge
	RandomBytes RandomBytesFunc
}

// Authorization computes HA1/HA2/response per RFC 2617 qop=auth and
// renders the "Authorization: Digest ..." header value (without the
// leading "Authorization: ").
func Authorization(p Params) (string, error) {
	if !qopContainsAuth(p.QOP) {
		return "", &UnsupportedQOPError{QOP: p.QOP}
	}

	randomBytes := p.RandomBytes
	if randomBytes == nil {
		randomBytes = defaultRandomBytes
	}
	raw, err := randomBytes(16)
	if err != nil {
		return "", fmt.Errorf("digest: generating cnonce: %w", err)
	}
	cnonce := hex.EncodeToString(raw)
	const nc = "00000001"

	ha1 := md5Hex(fmt.Sprintf("%s:%s:%s", p.Username, p.Realm, p.Password))
	ha2 := md5Hex(fmt.Sprintf("%s:%s", p.Method, p.URI))
	response := md5Hex(strings.Join([]string{ha1, p.Nonce, nc, cnonce, "auth", ha2}, ":"))

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s", qop=auth, nc=%s, cnonce="%s", response="%s"`,
		p.Username, p.Realm, p.Nonce, p.URI, nc, cnonce, response)
	if p.Opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, p.Opaque)
	}
	if p.Algorithm != "" {
		fmt.Fprintf(&b, `, algorithm=%s`, p.Algorithm)
	}

	return b.String(), nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
