// Package addr implements the URL grammar shared by provider registration
// and IMAP/POP folder addressing (spec §6):
//
//	url      = proto "://" [userinfo "@"] [host [":" port]] [path] [";" param ("; " param)*] ["?" query] ["#" fragment]
//	userinfo = user [";auth=" mech] [":" passwd]
package addr

import (
	"fmt"
	"net/url"
	"strings"
)

// ChangeMask reports which URL fields a Set* call mutated.
type ChangeMask uint32

const (
	ChangedProtocol ChangeMask = 1 << iota
	ChangedUser
	ChangedAuthMech
	ChangedPassword
	ChangedHost
	ChangedPort
	ChangedPath
	ChangedParams
	ChangedQuery
	ChangedFragment
)

// URL is a parsed, mutable service URL.
type URL struct {
	Protocol string
	User     string
	AuthMech string
	Password string
	Host     string
	Port     int
	Path     string
	Params   map[string]string
	Query    string
	Fragment string
}

// Parse decodes a raw URL string into its components. All components are
// percent-decoded after parsing, and Path is canonicalised.
func Parse(raw string) (*URL, error) {
	proto, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return nil, fmt.Errorf("addr: missing scheme separator in %q", raw)
	}
	u := &URL{Protocol: proto, Params: map[string]string{}}

	// Split off fragment, then query, then params, left to right.
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		frag, err := url.QueryUnescape(rest[i+1:])
		if err != nil {
			return nil, fmt.Errorf("addr: fragment: %w", err)
		}
		u.Fragment = frag
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		q, err := url.QueryUnescape(rest[i+1:])
		if err != nil {
			return nil, fmt.Errorf("addr: query: %w", err)
		}
		u.Query = q
		rest = rest[:i]
	}
	// Params start after the userinfo, so a ";auth=" in userinfo is not one.
	paramFrom := 0
	if at := strings.IndexByte(rest, '@'); at >= 0 {
		if slash := strings.IndexByte(rest, '/'); slash < 0 || at < slash {
			paramFrom = at + 1
		}
	}
	if i := strings.IndexByte(rest[paramFrom:], ';'); i >= 0 {
		i += paramFrom
		paramStr := rest[i+1:]
		rest = rest[:i]
		for _, p := range strings.Split(paramStr, "; ") {
			for _, p2 := range strings.Split(p, ";") {
				p2 = strings.TrimSpace(p2)
				if p2 == "" {
					continue
				}
				k, v, _ := strings.Cut(p2, "=")
				k, err := url.QueryUnescape(k)
				if err != nil {
					return nil, fmt.Errorf("addr: param key: %w", err)
				}
				v, err = url.QueryUnescape(v)
				if err != nil {
					return nil, fmt.Errorf("addr: param value: %w", err)
				}
				u.Params[k] = v
			}
		}
	}

	// userinfo@host:port/path
	var hostport, path string
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		userinfo := rest[:i]
		hostport = rest[i+1:]

		user := userinfo
		if j := strings.IndexByte(userinfo, ':'); j >= 0 {
			user = userinfo[:j]
			passwd, err := url.QueryUnescape(userinfo[j+1:])
			if err != nil {
				return nil, fmt.Errorf("addr: password: %w", err)
			}
			u.Password = passwd
		}
		if k := strings.Index(user, ";auth="); k >= 0 {
			mech, err := url.QueryUnescape(user[k+len(";auth="):])
			if err != nil {
				return nil, fmt.Errorf("addr: auth mech: %w", err)
			}
			u.AuthMech = mech
			user = user[:k]
		}
		decUser, err := url.QueryUnescape(user)
		if err != nil {
			return nil, fmt.Errorf("addr: user: %w", err)
		}
		u.User = decUser
	} else {
		hostport = rest
	}

	if i := strings.IndexByte(hostport, '/'); i >= 0 {
		path = hostport[i:]
		hostport = hostport[:i]
	}

	if hostport != "" {
		host := hostport
		if j := strings.LastIndexByte(hostport, ':'); j >= 0 {
			host = hostport[:j]
			var port int
			if _, err := fmt.Sscanf(hostport[j+1:], "%d", &port); err == nil {
				u.Port = port
			}
		}
		decHost, err := url.QueryUnescape(host)
		if err != nil {
			return nil, fmt.Errorf("addr: host: %w", err)
		}
		u.Host = decHost
	}

	if path != "" {
		decPath, err := url.QueryUnescape(path)
		if err != nil {
			return nil, fmt.Errorf("addr: path: %w", err)
		}
		u.Path = CanonPath(decPath)
	}

	return u, nil
}

// CanonPath collapses duplicate slashes and strips a trailing slash, per
// spec §8: canon("/a//b/") -> "/a/b"; canon("a//b/") -> "a/b"; canon("/") -> "/".
func CanonPath(p string) string {
	if p == "" {
		return p
	}
	leadingSlash := strings.HasPrefix(p, "/")
	parts := strings.Split(p, "/")
	var kept []string
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	if len(kept) == 0 {
		if leadingSlash {
			return "/"
		}
		return ""
	}
	joined := strings.Join(kept, "/")
	if leadingSlash {
		return "/" + joined
	}
	return joined
}

// SetHost updates the host, returning which fields changed.
func (u *URL) SetHost(host string) ChangeMask {
	if u.Host == host {
		return 0
	}
	u.Host = host
	return ChangedHost
}

// SetPort updates the port, returning which fields changed.
func (u *URL) SetPort(port int) ChangeMask {
	if u.Port == port {
		return 0
	}
	u.Port = port
	return ChangedPort
}

// SetPath updates and canonicalises the path, returning which fields changed.
func (u *URL) SetPath(path string) ChangeMask {
	canon := CanonPath(path)
	if u.Path == canon {
		return 0
	}
	u.Path = canon
	return ChangedPath
}

// SetPassword updates the password, returning which fields changed.
func (u *URL) SetPassword(passwd string) ChangeMask {
	if u.Password == passwd {
		return 0
	}
	u.Password = passwd
	return ChangedPassword
}

// DefaultPort returns the well-known port for the recognised protocols.
func DefaultPort(proto string) (port int, ssl bool, ok bool) {
	switch proto {
	case "imap":
		return 143, false, true
	case "imaps":
		return 993, true, true
	case "pop":
		return 110, false, true
	case "pops":
		return 995, true, true
	case "sendmail":
		return 0, false, true
	}
	return 0, false, false
}

// String reassembles the URL (percent-encoding components as needed).
func (u *URL) String() string {
	var b strings.Builder
	b.WriteString(u.Protocol)
	b.WriteString("://")
	if u.User != "" || u.Password != "" {
		b.WriteString(url.QueryEscape(u.User))
		if u.AuthMech != "" {
			b.WriteString(";auth=")
			b.WriteString(url.QueryEscape(u.AuthMech))
		}
		if u.Password != "" {
			b.WriteByte(':')
			b.WriteString(url.QueryEscape(u.Password))
		}
		b.WriteByte('@')
	}
	b.WriteString(u.Host)
	if u.Port != 0 {
		fmt.Fprintf(&b, ":%d", u.Port)
	}
	b.WriteString(u.Path)
	if len(u.Params) > 0 {
		first := true
		for k, v := range u.Params {
			if first {
				b.WriteByte(';')
				first = false
			} else {
				b.WriteString("; ")
			}
			b.WriteString(url.QueryEscape(k))
			if v != "" {
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
	}
	if u.Query != "" {
		b.WriteByte('?')
		b.WriteString(u.Query)
	}
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.Fragment)
	}
	return b.String()
}
