// Package popout implements popout addressing, session identity, and the
// popout window lifecycle for the sandbox feature.
//
// A sandbox session has two surfaces: the embedded watcher inside the main
// application and the popout controller window. Both read their role and
// session token from their own address, so the address format is the only
// contract between them.
package popout

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const (
	// PopoutParam is the query parameter marking a surface as the popout controller.
	PopoutParam = "popout"

	// SessionParam carries the opaque session token correlating controller and watcher.
	SessionParam = "session"

	// FeatureName is the feature's own name, accepted as a popout selector value.
	FeatureName = "sandbox"

	// channelPrefix names the sync bus. Callers with no session token share
	// the bare prefix as a legacy bus.
	channelPrefix = "sandbox.sync"
)

// lookupParam reads a named parameter from an address. It checks the regular
// query first and falls back to a query embedded after "?" inside the
// fragment, which is how file:-scheme loads carry parameters (only the
// fragment can vary there). Both readers share this one parser so the two
// paths cannot drift apart.
func lookupParam(raw, name string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	if vals, err := url.ParseQuery(u.RawQuery); err == nil {
		if v, ok := vals[name]; ok && len(v) > 0 {
			return v[0], true
		}
	}

	if idx := strings.Index(u.Fragment, "?"); idx >= 0 {
		if vals, err := url.ParseQuery(u.Fragment[idx+1:]); err == nil {
			if v, ok := vals[name]; ok && len(v) > 0 {
				return v[0], true
			}
		}
	}

	return "", false
}

// IsPopoutAddress reports whether the address marks its surface as the popout
// controller. The selector value is matched case- and whitespace-insensitively;
// a bare "popout" parameter counts.
func IsPopoutAddress(raw string) bool {
	v, ok := lookupParam(raw, PopoutParam)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "1", "true", FeatureName:
		return true
	}
	return false
}

// NewSessionID returns a fresh 16-hex-character session token.
func NewSessionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}

// SessionIDFromAddress reads the session token from an address, or "" when absent.
func SessionIDFromAddress(raw string) string {
	v, _ := lookupParam(raw, SessionParam)
	return v
}

// SyncChannelName names the sync bus subject for a session. An empty session
// ID selects the legacy shared bus.
func SyncChannelName(sessionID string) string {
	if sessionID == "" {
		return channelPrefix
	}
	return channelPrefix + "." + sessionID
}

// BuildPopoutAddress builds the address the popout window should load:
// base rewritten to point at targetPath, carrying the popout selector and,
// when given, the session token, with no stray navigation fragment. For
// file: bases the path and query are encoded inside the fragment instead.
func BuildPopoutAddress(targetPath, sessionID, base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base address: %w", err)
	}

	params := url.Values{}
	params.Set(PopoutParam, FeatureName)
	if sessionID != "" {
		params.Set(SessionParam, sessionID)
	}

	if u.Scheme == "file" {
		u.RawQuery = ""
		u.Fragment = targetPath + "?" + params.Encode()
		return u.String(), nil
	}

	u.Path = targetPath
	u.RawQuery = params.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// IsSafeDisplayEndpoint reports whether a backend-supplied display endpoint
// may be embedded as a viewer source. Only absolute http/https URLs pass;
// script-executing and data schemes are rejected.
func IsSafeDisplayEndpoint(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if !u.IsAbs() || u.Host == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return true
	}
	return false
}
