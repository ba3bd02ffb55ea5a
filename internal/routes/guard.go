// Package routes gates access to application views based on session state.
// The decision function is pure: it inspects a session snapshot and a
// destination path and never performs I/O.
package routes

import "strings"

// Role names a capability a route may require beyond authentication.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
)

// Well-known destinations.
const (
	LoginPath        = "/login"
	UnauthorizedPath = "/unauthorized"
)

// Route declares one view and its access requirements.
type Route struct {
	Pattern   string
	Protected bool
	Roles     []Role
}

// Table is the application route surface.
var Table = []Route{
	{Pattern: "/"},
	{Pattern: "/contact"},
	{Pattern: "/login"},
	{Pattern: "/register"},
	{Pattern: "/unauthorized"},
	{Pattern: "/properties", Protected: true},
	{Pattern: "/properties/:id", Protected: true},
	{Pattern: "/favourites", Protected: true},
	{Pattern: "/post-property", Protected: true, Roles: []Role{RoleAdmin}},
	{Pattern: "/admin", Protected: true, Roles: []Role{RoleAdmin}},
	{Pattern: "/queries", Protected: true, Roles: []Role{RoleAdmin}},
	{Pattern: "/dashboard", Protected: true, Roles: []Role{RoleOwner}},
}

// Session is the subset of session state the guard decides on.
type Session struct {
	Loading       bool
	Authenticated bool
	Admin         bool
	Owner         bool
}

// DecisionKind classifies a guard outcome.
type DecisionKind int

const (
	// Suspend means the session is still initializing; render nothing yet.
	Suspend DecisionKind = iota
	// Allow renders the requested view.
	Allow
	// Redirect sends the visitor to To, remembering From for the return
	// trip after login.
	Redirect
)

// Decision is the guard's verdict for one destination.
type Decision struct {
	Kind DecisionKind
	To   string
	From string
}

// Decide gates access to path for the given session state.
//
// Administrators pass every guarded route. Unauthenticated visitors are
// redirected to login with the original destination preserved. Declared
// role requirements are enforced against the session's capabilities;
// authenticated visitors lacking a required role land on the unauthorized
// view.
func Decide(s Session, path string) Decision {
	route, ok := match(normalize(path))
	if !ok || !route.Protected {
		// Unknown paths fall through to the not-found view, which is public.
		return Decision{Kind: Allow}
	}

	if s.Loading {
		return Decision{Kind: Suspend}
	}
	if s.Admin {
		return Decision{Kind: Allow}
	}
	if !s.Authenticated {
		return Decision{Kind: Redirect, To: LoginPath, From: path}
	}
	for _, role := range route.Roles {
		if !hasRole(s, role) {
			return Decision{Kind: Redirect, To: UnauthorizedPath, From: path}
		}
	}
	return Decision{Kind: Allow}
}

func hasRole(s Session, role Role) bool {
	switch role {
	case RoleAdmin:
		return s.Admin
	case RoleOwner:
		return s.Owner
	default:
		return false
	}
}

// normalize trims trailing slashes and folds the American spelling of the
// favourites view onto its canonical path.
func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "/favorites" {
		path = "/favourites"
	}
	return path
}

// match finds the route whose pattern covers path. Pattern segments
// beginning with ':' match any single segment.
func match(path string) (Route, bool) {
	segments := strings.Split(path, "/")
	for _, route := range Table {
		if matchPattern(strings.Split(route.Pattern, "/"), segments) {
			return route, true
		}
	}
	return Route{}, false
}

func matchPattern(pattern, segments []string) bool {
	if len(pattern) != len(segments) {
		return false
	}
	for i, p := range pattern {
		if strings.HasPrefix(p, ":") {
			if segments[i] == "" {
				return false
			}
			continue
		}
		if p != segments[i] {
			return false
		}
	}
	return true
}
