package models

import (
	"sort"
	"strings"
)

// RolePrefix is prepended to every group or role name to form an authority.
const RolePrefix = "ROLE_"

// Principal sources
const (
	SourceBearer  = "bearer"
	SourceSession = "session"
)

// Principal is the authenticated identity attached to a request.
// Authorities are de-duplicated and sorted; the value is never mutated after construction.
type Principal struct {
	Name        string   `json:"name"`
	Authorities []string `json:"authorities"`
	Source      string   `json:"source"`
}

// NewPrincipal builds a principal from raw role names, prefixing each with ROLE_.
// Empty role names are dropped.
func NewPrincipal(name, source string, roles []string) Principal {
	seen := make(map[string]struct{}, len(roles))
	authorities := make([]string, 0, len(roles))
	for _, role := range roles {
		if role == "" {
			continue
		}
		authority := RolePrefix + role
		if _, ok := seen[authority]; ok {
			continue
		}
		seen[authority] = struct{}{}
		authorities = append(authorities, authority)
	}
	sort.Strings(authorities)

	return Principal{
		Name:        name,
		Authorities: authorities,
		Source:      source,
	}
}

// HasAuthority reports whether the principal carries the exact authority.
func (p Principal) HasAuthority(authority string) bool {
	for _, a := range p.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

// HasRole reports whether the principal carries ROLE_<role>.
func (p Principal) HasRole(role string) bool {
	return p.HasAuthority(RolePrefix + role)
}

// Groups returns the authorities with the ROLE_ prefix stripped.
func (p Principal) Groups() []string {
	groups := make([]string, 0, len(p.Authorities))
	for _, a := range p.Authorities {
		groups = append(groups, strings.TrimPrefix(a, RolePrefix))
	}
	return groups
}

// IsZero reports whether no identity has been established.
func (p Principal) IsZero() bool {
	return p.Name == ""
}
