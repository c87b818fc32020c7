package policy

import (
	"fmt"
	"path"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/upb/identity-gateway/models"
)

// Requirement is what a path rule demands of the caller
type Requirement int

const (
	// Authenticated requires a resolved principal
	Authenticated Requirement = iota
	// Public admits anonymous callers
	Public
)

func (r Requirement) String() string {
	if r == Public {
		return "public"
	}
	return "authenticated"
}

// Reason explains a denial
type Reason string

const (
	ReasonUnauthenticated  Reason = "unauthenticated"
	ReasonMissingRole      Reason = "missing_role"
	ReasonUnknownOperation Reason = "unknown_operation"
)

// Decision is the outcome of a policy evaluation
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Allow returns a permitting decision
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a refusing decision with reason
func Deny(reason Reason) Decision { return Decision{Reason: reason} }

// Rule maps a doublestar path pattern to a requirement
type Rule struct {
	Pattern     string
	Requirement Requirement
}

// Engine evaluates the ordered path table and the operation table.
// Both are fixed at construction.
type Engine struct {
	rules      []Rule
	operations map[string]Predicate
}

// NewEngine validates the rule patterns and builds an engine.
func NewEngine(rules []Rule, operations map[string]Predicate) (*Engine, error) {
	for _, rule := range rules {
		if !doublestar.ValidatePattern(rule.Pattern) {
			return nil, fmt.Errorf("invalid path pattern %q", rule.Pattern)
		}
	}

	ops := make(map[string]Predicate, len(operations))
	for name, pred := range operations {
		if pred == nil {
			return nil, fmt.Errorf("operation %q has no predicate", name)
		}
		ops[name] = pred
	}

	return &Engine{
		rules:      append([]Rule(nil), rules...),
		operations: ops,
	}, nil
}

// NewDefaultEngine builds the engine for the todo application.
func NewDefaultEngine() *Engine {
	e, err := NewEngine(DefaultRules(), DefaultOperations())
	if err != nil {
		panic(err)
	}
	return e
}

// DefaultRules returns the public entry points of the application.
// Anything that matches none of them requires authentication.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "/", Requirement: Public},
		{Pattern: "/index.*", Requirement: Public},
		{Pattern: "/__parcel_source_root/**", Requirement: Public},
		{Pattern: "/favicon.ico", Requirement: Public},
		{Pattern: "/login", Requirement: Public},
		{Pattern: "/healthz", Requirement: Public},
		{Pattern: "/readyz", Requirement: Public},
	}
}

// Requirement returns the requirement of the first rule matching urlPath.
func (e *Engine) Requirement(urlPath string) Requirement {
	clean := normalize(urlPath)
	for _, rule := range e.rules {
		if ok, _ := doublestar.Match(rule.Pattern, clean); ok {
			return rule.Requirement
		}
	}
	return Authenticated
}

// IsPublic reports whether anonymous callers may reach urlPath.
func (e *Engine) IsPublic(urlPath string) bool {
	return e.Requirement(urlPath) == Public
}

// Decide evaluates the path table for principal; a zero principal is anonymous.
func (e *Engine) Decide(urlPath string, principal models.Principal) Decision {
	if e.IsPublic(urlPath) || !principal.IsZero() {
		return Allow()
	}
	return Deny(ReasonUnauthenticated)
}

// Authorize evaluates the predicate registered for operation.
// Unknown operations are denied.
func (e *Engine) Authorize(operation string, principal models.Principal) Decision {
	pred, ok := e.operations[operation]
	if !ok {
		return Deny(ReasonUnknownOperation)
	}
	if principal.IsZero() {
		return Deny(ReasonUnauthenticated)
	}
	if !pred(principal) {
		return Deny(ReasonMissingRole)
	}
	return Allow()
}

func normalize(urlPath string) string {
	if urlPath == "" {
		return "/"
	}
	if urlPath[0] != '/' {
		urlPath = "/" + urlPath
	}
	return path.Clean(urlPath)
}
