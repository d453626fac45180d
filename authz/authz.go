// Package authz defines the Authorizer capability the Artifact Service
// consumes and ships one concrete, scope-matching implementation usable
// when no external authorizer is wired.
//
// Authentication and scope-expansion happen upstream; this package only
// decides whether an already-expanded scope set satisfies the requirement
// for a given operation. Satisfies returns a plain bool — the HTTP layer,
// not the Authorizer, writes the rejection response, keeping this package
// free of any transport dependency. See DESIGN.md.
package authz

import (
	"context"
	"fmt"
	"strings"
)

// Claims is the claim bag passed to Satisfies: the subset of a request's
// addressing fields an authorization decision needs.
type Claims struct {
	TaskID      string
	RunID       int64
	WorkerGroup string
	WorkerID    string
	Name        string
}

// Authorizer decides whether the caller bound to ctx may perform the
// operation described by claims.
type Authorizer interface {
	// SatisfiesCreate implements the createArtifact scope requirement:
	// queue:create-artifact:{name} plus assume:worker-id:{group}/{id}, OR
	// queue:create-artifact:{taskId}/{runId}.
	SatisfiesCreate(ctx context.Context, claims Claims) bool

	// SatisfiesGet implements the getArtifact/getLatestArtifact scope
	// requirement: queue:get-artifact:{name}. Callers must not invoke this
	// for public names, which skip authorization entirely; the default
	// implementation doesn't special-case it so the contract stays simple
	// to test.
	SatisfiesGet(ctx context.Context, claims Claims) bool
}

type contextKey int

const scopesKey contextKey = 0

// ContextWithScopes attaches the caller's granted scope set to ctx. The api
// package's Authenticate middleware does this once per request, from the
// scopes claim of a valid bearer token.
func ContextWithScopes(ctx context.Context, scopes []string) context.Context {
	return context.WithValue(ctx, scopesKey, scopes)
}

// ScopesFromContext returns the granted scope set attached by
// ContextWithScopes, or nil.
func ScopesFromContext(ctx context.Context) []string {
	s, _ := ctx.Value(scopesKey).([]string)
	return s
}

// ScopeAuthorizer is the default Authorizer: taskcluster-style scope
// satisfaction, with a trailing "*" in a granted scope matching any
// required scope sharing that prefix.
type ScopeAuthorizer struct{}

// NewScopeAuthorizer creates a ScopeAuthorizer.
func NewScopeAuthorizer() *ScopeAuthorizer { return &ScopeAuthorizer{} }

func (ScopeAuthorizer) SatisfiesCreate(ctx context.Context, claims Claims) bool {
	granted := ScopesFromContext(ctx)
	byName := []string{
		fmt.Sprintf("queue:create-artifact:%s", claims.Name),
		fmt.Sprintf("assume:worker-id:%s/%s", claims.WorkerGroup, claims.WorkerID),
	}
	byRun := []string{
		fmt.Sprintf("queue:create-artifact:%s/%d", claims.TaskID, claims.RunID),
	}
	return satisfiesAll(granted, byName) || satisfiesAll(granted, byRun)
}

func (ScopeAuthorizer) SatisfiesGet(ctx context.Context, claims Claims) bool {
	granted := ScopesFromContext(ctx)
	return satisfiesAll(granted, []string{fmt.Sprintf("queue:get-artifact:%s", claims.Name)})
}

func satisfiesAll(granted, required []string) bool {
	for _, req := range required {
		if !satisfiesOne(granted, req) {
			return false
		}
	}
	return true
}

func satisfiesOne(granted []string, required string) bool {
	for _, g := range granted {
		if g == required {
			return true
		}
		if strings.HasSuffix(g, "*") && strings.HasPrefix(required, strings.TrimSuffix(g, "*")) {
			return true
		}
	}
	return false
}

var _ Authorizer = ScopeAuthorizer{}
