package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeAuthorizer_SatisfiesCreate(t *testing.T) {
	claims := Claims{TaskID: "T1", RunID: 0, WorkerGroup: "workers", WorkerID: "w1", Name: "public/log.txt"}
	auth := NewScopeAuthorizer()

	tests := []struct {
		name   string
		scopes []string
		want   bool
	}{
		{"by name and worker assume", []string{"queue:create-artifact:public/log.txt", "assume:worker-id:workers/w1"}, true},
		{"by task/run", []string{"queue:create-artifact:T1/0"}, true},
		{"wildcard name", []string{"queue:create-artifact:*", "assume:worker-id:workers/w1"}, true},
		{"missing worker assume", []string{"queue:create-artifact:public/log.txt"}, false},
		{"unrelated scopes", []string{"queue:get-artifact:public/log.txt"}, false},
		{"no scopes", nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := ContextWithScopes(context.Background(), tc.scopes)
			assert.Equal(t, tc.want, auth.SatisfiesCreate(ctx, claims))
		})
	}
}

func TestScopeAuthorizer_SatisfiesGet(t *testing.T) {
	claims := Claims{Name: "private/build.log"}
	auth := NewScopeAuthorizer()

	tests := []struct {
		name   string
		scopes []string
		want   bool
	}{
		{"exact", []string{"queue:get-artifact:private/build.log"}, true},
		{"wildcard prefix", []string{"queue:get-artifact:private/*"}, true},
		{"unrelated", []string{"queue:get-artifact:other.log"}, false},
		{"empty", nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := ContextWithScopes(context.Background(), tc.scopes)
			assert.Equal(t, tc.want, auth.SatisfiesGet(ctx, claims))
		})
	}
}

func TestScopesFromContext_Unset(t *testing.T) {
	assert.Nil(t, ScopesFromContext(context.Background()))
}
