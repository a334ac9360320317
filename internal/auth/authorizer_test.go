package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowAll(t *testing.T) {
	assert.True(t, AllowAll{}.Allow(Identity{Email: "anyone@x.com"}))
	assert.True(t, AllowAll{}.Allow(Identity{}))
}

func TestEmailAllowlist(t *testing.T) {
	policy := NewEmailAllowlist([]string{"A@X.com", " b@x.com "})

	assert.True(t, policy.Allow(Identity{Email: "a@x.com"}))
	assert.True(t, policy.Allow(Identity{Email: "B@X.COM"}))
	assert.False(t, policy.Allow(Identity{Email: "c@x.com"}))
	assert.False(t, policy.Allow(Identity{}))
}

func TestPolicyFor(t *testing.T) {
	assert.IsType(t, AllowAll{}, PolicyFor(nil))
	assert.IsType(t, &EmailAllowlist{}, PolicyFor([]string{"a@x.com"}))
}
