package auth

import "strings"

// Authorizer decides whether a verified identity may join rooms.
// Verification (is the token genuine) and authorization (is this user
// welcome) are deliberately separate steps.
type Authorizer interface {
	Allow(identity Identity) bool
}

// AllowAll accepts every verified identity. This is the default policy.
type AllowAll struct{}

// Allow implements Authorizer.
func (AllowAll) Allow(Identity) bool { return true }

// EmailAllowlist accepts only identities whose email appears in a fixed list.
// Matching is case-insensitive on the whole address.
type EmailAllowlist struct {
	emails map[string]struct{}
}

// NewEmailAllowlist builds an allow-list policy from the given addresses.
func NewEmailAllowlist(emails []string) *EmailAllowlist {
	set := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		set[strings.ToLower(strings.TrimSpace(email))] = struct{}{}
	}
	return &EmailAllowlist{emails: set}
}

// Allow implements Authorizer.
func (a *EmailAllowlist) Allow(identity Identity) bool {
	_, ok := a.emails[strings.ToLower(identity.Email)]
	return ok
}

// PolicyFor returns the authorization policy for a configured email list:
// an allow-list when addresses are given, otherwise AllowAll.
func PolicyFor(allowedEmails []string) Authorizer {
	if len(allowedEmails) > 0 {
		return NewEmailAllowlist(allowedEmails)
	}
	return AllowAll{}
}
