// Package testutil provides helpers for building identities, membership
// groups and recipient key pairs in tests.
package testutil
