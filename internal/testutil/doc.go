// Package testutil holds the end-to-end harness used by the integration
// tests: a temporary catalog, an in-memory release host and a real shell.
package testutil
