// Package upstream implements the HTTP side of harvesting: per-worker
// sessions with cookie and token state, the retrying rate-limit-aware
// client shared by every source, and runtime discovery of the
// version-qualified API base URL from a public page.
package upstream
