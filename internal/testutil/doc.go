// Package testutil provides test helpers shared across packages: a
// controllable clock, a table-driven DNS resolver and a virtual-host HTTPS
// server for exercising outbound fetches against realistic host names.
package testutil
