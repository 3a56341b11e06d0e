// Package daemonctl starts, stops, and inspects the streamkeep daemon process
// on behalf of the CLI.
package daemonctl
