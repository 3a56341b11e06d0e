// Package capture wraps the external streamlink tool.
//
// LivenessProbe asks the tool whether an address currently has playable
// streams. ExecRunner launches long-running capture processes whose lifetime
// is bound to a context: cancelling the context sends an interrupt so the tool
// can flush its output, and the process is killed if it is still running after
// the grace period.
package capture
