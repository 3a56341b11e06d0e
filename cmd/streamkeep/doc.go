// Command streamkeep is the CLI and daemon entry point.
//
// `streamkeep daemon` runs the recorder in the foreground; `start` and `stop`
// manage it in the background. Every other command talks to the running
// daemon over its Unix socket.
package main
