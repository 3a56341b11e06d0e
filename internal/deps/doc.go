// Package deps reports whether the external binaries streamkeep shells out to
// (the capture tool and ffmpeg) can be resolved, and which versions they are.
package deps
