// Package textutil provides filename helpers for turning source names into
// safe path components.
package textutil
