//go:build cgo

package store

// cgoEnabled reports whether the cgo sqlite3 driver is usable in this build.
const cgoEnabled = true
