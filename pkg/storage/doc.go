// Package storage writes uploaded files below a storage root.
//
// Client-supplied names are sanitized to a single path component before
// anything touches the filesystem, so every file lands directly inside the
// root. Each open file has its own writer goroutine fed by a bounded queue;
// chunks are written in the order they were appended and Close drains the
// queue before releasing the handle.
//
// A Manifest optionally records every completed upload in a JSON file.
package storage
