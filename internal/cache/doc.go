// Package cache defines the content-addressable disk store that maps a package
// coordinate (author, name, version) plus an artifact kind to
// StoragePath/<Package key>/<kind><ext>. Keys are a pure function of the
// coordinate (see KeyFor), writes go through temp file + rename so readers
// never observe partial content, and a miss is reported as ErrNotFound rather
// than a failure. Proxy handlers consult the store before dispatching work to
// the engine and write results back after it answers.
package cache
