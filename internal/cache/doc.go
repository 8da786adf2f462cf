// Package cache is a content-addressed store of synthesized audio.
//
// Entries live at <root>/<engine>/<lang>/<territory>/<hh>/<hash>.<type>,
// where hash is the MD5 of the UTF-8 text and hh its first two hex digits.
// Writers go through a temporary file in the same directory and an atomic
// rename, so a reader only ever sees a missing file or a complete one.
// Filesystem failures are reported as cache misses.
package cache
