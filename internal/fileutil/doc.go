// Package fileutil prepares the on-disk locations enginectl writes to: the
// lifecycle lock file and the SQLite journal.
package fileutil
