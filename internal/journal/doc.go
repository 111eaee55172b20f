// Package journal keeps an append-only SQLite record of lifecycle actions:
// which command ran, how it ended and what it printed. The supervising agent
// and the enginectl history command read it back with Recent.
package journal
