// Package timeouts defines shared timeout constants.
package timeouts

import "time"

// SQLiteBusy is how long SQLite waits on a locked database before failing.
const SQLiteBusy = 5 * time.Second

// StoreOpen caps how long opening a durable store may take at startup.
const StoreOpen = 10 * time.Second

// Shutdown limits how long a command waits for in-flight work on exit.
const Shutdown = 5 * time.Second
