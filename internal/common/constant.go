package common

// MaxPostLength is the platform's post length limit, counted in runes.
const MaxPostLength = 280

// SessionHandleBytes is the number of random bytes behind a session handle.
// Hex encoding doubles it, so handles are 64 characters long.
const SessionHandleBytes = 32

// SessionHeaderName is the HTTP header that carries the session handle.
const SessionHeaderName = "X-Session-ID"

// MaxRepliesToFetch caps how many conversation replies are inspected when
// resuming an existing thread.
const MaxRepliesToFetch = 100
