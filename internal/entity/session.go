package entity

import "io"

// Session is one open, authenticated connection to a peer's file server.
// A session is owned by a single worker.
type Session interface {
	Retr(path string) (io.ReadCloser, error)
	Quit() error
	Addr() string
}
