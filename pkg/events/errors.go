package events

import "errors"

// ErrClosed is returned by Bus implementations once Close has been called.
var ErrClosed = errors.New("events: bus is closed")
