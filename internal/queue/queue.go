// Package queue holds the work queue shared by the dispatcher's workers.
package queue

import "errors"

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")
