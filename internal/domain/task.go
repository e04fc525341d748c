package domain

// Task is a deferred operation enqueued by an RPC handler and executed on
// the engine goroutine. The closure captures whatever it needs from the
// session/engine handed to it; Fn's error is logged and swallowed by the
// queue drain loop rather than aborting the cycle.
type Task struct {
	// CorrelationID lets the RPC layer that enqueued this task match it
	// against whatever ack/alert eventually confirms it, without the
	// Command Queue itself knowing anything about RPC semantics.
	CorrelationID string
	Fn            func() error
}
