package gumble

// Command is one host-requested action waiting to be sent to the
// server. It carries the already-serialised wire payload; the runtime
// only needs to frame and send it. Completion means dispatched, not
// acknowledged -- Mumble sends no correlated reply for most commands.
type Command struct {
	ID      int64
	Type    MessageType
	Payload []byte

	done chan error
}

// Wait blocks until the runtime has sent the command and releases the
// completion signal, returning any error encountered while sending it.
func (c *Command) Wait() error {
	return <-c.done
}
