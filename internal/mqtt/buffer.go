package mqtt

// queuedMsg is a serialized MQTT message held for replay after reconnection.
type queuedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO of messages published while offline.
// When full the oldest message is overwritten.
// Not safe for concurrent use; caller must synchronize.
type outbox struct {
	buf     []queuedMsg
	head    int // next write position
	count   int
	dropped int // messages overwritten since the last drain
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{buf: make([]queuedMsg, capacity)}
}

// push queues msg and reports whether an older message was dropped.
func (o *outbox) push(msg queuedMsg) bool {
	o.buf[o.head] = msg
	o.head = (o.head + 1) % len(o.buf)
	if o.count == len(o.buf) {
		o.dropped++
		return true
	}
	o.count++
	return false
}

// drain returns queued messages oldest first with the number dropped, and
// empties the outbox.
func (o *outbox) drain() ([]queuedMsg, int) {
	if o.count == 0 {
		return nil, 0
	}
	out := make([]queuedMsg, o.count)
	start := (o.head - o.count + len(o.buf)) % len(o.buf)
	for i := range out {
		out[i] = o.buf[(start+i)%len(o.buf)]
	}
	dropped := o.dropped
	o.count, o.head, o.dropped = 0, 0, 0
	return out, dropped
}

func (o *outbox) len() int {
	return o.count
}
