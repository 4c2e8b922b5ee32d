// serial/event.go

package serial

// OnReceive registers fn to be invoked from RunEvents while received data is
// buffered. A nil fn removes the handler. Register before starting the main
// loop; the handler runs on the goroutine calling RunEvents, never in
// interrupt context.
func (p *Port) OnReceive(fn func()) {
	p.onReceive = fn
}

// RunEvents dispatches the registered receive handlers of the given ports.
// Call it once per main-loop iteration: each port with a handler set and
// data available gets exactly one callback.
func RunEvents(ports ...*Port) {
	for _, p := range ports {
		if p.onReceive != nil && p.Available() > 0 {
			p.onReceive()
		}
	}
}
