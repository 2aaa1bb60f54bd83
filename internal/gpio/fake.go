package gpio

// FakeActuator records relay writes for test assertions.
type FakeActuator struct {
	// Active is the last value written.
	Active bool

	// Writes contains every value that actually reached the relay.
	Writes []bool

	// Calls counts SetActive calls, including redundant ones.
	Calls int

	// Closed tracks if Close was called.
	Closed bool

	written bool
}

// NewFakeActuator creates a FakeActuator.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

// SetActive records the value, skipping writes that would not change the output.
func (f *FakeActuator) SetActive(on bool) {
	f.Calls++
	if f.written && f.Active == on {
		return
	}
	f.written = true
	f.Active = on
	f.Writes = append(f.Writes, on)
}

// Close de-energizes and marks the actuator as closed.
func (f *FakeActuator) Close() error {
	f.SetActive(false)
	f.Closed = true
	return nil
}

// Reset clears recorded writes.
func (f *FakeActuator) Reset() {
	f.Writes = nil
	f.Calls = 0
	f.Closed = false
}
