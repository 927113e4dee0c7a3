// feserial/state.go

package feserial

// State is a step of the device bring-up and teardown sequence.
type State uint8

// Bring-up runs Uninitialized through Running; teardown runs Running through
// RegistersUnmapped and back to Uninitialized.
const (
	StateUninitialized State = iota
	StateRegistersMapped
	StateHardwareConfigured
	StateInterruptsEnabled
	StateRegistered
	StateRunning
	StateInterruptsDisabled
	StateUnregistered
	StateRegistersUnmapped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRegistersMapped:
		return "registers-mapped"
	case StateHardwareConfigured:
		return "hardware-configured"
	case StateInterruptsEnabled:
		return "interrupts-enabled"
	case StateRegistered:
		return "registered"
	case StateRunning:
		return "running"
	case StateInterruptsDisabled:
		return "interrupts-disabled"
	case StateUnregistered:
		return "unregistered"
	case StateRegistersUnmapped:
		return "registers-unmapped"
	default:
		return "unknown"
	}
}
