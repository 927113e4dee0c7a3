// sim/irq.go

package sim

import "sync/atomic"

// line is one level-triggered interrupt line. Its goroutine is the
// "interrupt context": it calls the handler while the UART asserts the
// receive interrupt, one invocation at a time.
type line struct {
	uart    *UART
	handler func()

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	busy   atomic.Bool
	fired  atomic.Uint64
	storms atomic.Uint64
}

func newLine(u *UART, h func()) *line {
	return &line{
		uart:    u,
		handler: h,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (l *line) kick() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *line) running() bool { return l.busy.Load() }

func (l *line) run() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		case <-l.wake:
		}
		for l.uart.rxPending() {
			select {
			case <-l.stop:
				return
			default:
			}
			before := l.uart.reads()
			l.busy.Store(true)
			l.handler()
			l.fired.Add(1)
			l.busy.Store(false)
			if l.uart.reads() == before {
				// The handler left the condition asserted. Real hardware
				// would storm; back off until the next kick.
				l.storms.Add(1)
				break
			}
		}
	}
}

// shutdown stops delivery and waits for an in-flight handler to return.
func (l *line) shutdown() {
	close(l.stop)
	<-l.done
}
