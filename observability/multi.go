package observability

import "context"

// MultiObserver delivers each event to its members in order.
type MultiObserver []Observer

func (m MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m {
		obs.OnEvent(ctx, event)
	}
}

// Join combines observers into one. Nil and NoOp members are dropped and
// nested MultiObservers are flattened. With no members left Join returns
// NoOpObserver; with one it returns that observer unwrapped.
func Join(observers ...Observer) Observer {
	var joined MultiObserver
	for _, obs := range observers {
		switch o := obs.(type) {
		case nil, NoOpObserver:
		case MultiObserver:
			joined = append(joined, o...)
		default:
			joined = append(joined, o)
		}
	}

	switch len(joined) {
	case 0:
		return NoOpObserver{}
	case 1:
		return joined[0]
	default:
		return joined
	}
}

// NoOpObserver discards all events.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(context.Context, Event) {}
