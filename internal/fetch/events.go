package fetch

// Observer receives coordinator lifecycle events. Implementations must be safe
// for concurrent use.
type Observer interface {
	On(eventData EventData)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(eventData EventData)

// On makes ObserverFunc satisfy Observer.
func (f ObserverFunc) On(eventData EventData) {
	f(eventData)
}

// Event represents a coordinator event type.
type Event int

const (
	// EventHit is emitted when Resolve finds a cached value.
	EventHit Event = iota
	// EventMiss is emitted when Resolve starts a new upstream request.
	EventMiss
	// EventJoin is emitted when Resolve waits on a request already in flight.
	EventJoin
	// EventSettle is emitted once per upstream request when it terminates.
	EventSettle
)

func (e Event) String() string {
	switch e {
	case EventHit:
		return "hit"
	case EventMiss:
		return "miss"
	case EventJoin:
		return "join"
	case EventSettle:
		return "settle"
	default:
		return "unknown"
	}
}

// EventData carries the details of a coordinator event. Err is only set on
// EventSettle.
type EventData struct {
	Event Event
	ID    string
	Err   error
}
