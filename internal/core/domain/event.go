package domain

type TransitionKind string

const (
	WentOnline  TransitionKind = "WENT_ONLINE"
	WentOffline TransitionKind = "WENT_OFFLINE"
)

// TransitionEvent reports a single channel changing between offline and live.
// Synthetic events are emitted when a channel is added to the watch-list and
// reflect its current state rather than an observed change.
type TransitionEvent struct {
	Kind      TransitionKind
	Status    LiveStatus
	Profile   *ProfileInfo
	Synthetic bool
}

func (e TransitionEvent) Login() string {
	if key := e.Status.Key(); key != "" {
		return key
	}
	if e.Profile != nil {
		return e.Profile.Key()
	}
	return ""
}
