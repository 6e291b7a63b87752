package domain

import (
	"sort"
	"time"
)

// Snapshot is the known state of every watched channel after a poll cycle.
// A snapshot is never modified once published; updates build a new one.
type Snapshot struct {
	Online          map[string]LiveStatus
	OfflineProfiles map[string]ProfileInfo
	TakenAt         time.Time
}

func EmptySnapshot() *Snapshot {
	return &Snapshot{
		Online:          make(map[string]LiveStatus),
		OfflineProfiles: make(map[string]ProfileInfo),
	}
}

// NewSnapshot assembles a snapshot from one cycle's fetch results. Profiles of
// watch-list members that are not live become the offline profiles.
func NewSnapshot(watchlist []string, streams map[string]LiveStatus, profiles map[string]ProfileInfo, takenAt time.Time) *Snapshot {
	snap := &Snapshot{
		Online:          make(map[string]LiveStatus, len(streams)),
		OfflineProfiles: make(map[string]ProfileInfo),
		TakenAt:         takenAt,
	}
	for _, status := range streams {
		snap.Online[status.Key()] = status
	}
	for _, login := range watchlist {
		key := NormalizeLogin(login)
		if _, live := snap.Online[key]; live {
			continue
		}
		if profile, ok := profiles[key]; ok {
			snap.OfflineProfiles[key] = profile
		}
	}
	return snap
}

// Lookup returns the live status of login, if it is online.
func (s *Snapshot) Lookup(login string) (LiveStatus, bool) {
	status, ok := s.Online[NormalizeLogin(login)]
	return status, ok
}

// OnlineStreams returns the online set ordered by login.
func (s *Snapshot) OnlineStreams() []LiveStatus {
	out := make([]LiveStatus, 0, len(s.Online))
	for _, status := range s.Online {
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// OfflineList returns the offline profiles ordered by login.
func (s *Snapshot) OfflineList() []ProfileInfo {
	out := make([]ProfileInfo, 0, len(s.OfflineProfiles))
	for _, profile := range s.OfflineProfiles {
		out = append(out, profile)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// WithChannel returns a copy of the snapshot where login is online with status
// (when status is non-nil) or offline with profile.
func (s *Snapshot) WithChannel(login string, status *LiveStatus, profile *ProfileInfo, takenAt time.Time) *Snapshot {
	key := NormalizeLogin(login)
	next := &Snapshot{
		Online:          make(map[string]LiveStatus, len(s.Online)+1),
		OfflineProfiles: make(map[string]ProfileInfo, len(s.OfflineProfiles)+1),
		TakenAt:         takenAt,
	}
	for k, v := range s.Online {
		if k != key {
			next.Online[k] = v
		}
	}
	for k, v := range s.OfflineProfiles {
		if k != key {
			next.OfflineProfiles[k] = v
		}
	}
	if status != nil {
		next.Online[key] = *status
	} else if profile != nil {
		next.OfflineProfiles[key] = *profile
	}
	return next
}

// Transitions is the difference between two consecutive snapshots.
type Transitions struct {
	WentOffline []LiveStatus
	WentOnline  []LiveStatus
}

func (t Transitions) Empty() bool {
	return len(t.WentOffline) == 0 && len(t.WentOnline) == 0
}

// Diff compares the online sets of prev and next by login only; any other
// field change is not a transition.
func Diff(prev, next *Snapshot) Transitions {
	if prev == nil {
		prev = EmptySnapshot()
	}
	if next == nil {
		next = EmptySnapshot()
	}

	var t Transitions
	for key, status := range prev.Online {
		if _, ok := next.Online[key]; !ok {
			t.WentOffline = append(t.WentOffline, status)
		}
	}
	for key, status := range next.Online {
		if _, ok := prev.Online[key]; !ok {
			t.WentOnline = append(t.WentOnline, status)
		}
	}
	sort.Slice(t.WentOffline, func(i, j int) bool { return t.WentOffline[i].Key() < t.WentOffline[j].Key() })
	sort.Slice(t.WentOnline, func(i, j int) bool { return t.WentOnline[i].Key() < t.WentOnline[j].Key() })
	return t
}

// Events turns transitions into events, offline ones first. profiles supplies
// the ProfileInfo attached to each event when it is known.
func (t Transitions) Events(profiles map[string]ProfileInfo) []TransitionEvent {
	events := make([]TransitionEvent, 0, len(t.WentOffline)+len(t.WentOnline))
	for _, status := range t.WentOffline {
		events = append(events, TransitionEvent{
			Kind:    WentOffline,
			Status:  status,
			Profile: profileFor(profiles, status.Key()),
		})
	}
	for _, status := range t.WentOnline {
		events = append(events, TransitionEvent{
			Kind:    WentOnline,
			Status:  status,
			Profile: profileFor(profiles, status.Key()),
		})
	}
	return events
}

func profileFor(profiles map[string]ProfileInfo, key string) *ProfileInfo {
	profile, ok := profiles[key]
	if !ok {
		return nil
	}
	return &profile
}
