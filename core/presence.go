package core

import (
	"time"
)

// PresenceEntry is one user's liveness record. LastSeen is nil while the
// user is online and set to the disconnect time afterwards; entries survive
// disconnects so clients can render "last seen" instead of a vanished user.
type PresenceEntry struct {
	UserID      string     `json:"userId"`
	DisplayName string     `json:"userName"`
	Role        Role       `json:"role"`
	LastSeen    *time.Time `json:"lastSeen"`
}

func (e PresenceEntry) Online() bool {
	return e.LastSeen == nil
}

// ViewerEntry records a user actively viewing a shared resource, e.g. an
// application record open in two browsers at once.
type ViewerEntry struct {
	ResourceID  string `json:"resourceId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"userName"`
	Role        Role   `json:"role"`
}

// PresenceTracker owns the process-wide online set and the per-resource
// viewer sets. All mutation goes through its methods; callers never hold
// references into its maps.
type PresenceTracker struct {
	entries *SyncMap[string, PresenceEntry]
	viewers *SyncMap[string, map[string]ViewerEntry]
	// viewing is the reverse index used for disconnect cleanup
	viewing *SyncMap[string, map[string]struct{}]
	now     func() time.Time
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{
		entries: NewSyncMap[string, PresenceEntry](),
		viewers: NewSyncMap[string, map[string]ViewerEntry](),
		viewing: NewSyncMap[string, map[string]struct{}](),
		now:     time.Now,
	}
}

// MarkOnline records identity as online and returns its fresh entry. A
// reconnect reuses the entry keyed by user id.
func (p *PresenceTracker) MarkOnline(identity Identity) PresenceEntry {
	entry := PresenceEntry{
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		Role:        identity.Role,
		LastSeen:    nil,
	}
	p.entries.Store(identity.UserID, entry)
	return entry
}

// MarkOffline stamps the entry with the current time rather than deleting
// it. Unknown users are a no-op.
func (p *PresenceTracker) MarkOffline(userID string) (PresenceEntry, bool) {
	var out PresenceEntry
	var found bool
	p.entries.LoadAndStore(userID, func(entry PresenceEntry, ok bool) PresenceEntry {
		if !ok {
			return entry
		}
		found = true
		t := p.now()
		entry.LastSeen = &t
		out = entry
		return entry
	})
	if !found {
		p.entries.Delete(userID)
	}
	return out, found
}

// ListOnline snapshots every known presence entry, online or not.
func (p *PresenceTracker) ListOnline() []PresenceEntry {
	entries := make([]PresenceEntry, 0, p.entries.Len())
	p.entries.RRange(func(_ string, entry PresenceEntry) bool {
		entries = append(entries, entry)
		return true
	})
	return entries
}

// ViewResource adds the user to a resource's viewer set.
func (p *PresenceTracker) ViewResource(identity Identity, resourceID string) ViewerEntry {
	entry := ViewerEntry{
		ResourceID:  resourceID,
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		Role:        identity.Role,
	}
	p.viewers.LoadAndStore(resourceID, func(set map[string]ViewerEntry, ok bool) map[string]ViewerEntry {
		if !ok {
			set = make(map[string]ViewerEntry)
		}
		set[identity.UserID] = entry
		return set
	})
	p.viewing.LoadAndStore(identity.UserID, func(set map[string]struct{}, ok bool) map[string]struct{} {
		if !ok {
			set = make(map[string]struct{})
		}
		set[resourceID] = struct{}{}
		return set
	})
	return entry
}

// LeaveResource removes the user from a resource's viewer set and reports
// whether they were in it.
func (p *PresenceTracker) LeaveResource(userID, resourceID string) bool {
	var removed bool
	p.viewers.LoadAndStore(resourceID, func(set map[string]ViewerEntry, ok bool) map[string]ViewerEntry {
		if !ok {
			return set
		}
		if _, in := set[userID]; in {
			removed = true
			delete(set, userID)
		}
		return set
	})
	p.viewing.LoadAndStore(userID, func(set map[string]struct{}, ok bool) map[string]struct{} {
		delete(set, resourceID)
		return set
	})
	return removed
}

// Viewers lists the active viewers of a resource, excluding the given user.
func (p *PresenceTracker) Viewers(resourceID, excludeUserID string) []ViewerEntry {
	var out []ViewerEntry
	set, ok := p.viewers.Load(resourceID)
	if !ok {
		return out
	}
	for id, entry := range set {
		if id == excludeUserID {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// DropUser runs the implicit disconnect cleanup: the user leaves every
// resource they were viewing and goes offline. It returns the resources
// left behind so callers can fan out viewer deltas. Safe to invoke twice.
func (p *PresenceTracker) DropUser(userID string) (PresenceEntry, []string, bool) {
	var resources []string
	viewed, ok := p.viewing.LoadAndDelete(userID)
	if ok {
		for resourceID := range viewed {
			p.viewers.LoadAndStore(resourceID, func(set map[string]ViewerEntry, ok bool) map[string]ViewerEntry {
				if ok {
					delete(set, userID)
				}
				return set
			})
			resources = append(resources, resourceID)
		}
	}
	entry, found := p.MarkOffline(userID)
	return entry, resources, found
}
