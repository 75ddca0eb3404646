package notify

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskweave/taskweave/internal/bus"
	"github.com/taskweave/taskweave/internal/sched"
	"github.com/taskweave/taskweave/pkg/models"
)

// Router builds, filters, stores, and delivers notifications.
type Router struct {
	bus       *bus.Bus
	scheduler *sched.Scheduler
	clock     sched.Clock

	// mu protects templates, prefs, store, defaultTTL, and archive.
	mu        sync.RWMutex
	templates map[TemplateID]Template
	prefs     map[string]models.NotificationPreferences
	store     map[string]*models.Notification

	// defaultTTL expires non-persistent notifications that carry no
	// explicit deadline. Zero disables it.
	defaultTTL time.Duration
	// archive receives persistent notifications on send and on read-state
	// changes. Never called with mu held.
	archive func(*models.Notification)
}

// NewRouter creates a Router with the built-in template set.
func NewRouter(b *bus.Bus, scheduler *sched.Scheduler, clock sched.Clock) *Router {
	return &Router{
		bus:       b,
		scheduler: scheduler,
		clock:     clock,
		templates: builtinTemplates(),
		prefs:     make(map[string]models.NotificationPreferences),
		store:     make(map[string]*models.Notification),
	}
}

// SetDefaultTTL makes Send expire non-persistent notifications after ttl
// unless they already carry a deadline.
func (r *Router) SetDefaultTTL(ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultTTL = ttl
}

// SetArchiveHook installs the collaborator that snapshots persistent
// notifications. The hook runs on the caller's goroutine with no router
// lock held and must not call back into the Router.
func (r *Router) SetArchiveHook(fn func(*models.Notification)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archive = fn
}

// archiveHook returns the installed hook, or nil.
func (r *Router) archiveHook() func(*models.Notification) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.archive
}

// Build renders a notification from a template. An unknown template id is
// a programmer error and returns ErrValidation; unresolved placeholders in
// the data are left verbatim rather than failing.
func (r *Router) Build(id TemplateID, recipient string, data map[string]string) (*models.Notification, error) {
	r.mu.RLock()
	tpl, ok := r.templates[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown notification template %q: %w", id, models.ErrValidation)
	}

	return &models.Notification{
		ID:         uuid.New().String(),
		Category:   tpl.Category,
		Severity:   tpl.Severity,
		Title:      substitute(tpl.Title, data),
		Body:       substitute(tpl.Body, data),
		Recipient:  recipient,
		Persistent: tpl.Persistent,
		Priority:   tpl.Priority,
		Actions:    append([]models.NotificationAction(nil), tpl.DefaultActions...),
		CreatedAt:  r.clock.Now(),
	}, nil
}

// Send filters the notification against the recipient's preferences,
// stores it, and hands it to the event bus. Single-recipient notifications
// failing any preference check are dropped silently; broadcasts bypass
// filtering. Returns true if the notification was delivered.
func (r *Router) Send(n *models.Notification) bool {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.clock.Now()
	}

	if !n.Broadcast() && !r.Preferences(n.Recipient).Allows(n) {
		return false
	}

	r.mu.Lock()
	if !n.Persistent && n.ExpiresAt.IsZero() && r.defaultTTL > 0 {
		n.ExpiresAt = r.clock.Now().Add(r.defaultTTL)
	}
	stored := n.Clone()
	r.store[stored.ID] = stored
	r.mu.Unlock()

	if n.Persistent {
		if hook := r.archiveHook(); hook != nil {
			hook(stored.Clone())
		}
	}

	if !n.ExpiresAt.IsZero() {
		id := stored.ID
		r.scheduler.Schedule(expiryKey(id), n.ExpiresAt, func() {
			// Already-read or already-removed notifications are fine;
			// removal is idempotent.
			r.remove(id)
		})
	}

	event := bus.Event{
		Type:         bus.EventNotification,
		AgentRole:    n.Recipient,
		EntityID:     stored.ID,
		Message:      n.Title,
		Notification: stored.Clone(),
	}
	if n.Broadcast() {
		r.bus.Publish(event)
	} else {
		r.bus.PublishToAgents(event, n.Recipient)
	}
	return true
}

// SendTemplate builds from a template and sends in one step. Build errors
// are returned; preference drops are not errors.
func (r *Router) SendTemplate(id TemplateID, recipient string, data map[string]string) (bool, error) {
	n, err := r.Build(id, recipient, data)
	if err != nil {
		return false, err
	}
	return r.Send(n), nil
}

// expiryKey names the scheduler entry for a notification's expiry.
func expiryKey(notificationID string) string {
	return "notify:expire:" + notificationID
}

// remove deletes a notification from the store and cancels its expiry
// timer. Idempotent.
func (r *Router) remove(id string) {
	r.mu.Lock()
	delete(r.store, id)
	r.mu.Unlock()
	r.scheduler.Cancel(expiryKey(id))
}

// Delete removes a notification early, cancelling any pending expiry.
func (r *Router) Delete(id string) {
	r.remove(id)
}

// Get returns a copy of the stored notification.
func (r *Router) Get(id string) (*models.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.store[id]
	if !ok {
		return nil, fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	}
	return n.Clone(), nil
}

// List returns the stored notifications addressed to the agent, including
// broadcasts, oldest first.
func (r *Router) List(agent string, unreadOnly bool) []*models.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Notification
	for _, n := range r.store {
		if n.Recipient != agent && !n.Broadcast() {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MarkRead flags a notification as seen. Persistent notifications have
// their read state re-archived.
func (r *Router) MarkRead(id string) error {
	r.mu.Lock()
	n, ok := r.store[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	}
	n.Read = true
	var snapshot *models.Notification
	if n.Persistent {
		snapshot = n.Clone()
	}
	r.mu.Unlock()

	if snapshot != nil {
		if hook := r.archiveHook(); hook != nil {
			hook(snapshot)
		}
	}
	return nil
}

// MarkAllRead flags every notification addressed to the agent as seen and
// returns how many changed.
func (r *Router) MarkAllRead(agent string) int {
	r.mu.Lock()
	changed := 0
	var snapshots []*models.Notification
	for _, n := range r.store {
		if (n.Recipient == agent || n.Broadcast()) && !n.Read {
			n.Read = true
			changed++
			if n.Persistent {
				snapshots = append(snapshots, n.Clone())
			}
		}
	}
	r.mu.Unlock()

	if hook := r.archiveHook(); hook != nil {
		for _, snapshot := range snapshots {
			hook(snapshot)
		}
	}
	return changed
}

// UpdatePreferences replaces the agent's delivery preferences.
func (r *Router) UpdatePreferences(agent string, prefs models.NotificationPreferences) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs[agent] = prefs
}

// Preferences returns the agent's preferences, defaulting to accept-all.
func (r *Router) Preferences(agent string) models.NotificationPreferences {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.prefs[agent]; ok {
		return p
	}
	return models.DefaultPreferences()
}

// ExpireAfter is a convenience for senders that want a TTL rather than an
// absolute deadline.
func (r *Router) ExpireAfter(n *models.Notification, ttl time.Duration) {
	n.ExpiresAt = r.clock.Now().Add(ttl)
}
