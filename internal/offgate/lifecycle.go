package offgate

import (
	"log"
	"sync"
)

// UpdateState is the foreground view of the worker lifecycle. Only the
// presence of a staged new version is surfaced.
type UpdateState int

const (
	StateNoUpdate UpdateState = iota
	StateUpdateAvailable
	StateActivating
)

func (s UpdateState) String() string {
	switch s {
	case StateUpdateAvailable:
		return "update-available"
	case StateActivating:
		return "activating"
	}
	return "no-update"
}

// LifecycleEvent is a synthetic transition input. The hosting runtime drives
// these externally; the controller only observes and reacts, so tests feed
// events directly.
type LifecycleEvent int

const (
	// EventWaitingDetected fires when a staged (installed-but-waiting)
	// version is already present at startup.
	EventWaitingDetected LifecycleEvent = iota
	// EventInstalled fires when a version finishes installing. It only
	// signals an update when an active version is already in control;
	// otherwise it is a first install and is ignored.
	EventInstalled
	// EventConfirm is the user accepting the update.
	EventConfirm
	// EventControllerChanged fires when the new version takes control.
	EventControllerChanged
)

// UpdateController is the update lifecycle state machine:
// no-update → update-available → activating → (reload).
//
// There is deliberately no timeout out of update-available: an unconfirmed
// update stays staged forever rather than forcing a reload under the user.
type UpdateController struct {
	mu         sync.Mutex
	state      UpdateState
	controlled bool
	reloaded   bool

	skipWaiting func()
	reload      func()
	notify      func()
}

// NewUpdateController wires the controller's effects: skipWaiting tells the
// staged version to activate, reload restarts the page (called at most
// once), notify announces availability (NEW_VERSION broadcast). Any of them
// may be nil.
func NewUpdateController(skipWaiting, reload, notify func()) *UpdateController {
	return &UpdateController{
		skipWaiting: skipWaiting,
		reload:      reload,
		notify:      notify,
	}
}

// SetControlled records whether an active version currently controls the
// page. EventInstalled is only an update when it does.
func (c *UpdateController) SetControlled(controlled bool) {
	c.mu.Lock()
	c.controlled = controlled
	c.mu.Unlock()
}

func (c *UpdateController) State() UpdateState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dispatch applies one event. Unexpected event/state pairs are no-ops.
func (c *UpdateController) Dispatch(ev LifecycleEvent) {
	c.mu.Lock()
	var effect func()
	switch ev {
	case EventWaitingDetected:
		if c.state == StateNoUpdate {
			c.state = StateUpdateAvailable
			effect = c.notify
		}
	case EventInstalled:
		if c.state == StateNoUpdate && c.controlled {
			c.state = StateUpdateAvailable
			effect = c.notify
		}
	case EventConfirm:
		if c.state == StateUpdateAvailable {
			c.state = StateActivating
			effect = c.skipWaiting
		}
	case EventControllerChanged:
		// Guard: the hand-off signal can fire more than once; reload
		// exactly once.
		if c.state == StateActivating && !c.reloaded {
			c.reloaded = true
			c.state = StateNoUpdate
			effect = c.reload
		}
	}
	state := c.state
	c.mu.Unlock()

	if effect != nil {
		log.Printf("lifecycle: %s", state)
		effect()
	}
}
