package offgate

import (
	"context"
	"errors"
	"sync"
)

// PromptOutcome is the user's choice on the install prompt.
type PromptOutcome string

const (
	OutcomeAccepted  PromptOutcome = "accepted"
	OutcomeDismissed PromptOutcome = "dismissed"
)

// ErrNoPrompt is returned when no eligibility event has been captured.
var ErrNoPrompt = errors.New("no install prompt available")

// PromptEvent is the platform's stored install-eligibility signal; Prompt
// replays it and resolves to the user's choice.
type PromptEvent interface {
	Prompt(ctx context.Context) (PromptOutcome, error)
}

// InstallPromptController captures the platform's installability signal
// (suppressing its default prompt) and replays it once on user action.
type InstallPromptController struct {
	mu      sync.Mutex
	pending PromptEvent
}

func NewInstallPromptController() *InstallPromptController {
	return &InstallPromptController{}
}

// Capture stores the eligibility event for later replay.
func (c *InstallPromptController) Capture(ev PromptEvent) {
	c.mu.Lock()
	c.pending = ev
	c.mu.Unlock()
}

// Available reports whether a prompt is staged.
func (c *InstallPromptController) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Prompt replays the stored event and resolves the user's choice. The event
// is single-use: it is discarded whatever the outcome. A prompting failure
// counts as dismissed.
func (c *InstallPromptController) Prompt(ctx context.Context) (PromptOutcome, error) {
	c.mu.Lock()
	ev := c.pending
	c.pending = nil
	c.mu.Unlock()

	if ev == nil {
		return "", ErrNoPrompt
	}
	outcome, err := ev.Prompt(ctx)
	if err != nil {
		return OutcomeDismissed, nil
	}
	return outcome, nil
}

// InstallCompleted clears any staged prompt. Installation can complete
// outside the capture/replay flow entirely.
func (c *InstallPromptController) InstallCompleted() {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
}
