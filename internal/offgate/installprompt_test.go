package offgate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePrompt struct {
	outcome PromptOutcome
	err     error
	calls   int
}

func (f *fakePrompt) Prompt(context.Context) (PromptOutcome, error) {
	f.calls++
	return f.outcome, f.err
}

func TestInstallPromptAccepted(t *testing.T) {
	c := NewInstallPromptController()
	ev := &fakePrompt{outcome: OutcomeAccepted}

	c.Capture(ev)
	require.True(t, c.Available())

	outcome, err := c.Prompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, outcome)
	assert.Equal(t, 1, ev.calls)
}

func TestInstallPromptIsSingleUse(t *testing.T) {
	c := NewInstallPromptController()
	c.Capture(&fakePrompt{outcome: OutcomeDismissed})

	outcome, err := c.Prompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDismissed, outcome)
	assert.False(t, c.Available())

	_, err = c.Prompt(context.Background())
	assert.ErrorIs(t, err, ErrNoPrompt)
}

func TestInstallPromptFailureCountsAsDismissed(t *testing.T) {
	c := NewInstallPromptController()
	c.Capture(&fakePrompt{err: errors.New("platform refused")})

	outcome, err := c.Prompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDismissed, outcome)
}

func TestInstallCompletedClearsStagedPrompt(t *testing.T) {
	c := NewInstallPromptController()
	c.Capture(&fakePrompt{outcome: OutcomeAccepted})

	// The install can land outside the capture/replay flow entirely.
	c.InstallCompleted()
	assert.False(t, c.Available())
	_, err := c.Prompt(context.Background())
	assert.ErrorIs(t, err, ErrNoPrompt)
}

func TestInstallPromptRecaptureReplacesEvent(t *testing.T) {
	c := NewInstallPromptController()
	first := &fakePrompt{outcome: OutcomeDismissed}
	second := &fakePrompt{outcome: OutcomeAccepted}

	c.Capture(first)
	c.Capture(second)

	outcome, err := c.Prompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, outcome)
	assert.Zero(t, first.calls)
}
