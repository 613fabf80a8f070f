package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateAmbientFiresAtFrequency(t *testing.T) {
	store := newTestStore(t)
	ev := newTriggerEvaluator(store, discardLogger())
	ctx := context.Background()

	// Default frequency is five messages per cycle.
	for i := 1; i <= 4; i++ {
		fire, err := ev.EvaluateAmbient(ctx, -200)
		require.NoError(t, err)
		assert.False(t, fire, "message %d should not trigger", i)
	}

	fire, err := ev.EvaluateAmbient(ctx, -200)
	require.NoError(t, err)
	assert.True(t, fire, "fifth message should trigger")

	// The counter resets on a hit, so the next cycle needs five more.
	for i := 1; i <= 4; i++ {
		fire, err := ev.EvaluateAmbient(ctx, -200)
		require.NoError(t, err)
		assert.False(t, fire)
	}
	fire, err = ev.EvaluateAmbient(ctx, -200)
	require.NoError(t, err)
	assert.True(t, fire)
}

func TestEvaluateAmbientHonoursAdjustedFrequency(t *testing.T) {
	store := newTestStore(t)
	ev := newTriggerEvaluator(store, discardLogger())
	ctx := context.Background()

	require.NoError(t, store.SetReplyFrequency(ctx, -200, 2))

	fire, err := ev.EvaluateAmbient(ctx, -200)
	require.NoError(t, err)
	assert.False(t, fire)

	fire, err = ev.EvaluateAmbient(ctx, -200)
	require.NoError(t, err)
	assert.True(t, fire)
}

func TestNoteDirectReplyResetsCycle(t *testing.T) {
	store := newTestStore(t)
	ev := newTriggerEvaluator(store, discardLogger())
	ctx := context.Background()

	for range [4]struct{}{} {
		_, err := ev.EvaluateAmbient(ctx, -200)
		require.NoError(t, err)
	}

	ev.NoteDirectReply(ctx, -200)

	// The pending four messages were wiped, so a full cycle runs again.
	for i := 1; i <= 4; i++ {
		fire, err := ev.EvaluateAmbient(ctx, -200)
		require.NoError(t, err)
		assert.False(t, fire, "message %d after reset should not trigger", i)
	}
	fire, err := ev.EvaluateAmbient(ctx, -200)
	require.NoError(t, err)
	assert.True(t, fire)
}
