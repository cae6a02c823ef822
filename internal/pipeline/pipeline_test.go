package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papapumpkin/comet/internal/telemetry"
)

func TestRunner_RunsInOrder(t *testing.T) {
	t.Parallel()
	var order []string
	step := func(name string) Stage {
		return Stage{Name: name, Run: func(context.Context) error {
			order = append(order, name)
			return nil
		}}
	}

	err := Runner{}.Run(context.Background(), step("switch-branch"), step("reset"), step("commit"))
	require.NoError(t, err)
	assert.Equal(t, []string{"switch-branch", "reset", "commit"}, order)
}

func TestRunner_StopsAtFirstFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	var ran []string

	err := Runner{}.Run(context.Background(),
		Stage{Name: "a", Run: func(context.Context) error { ran = append(ran, "a"); return nil }},
		Stage{Name: "b", Run: func(context.Context) error { ran = append(ran, "b"); return boom }},
		Stage{Name: "c", Run: func(context.Context) error { ran = append(ran, "c"); return nil }},
	)

	require.ErrorIs(t, err, boom)
	assert.Equal(t, "b: boom", err.Error())
	assert.Equal(t, []string{"a", "b"}, ran)
}

func TestRunner_ChecksCancellationBetweenStages(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	ranSecond := false

	err := Runner{}.Run(ctx,
		Stage{Name: "first", Run: func(context.Context) error { cancel(); return nil }},
		Stage{Name: "second", Run: func(context.Context) error { ranSecond = true; return nil }},
	)

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ranSecond)
}

func TestRunner_EmitsStageEvents(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	em, err := telemetry.NewEmitter(path)
	require.NoError(t, err)

	err = Runner{Events: em}.Run(context.Background(),
		Stage{Name: "push", Run: func(context.Context) error { return nil }})
	require.NoError(t, err)
	require.NoError(t, em.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"kind":"stage_start"`)
	assert.Contains(t, lines[1], `"kind":"stage_done"`)
	assert.Contains(t, lines[1], `"stage":"push"`)
}
