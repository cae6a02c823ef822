package publish

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanOut_AbortOnFirstCancelsSiblings(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	var canceled atomic.Int32

	err := fanOut(context.Background(), JoinAbortOnFirst, 4, func(ctx context.Context, i int) error {
		if i == 0 {
			return boom
		}
		<-ctx.Done()
		canceled.Add(1)
		return ctx.Err()
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(3), canceled.Load())
}

func TestFanOut_CollectAllJoinsEveryFailure(t *testing.T) {
	t.Parallel()
	var ran atomic.Int32

	err := fanOut(context.Background(), JoinCollectAll, 5, func(_ context.Context, i int) error {
		ran.Add(1)
		if i%2 == 1 {
			return fmt.Errorf("job %d failed", i)
		}
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, int32(5), ran.Load())
	assert.Contains(t, err.Error(), "job 1 failed")
	assert.Contains(t, err.Error(), "job 3 failed")
}

func TestFanOut_Empty(t *testing.T) {
	t.Parallel()
	assert.NoError(t, fanOut(context.Background(), JoinAbortOnFirst, 0, nil))
	assert.NoError(t, fanOut(context.Background(), JoinCollectAll, 0, nil))
}

func TestJoinPolicy_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "abort-on-first", JoinAbortOnFirst.String())
	assert.Equal(t, "collect-all", JoinCollectAll.String())
}
