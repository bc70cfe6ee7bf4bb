package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tether/internal/ir"
	"github.com/roach88/tether/internal/queryir"
)

func TestRequestSettlesOnce(t *testing.T) {
	r := NewRequest(ir.Transform{Seq: 1})
	first := errors.New("rejected")

	r.Settle(first)
	r.Settle(nil)

	assert.Equal(t, first, r.Err())
	assert.Equal(t, first, r.Wait(context.Background()))
	assert.Equal(t, int64(1), r.Transform().Seq)
}

func TestRequestCallbacksRunBeforeDone(t *testing.T) {
	r := NewRequest(ir.Transform{})
	var order []string

	r.OnSettle(func(err error) {
		select {
		case <-r.Done():
			order = append(order, "done-already-closed")
		default:
			order = append(order, "callback")
		}
	})

	r.Settle(nil)
	<-r.Done()
	assert.Equal(t, []string{"callback"}, order)
}

func TestRequestOnSettleAfterSettlementRunsImmediately(t *testing.T) {
	r := Settled(errors.New("boom"))

	var got error
	r.OnSettle(func(err error) { got = err })

	assert.EqualError(t, got, "boom")
}

func TestRequestWaitHonorsContext(t *testing.T) {
	r := NewRequest(ir.Transform{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := r.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoError(t, r.Err(), "pending request has no error")
}

func TestSubscriptionUnsubscribeIdempotent(t *testing.T) {
	releases := 0
	sub := NewSubscription(queryir.FindRecords{Type: "planet"}, []string{"planet"}, func() { releases++ })

	calls := 0
	sub.OnChange(func() { calls++ })
	sub.Notify()

	sub.Unsubscribe()
	sub.Unsubscribe()
	sub.Notify()
	sub.OnChange(func() { calls += 100 })
	sub.Notify()

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, releases)
	assert.True(t, sub.Closed())
	assert.True(t, sub.Watches("planet"))
	assert.False(t, sub.Watches("moon"))
}
