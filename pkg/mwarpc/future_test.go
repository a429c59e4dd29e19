package mwarpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFutureCompleteIsIdempotent(t *testing.T) {
	f := NewFuture[string](0, nil)
	assert.True(t, f.Complete("ok"))
	assert.False(t, f.Complete("ok again"))
	assert.Equal(t, VerdictSuccess, f.Verdict())

	success, _, _, _ := f.Result()
	assert.Equal(t, "ok", success)
}

func TestFutureOnResolveFiresOnce(t *testing.T) {
	calls := 0
	f := NewFuture[string](0, func(*Future[string]) { calls++ })
	f.Complete("a")
	f.CompleteWithDecline()
	assert.Equal(t, 1, calls)
}

func TestFutureCompleteWithInvalidPayloadsValidatesLength(t *testing.T) {
	f := NewFuture[string](2, nil)
	assert.Panics(t, func() { f.CompleteWithInvalidPayloads([]bool{true}) })
}

func TestFutureCompleteWithInvalidPayloadsRequiresAtLeastOneFalse(t *testing.T) {
	f := NewFuture[string](2, nil)
	assert.Panics(t, func() { f.CompleteWithInvalidPayloads([]bool{true, true}) })
}

func TestFutureCompleteWithInvalidPayloadsHappyPath(t *testing.T) {
	f := NewFuture[string](2, nil)
	assert.True(t, f.CompleteWithInvalidPayloads([]bool{true, false}))
	assert.Equal(t, VerdictInvalidPayloads, f.Verdict())
	_, invalid, _, _ := f.Result()
	assert.Equal(t, []bool{true, false}, invalid.Valid)
}

func TestFutureCompleteWithNotCommittedValidatesLengths(t *testing.T) {
	f := NewFuture[string](1, nil)
	assert.Panics(t, func() {
		f.CompleteWithNotCommitted([][]byte{{1}, {2}}, []bool{false})
	})
}

func TestFutureCompleteWithNotCommittedRequiresAtLeastOneFalse(t *testing.T) {
	f := NewFuture[string](1, nil)
	assert.Panics(t, func() {
		f.CompleteWithNotCommitted([][]byte{{1}}, []bool{true})
	})
}

func TestFutureCompleteWithNotCommittedHappyPath(t *testing.T) {
	f := NewFuture[string](1, nil)
	assert.True(t, f.CompleteWithNotCommitted([][]byte{{0xAA}}, []bool{false}))
	_, _, nc, _ := f.Result()
	assert.Equal(t, [][]byte{{0xAA}}, nc.Signatures)
	assert.Equal(t, []bool{false}, nc.Committed)
}

func TestFutureDoneClosesOnResolution(t *testing.T) {
	f := NewFuture[string](0, nil)
	select {
	case <-f.Done():
		t.Fatal("future should not be done yet")
	default:
	}
	f.CompleteWithReauthorizationRequired()
	select {
	case <-f.Done():
	default:
		t.Fatal("future should be done")
	}
}
