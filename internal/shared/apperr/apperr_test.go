package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Messages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"missing field", Validation("user_id"), "user_id is required"},
		{"invalid field", Invalid("start_date", errors.New("bad format")), "invalid start_date: bad format"},
		{"upstream with op", Upstream("aggregator.FetchAccounts", errors.New("boom")), "aggregator.FetchAccounts: boom"},
		{"store with op", Store("accounts.UpsertBatch", errors.New("conn reset")), "accounts.UpsertBatch: conn reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("x")))
	assert.Equal(t, KindUpstream, KindOf(fmt.Errorf("wrapped: %w", Upstream("op", errors.New("e")))))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestPartialSync_KeepsCause(t *testing.T) {
	cause := errors.New("rate limited")
	err := PartialSync("sync.Backfill", Upstream("aggregator.FetchTransactions", cause))

	assert.Equal(t, KindPartialSync, KindOf(err))
	assert.True(t, IsKind(err, KindUpstream))
	assert.False(t, IsKind(err, KindStore))
	assert.ErrorIs(t, err, cause)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "validation", KindValidation.String())
	assert.Equal(t, "upstream", KindUpstream.String())
	assert.Equal(t, "store", KindStore.String())
	assert.Equal(t, "partial_sync", KindPartialSync.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}
