package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusConfirmed))
	assert.True(t, StatusPending.CanTransitionTo(StatusRejected))

	// Confirmed and Rejected are terminal.
	assert.False(t, StatusConfirmed.CanTransitionTo(StatusPending))
	assert.False(t, StatusConfirmed.CanTransitionTo(StatusRejected))
	assert.False(t, StatusRejected.CanTransitionTo(StatusPending))
	assert.False(t, StatusRejected.CanTransitionTo(StatusConfirmed))

	assert.False(t, StatusPending.CanTransitionTo(StatusPending))
	assert.False(t, StatusPending.CanTransitionTo(Status("Verified")))
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusConfirmed.Valid())
	assert.True(t, StatusRejected.Valid())
	assert.False(t, Status("").Valid())
	assert.False(t, Status("Verified").Valid())
}

func TestAmountUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Amount
		wantErr bool
	}{
		{name: "json number", payload: `199`, want: 199},
		{name: "json decimal", payload: `199.50`, want: 199.5},
		{name: "numeric string", payload: `"499"`, want: 499},
		{name: "decimal string", payload: `"499.99"`, want: 499.99},
		{name: "null", payload: `null`, want: 0},
		{name: "empty string", payload: `""`, want: 0},
		{name: "garbage", payload: `"ten rupees"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Amount
			err := json.Unmarshal([]byte(tt.payload), &a)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, a)
		})
	}
}

func TestAmountString(t *testing.T) {
	assert.Equal(t, "199.00", Amount(199).String())
	assert.Equal(t, "499.99", Amount(499.99).String())
}

// The review dashboard reads these exact field names; renaming one breaks an
// external collaborator silently.
func TestClaimFieldNamesStable(t *testing.T) {
	claim := ReceiptClaim{
		ID:               "abc",
		ContributorName:  "A",
		ContributorEmail: "a@x.com",
		ContributorPhone: "+919000000000",
		Amount:           199,
		Reference:        "UTR123456789",
		Status:           StatusPending,
	}
	raw, err := json.Marshal(claim)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"contributorName", "contributorEmail", "contributorPhone", "upiRefNumber", "amount", "status", "timestamp"} {
		assert.Contains(t, fields, key)
	}
}

func TestIsConfirmation(t *testing.T) {
	assert.True(t, ClaimEvent{Before: StatusPending, After: StatusConfirmed}.IsConfirmation())
	assert.True(t, ClaimEvent{Before: StatusRejected, After: StatusConfirmed}.IsConfirmation())
	assert.False(t, ClaimEvent{Before: StatusConfirmed, After: StatusConfirmed}.IsConfirmation())
	assert.False(t, ClaimEvent{Before: StatusConfirmed, After: StatusPending}.IsConfirmation())
	assert.False(t, ClaimEvent{Before: StatusPending, After: StatusRejected}.IsConfirmation())
}
