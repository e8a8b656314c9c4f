package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tasksync/internal/task"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNewPushRequest_SplitsTombstones(t *testing.T) {
	batch := []task.Task{
		{ID: "a", Title: "a", UpdatedAt: t0},
		{ID: "b", Title: "b", UpdatedAt: t0.Add(time.Second), Deleted: true},
		{ID: "c", Title: "c", UpdatedAt: t0.Add(2 * time.Second)},
	}

	req := NewPushRequest(batch)
	require.Len(t, req.Upserts, 2)
	assert.Equal(t, "a", req.Upserts[0].ID)
	assert.Equal(t, "c", req.Upserts[1].ID)
	assert.Equal(t, []DeleteRef{{ID: "b", UpdatedAt: t0.Add(time.Second)}}, req.Deletes)
	assert.Equal(t, 3, req.Len())
}

func TestPushRequest_EmptyListsEncodeAsArrays(t *testing.T) {
	data, err := json.Marshal(NewPushRequest(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"upserts":[],"deletes":[]}`, string(data))
}

func TestDeleteRef_JSON(t *testing.T) {
	data, err := json.Marshal(DeleteRef{ID: "b", UpdatedAt: t0.Add(1500 * time.Millisecond)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"b","updatedAt":"2025-01-01T00:00:01.500Z"}`, string(data))

	var back DeleteRef
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "b", back.ID)
	assert.Equal(t, t0.Add(1500*time.Millisecond), back.UpdatedAt)
}

func TestPushResponse_DecodesConflicts(t *testing.T) {
	var resp PushResponse
	require.NoError(t, json.Unmarshal([]byte(`{"success":true,"conflictedIds":["x","y"]}`), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"x", "y"}, resp.ConflictedIDs)
}

func TestTransportError(t *testing.T) {
	err := fmt.Errorf("push batch 1: %w", &TransportError{Op: "push", StatusCode: 503, Err: errors.New("unavailable")})
	assert.True(t, IsTransportError(err))
	assert.Contains(t, err.Error(), "status 503")

	rejected := &TransportError{Op: "push", Err: ErrRejected}
	assert.ErrorIs(t, rejected, ErrRejected)
	assert.Equal(t, "push: push rejected by authority", rejected.Error())

	assert.False(t, IsTransportError(errors.New("other")))
}

func TestPullPage_HasMore(t *testing.T) {
	assert.False(t, PullPage{}.HasMore())
	assert.True(t, PullPage{NextCursor: "2025-01-01T00:00:00.000Z"}.HasMore())
}
