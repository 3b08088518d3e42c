package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalflow/evalflow/internal/types"
)

func testAssignment() *types.Assignment {
	dim := "dim-1"
	return &types.Assignment{
		ID:           "as-1",
		EvaluationID: "ev-1",
		DimensionID:  &dim,
		AssigneeID:   "user-1",
		AssignedBy:   "admin-1",
		Deadline:     time.Now().Add(48 * time.Hour),
	}
}

func TestConstructorsRouteToTheRightUser(t *testing.T) {
	a := testAssignment()

	created := NewAssignmentCreated(a, "admin-1")
	assert.Equal(t, EventTypeAssignmentCreated, created.Type)
	assert.Equal(t, "user-1", created.TargetUserID)
	require.NoError(t, created.Validate())

	submitted := NewAssignmentSubmittedForReview(a, "user-1")
	assert.Equal(t, "admin-1", submitted.TargetUserID)
	assert.Equal(t, "user-1", submitted.ActorID)

	rejected, err := NewAssignmentRejected(a, "admin-2", ReviewData{Comments: "fix X", ReviewedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, "user-1", rejected.TargetUserID)
	data, err := rejected.GetReviewData()
	require.NoError(t, err)
	assert.Equal(t, "fix X", data.Comments)

	reassigned, err := NewAssignmentReassigned(a, "admin-1", ReassignData{PreviousAssigneeID: "user-0", Reason: "vacaciones"})
	require.NoError(t, err)
	rdata, err := reassigned.GetReassignData()
	require.NoError(t, err)
	assert.Equal(t, "user-0", rdata.PreviousAssigneeID)
}

func TestNotificationValidate(t *testing.T) {
	n := NewAssignmentCreated(testAssignment(), "admin-1")
	n.TargetUserID = ""
	assert.Error(t, n.Validate())

	n = NewAssignmentCreated(testAssignment(), "admin-1")
	n.Type = "Unknown"
	assert.Error(t, n.Validate())
}

type failingSink struct{ calls atomic.Int32 }

func (s *failingSink) Name() string { return "failing" }
func (s *failingSink) Deliver(context.Context, *Notification) error {
	s.calls.Add(1)
	return errors.New("unavailable")
}

func TestDispatcherDeliversToAllSinks(t *testing.T) {
	rec := &Recorder{}
	bad := &failingSink{}
	d := NewDispatcher(&DispatcherConfig{BufferSize: 8, Sinks: []Sink{rec, bad}})

	a := testAssignment()
	d.Publish(NewAssignmentCreated(a, "admin-1"))
	d.Publish(NewAssignmentSubmittedForReview(a, "user-1"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	assert.Len(t, rec.Notifications(), 2)
	assert.Len(t, rec.OfType(EventTypeAssignmentCreated), 1)
	assert.Equal(t, int32(2), bad.calls.Load())
	assert.Equal(t, int64(2), d.Stats().Failed)
}

func TestDispatcherDropsAfterClose(t *testing.T) {
	d := NewDispatcher(&DispatcherConfig{BufferSize: 1})
	require.NoError(t, d.Close(context.Background()))

	d.Publish(NewAssignmentCreated(testAssignment(), "admin-1"))
	assert.Equal(t, int64(1), d.Stats().Dropped)
}

func TestWebhookSink(t *testing.T) {
	var got Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AssignmentCreated", r.Header.Get("X-Evalflow-Event"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, time.Second)
	n := NewAssignmentCreated(testAssignment(), "admin-1")
	require.NoError(t, sink.Deliver(context.Background(), n))
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, "as-1", got.AssignmentID)
}

func TestWebhookSinkErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSink(srv.URL, time.Second).Deliver(context.Background(), NewAssignmentCreated(testAssignment(), "admin-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookSinkRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, time.Second).WithRateLimit(0.001, 1)
	require.NotNil(t, sink.Limiter)
	require.NoError(t, sink.Deliver(context.Background(), NewAssignmentCreated(testAssignment(), "admin-1")))

	// The single token is spent; the next delivery cannot get one before the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := sink.Deliver(ctx, NewAssignmentCreated(testAssignment(), "admin-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, int32(1), calls.Load())

	assert.Nil(t, NewWebhookSink(srv.URL, time.Second).WithRateLimit(0, 5).Limiter)
}
