package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"paperbroker/internal/model"
	"paperbroker/internal/orders"

	"github.com/stretchr/testify/assert"
)

type fakeOrderSource struct {
	due []model.Order
	err error
}

func (f *fakeOrderSource) ListDue(context.Context, int) ([]model.Order, error) {
	return f.due, f.err
}

type fakeExecutor struct {
	executed []string
	rejected []string
	fail     map[string]error
}

func (f *fakeExecutor) ExecuteOrder(_ context.Context, id string) (orders.ExecutionResult, error) {
	if err, ok := f.fail[id]; ok {
		return orders.ExecutionResult{}, err
	}
	f.executed = append(f.executed, id)
	return orders.ExecutionResult{OrderID: id}, nil
}

func (f *fakeExecutor) RejectOrder(_ context.Context, id, _ string) error {
	f.rejected = append(f.rejected, id)
	return nil
}

func due(ids ...string) []model.Order {
	out := make([]model.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Order{ID: id})
	}
	return out
}

func TestExecutionTickProcessesBatch(t *testing.T) {
	exec := &fakeExecutor{}
	w := NewExecutionWorker(&fakeOrderSource{due: due("a", "b", "c")}, exec, time.Second, 50)

	w.tick(context.Background())

	assert.Equal(t, []string{"a", "b", "c"}, exec.executed)
	assert.Empty(t, exec.rejected)
}

func TestExecutionFailureDoesNotAbortBatch(t *testing.T) {
	exec := &fakeExecutor{fail: map[string]error{
		"b": errors.New("database unavailable"),
	}}
	w := NewExecutionWorker(&fakeOrderSource{due: due("a", "b", "c")}, exec, time.Second, 50)

	w.tick(context.Background())

	// b stays PENDING for the next tick; a and c still execute.
	assert.Equal(t, []string{"a", "c"}, exec.executed)
	assert.Empty(t, exec.rejected)
}

func TestExecutionUnfillableRejects(t *testing.T) {
	exec := &fakeExecutor{fail: map[string]error{
		"b": orders.ErrUnfillable,
	}}
	w := NewExecutionWorker(&fakeOrderSource{due: due("a", "b")}, exec, time.Second, 50)

	w.tick(context.Background())

	assert.Equal(t, []string{"a"}, exec.executed)
	assert.Equal(t, []string{"b"}, exec.rejected)
}

func TestExecutionLostClaimIsSkipped(t *testing.T) {
	// A second worker or a racing cancel already moved the order out of
	// PENDING; the loser backs off silently.
	exec := &fakeExecutor{fail: map[string]error{
		"a": orders.ErrOrderNotPending,
	}}
	w := NewExecutionWorker(&fakeOrderSource{due: due("a", "b")}, exec, time.Second, 50)

	w.tick(context.Background())

	assert.Equal(t, []string{"b"}, exec.executed)
	assert.Empty(t, exec.rejected)
}

func TestExecutionListErrorSkipsTick(t *testing.T) {
	exec := &fakeExecutor{}
	w := NewExecutionWorker(&fakeOrderSource{err: errors.New("boom")}, exec, time.Second, 50)

	w.tick(context.Background())

	assert.Empty(t, exec.executed)
}
