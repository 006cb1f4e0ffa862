package query_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/sensordash/internal/query"
	"github.com/kiranshivaraju/sensordash/internal/telemetry"
	"github.com/kiranshivaraju/sensordash/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore keeps readings per tenant and class in insertion order.
type memStore struct {
	rows   map[uuid.UUID]map[models.SensorClass][]models.Reading
	err    error
	lastN  int
	nilOut bool
}

func (m *memStore) add(tenantID uuid.UUID, class models.SensorClass, values ...float64) {
	if m.rows == nil {
		m.rows = map[uuid.UUID]map[models.SensorClass][]models.Reading{}
	}
	if m.rows[tenantID] == nil {
		m.rows[tenantID] = map[models.SensorClass][]models.Reading{}
	}
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for _, v := range values {
		n := len(m.rows[tenantID][class])
		m.rows[tenantID][class] = append(m.rows[tenantID][class], models.Reading{
			ID: int64(n + 1), TenantID: tenantID, SensorClass: class, Value: v,
			RecordedAt: base.Add(time.Duration(n) * time.Second),
		})
	}
}

func (m *memStore) AppendReading(_ context.Context, _ *models.Reading) (int64, error) {
	return 0, errors.New("not used")
}

func (m *memStore) LatestReadings(_ context.Context, tenantID uuid.UUID, class models.SensorClass, n int) ([]models.Reading, error) {
	m.lastN = n
	if m.err != nil {
		return nil, m.err
	}
	if m.nilOut {
		return nil, nil
	}
	src := m.rows[tenantID][class]
	out := []models.Reading{}
	for i := len(src) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, src[i])
	}
	return out, nil
}

func (m *memStore) AllReadings(_ context.Context, tenantID uuid.UUID, class models.SensorClass) ([]models.Reading, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.nilOut {
		return nil, nil
	}
	return append([]models.Reading{}, m.rows[tenantID][class]...), nil
}

func values(rows []models.Reading) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Value
	}
	return out
}

func TestQuery_LatestNewestFirst(t *testing.T) {
	st := &memStore{}
	tenantID := uuid.New()
	st.add(tenantID, models.SensorVibration, 10, 20, 30, 40)
	e := query.NewEngine(st, nil, time.Second)

	rows, err := e.Query(context.Background(), tenantID, models.SensorVibration, query.Latest(3))
	require.NoError(t, err)
	assert.Equal(t, []float64{40, 30, 20}, values(rows))
	for i := 1; i < len(rows); i++ {
		assert.True(t, rows[i-1].RecordedAt.After(rows[i].RecordedAt))
	}
}

func TestQuery_AllOldestFirst(t *testing.T) {
	st := &memStore{}
	tenantID := uuid.New()
	st.add(tenantID, models.SensorDoor, 0, 1, 0)
	e := query.NewEngine(st, nil, time.Second)

	rows, err := e.Query(context.Background(), tenantID, models.SensorDoor, query.All())
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0}, values(rows))
}

func TestQuery_DoorSequenceScenario(t *testing.T) {
	st := &memStore{}
	tenantID := uuid.New()
	st.add(tenantID, models.SensorDoor, 1, 0)
	e := query.NewEngine(st, nil, time.Second)

	rows, err := e.Query(context.Background(), tenantID, models.SensorDoor, query.Latest(2))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1}, values(rows))
	assert.Equal(t, []float64{1, 0}, values(query.Chronological(rows)))
}

func TestQuery_TenantIsolation(t *testing.T) {
	st := &memStore{}
	a, b := uuid.New(), uuid.New()
	st.add(a, models.SensorVibration, 99)
	e := query.NewEngine(st, nil, time.Second)

	rows, err := e.Query(context.Background(), b, models.SensorVibration, query.All())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestQuery_EmptyIsNonNil(t *testing.T) {
	st := &memStore{nilOut: true}
	e := query.NewEngine(st, nil, time.Second)

	for _, w := range []query.Window{query.Latest(5), query.All()} {
		rows, err := e.Query(context.Background(), uuid.New(), models.SensorDoor, w)
		require.NoError(t, err)
		assert.NotNil(t, rows)
		assert.Empty(t, rows)
	}
}

func TestQuery_StorageError(t *testing.T) {
	e := query.NewEngine(&memStore{err: errors.New("deadline exceeded")}, nil, time.Second)

	_, err := e.Query(context.Background(), uuid.New(), models.SensorDoor, query.Latest(1))
	assert.ErrorIs(t, err, telemetry.ErrStorage)
}

func TestQuery_UnknownClass(t *testing.T) {
	e := query.NewEngine(&memStore{}, nil, time.Second)

	_, err := e.Query(context.Background(), uuid.New(), models.SensorClass("co2"), query.All())
	assert.ErrorIs(t, err, telemetry.ErrValidation)
}

func TestQuery_ZeroWindowUsesDefault(t *testing.T) {
	st := &memStore{}
	e := query.NewEngine(st, nil, time.Second)

	_, err := e.Query(context.Background(), uuid.New(), models.SensorDoor, query.Window{})
	require.NoError(t, err)
	assert.Equal(t, query.DefaultLatestN, st.lastN)
}

func TestLatest_Clamps(t *testing.T) {
	assert.Equal(t, 1, query.Latest(0).N())
	assert.Equal(t, 1, query.Latest(-4).N())
	assert.Equal(t, query.MaxLatestN, query.Latest(10000).N())
	assert.Equal(t, 7, query.Latest(7).N())
}

func TestWindow_Order(t *testing.T) {
	assert.Equal(t, query.NewestFirst, query.Latest(3).Order())
	assert.Equal(t, query.OldestFirst, query.All().Order())
	assert.Equal(t, "latest", query.Latest(3).String())
	assert.Equal(t, "all", query.All().String())
}

func TestChronological_DoesNotMutateInput(t *testing.T) {
	in := []models.Reading{{Value: 3}, {Value: 2}, {Value: 1}}
	out := query.Chronological(in)

	assert.Equal(t, []float64{1, 2, 3}, values(out))
	assert.Equal(t, []float64{3, 2, 1}, values(in))
	assert.Empty(t, query.Chronological(nil))
}
