package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrEmptySchema)

	_, err = New([]string{RiderAge, DistanceKM, RiderAge})
	assert.ErrorIs(t, err, ErrDuplicateColumn)

	s, err := New([]string{RiderAge, DistanceKM})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has(DistanceKM))
	assert.False(t, s.Has(OrderHour))
}

func TestSchema_Reindex(t *testing.T) {
	s, err := New([]string{RiderAge, RiderRating, "City_Urban", DistanceKM, "Festival_Yes"})
	require.NoError(t, err)

	aligned := s.Reindex(map[string]float64{
		DistanceKM:  12.5,
		RiderAge:    28,
		RiderRating: 4,
		PickupHour:  19,
	})

	assert.Equal(t, []float64{28, 4, 0, 12.5, 0}, aligned.Values)
	assert.Equal(t, []string{"City_Urban", "Festival_Yes"}, aligned.Defaulted)
	assert.Equal(t, []string{PickupHour}, aligned.Ignored)
}

func TestSchema_ReindexEmptyRow(t *testing.T) {
	s, err := New([]string{"a", "b", "c"})
	require.NoError(t, err)

	aligned := s.Reindex(nil)
	assert.Equal(t, []float64{0, 0, 0}, aligned.Values)
	assert.Equal(t, []string{"a", "b", "c"}, aligned.Defaulted)
	assert.Empty(t, aligned.Ignored)
}

func TestSchema_Fingerprint(t *testing.T) {
	a, _ := New([]string{"a", "b"})
	b, _ := New([]string{"a", "b"})
	c, _ := New([]string{"b", "a"})
	d, _ := New([]string{"a\x00b"})

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), d.Fingerprint())
	assert.Len(t, a.Fingerprint(), 64)
}

func TestSchema_JSON(t *testing.T) {
	s, err := New([]string{OrderHour, PickupHour, DistanceKM})
	require.NoError(t, err)

	payload, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["Order_Hour","Pickup_Hour","distance_km"]`, string(payload))

	var decoded Schema
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, s.Columns(), decoded.Columns())
	assert.Equal(t, s.Fingerprint(), decoded.Fingerprint())

	assert.Error(t, json.Unmarshal([]byte(`["a","a"]`), &decoded))
}
