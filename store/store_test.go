package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string             `json:"name"`
	Items map[string]float64 `json:"items"`
}

func TestStore_LoadMissing(t *testing.T) {
	s := New(NewMemoryDriver())

	v := doc{Name: "default"}
	found, err := s.LoadJSON(context.Background(), "nope", &v)

	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "default", v.Name)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryDriver())

	require.NoError(t, s.SaveJSON(ctx, KeyCampaignTargets, doc{Name: "x", Items: map[string]float64{"target_cpa": 5000}}))

	var got doc
	found, err := s.LoadJSON(ctx, KeyCampaignTargets, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 5000.0, got.Items["target_cpa"])
}

func TestStore_CorruptDocument(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDriver()
	require.NoError(t, d.Save(ctx, "bad", []byte("{not json")))
	s := New(d)

	var v doc
	_, err := s.LoadJSON(ctx, "bad", &v)
	assert.Error(t, err)

	v = doc{Name: "fallback"}
	s.LoadJSONOrDefault(ctx, "bad", &v)
	assert.Equal(t, "fallback", v.Name)
}

func TestStore_SaveFailure(t *testing.T) {
	d := NewMemoryDriver()
	d.FailSaves = true
	d.SaveErr = errors.New("disk full")
	s := New(d)

	err := s.SaveJSON(context.Background(), KeyPendingActions, []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, d.SaveErr)
}

func TestStore_LoadFailure(t *testing.T) {
	d := NewMemoryDriver()
	d.FailLoads = true
	d.LoadErr = errors.New("io")
	s := New(d)

	var v []string
	found, err := s.LoadJSON(context.Background(), KeyActionHistory, &v)
	assert.False(t, found)
	assert.ErrorIs(t, err, d.LoadErr)
}
