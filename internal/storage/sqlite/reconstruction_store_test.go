package sqlite

import (
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/sfm/internal/sfm"
	"github.com/banshee-data/sfm/internal/timeutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func smallReconstruction(n int) *sfm.Reconstruction {
	r := sfm.NewReconstruction()
	var ids []sfm.ViewID
	for i := 0; i < n; i++ {
		id := r.AddView(string(rune('a'+i)) + ".jpg")
		r.View(id).Estimated = true
		r.View(id).Camera.Pose.Position = r3.Vec{X: float64(i)}
		ids = append(ids, id)
	}
	tid := r.AddTrack([]sfm.Observation{
		{View: ids[0], Feature: sfm.Feature{X: 10, Y: 20}},
		{View: ids[1], Feature: sfm.Feature{X: 11, Y: 21}},
	})
	r.Track(tid).Estimated = true
	r.Track(tid).Point = r3.Vec{X: 0.5, Y: 1, Z: 5}
	return r
}

func newTestReconstructionStore(t *testing.T) *ReconstructionStore {
	t.Helper()
	s := NewReconstructionStore(newTestDB(t).DB)
	s.SetClock(timeutil.NewSteppingClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second))
	return s
}

func TestReconstructionStoreSaveAndLoad(t *testing.T) {
	s := newTestReconstructionStore(t)

	runID, err := s.CreateRun("synthetic")
	require.NoError(t, err)

	first := smallReconstruction(3)
	second := smallReconstruction(2)
	id1, err := s.Save(runID, 0, first)
	require.NoError(t, err)
	_, err = s.Save(runID, 1, second)
	require.NoError(t, err)

	got, err := s.Load(id1)
	require.NoError(t, err)
	if diff := cmp.Diff(first.Record(), got.Record()); diff != "" {
		t.Errorf("loaded reconstruction mismatch (-want +got):\n%s", diff)
	}

	list, err := s.ListReconstructions(runID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 0, list[0].Index)
	assert.Equal(t, 3, list[0].NumViews)
	assert.Equal(t, 1, list[1].Index)
	assert.Equal(t, 2, list[1].NumViews)
	assert.Equal(t, 1, list[1].NumTracks)

	_, err = s.Save(runID, 1, second)
	assert.Error(t, err, "run index is unique within a run")
}

func TestReconstructionStoreRuns(t *testing.T) {
	s := newTestReconstructionStore(t)

	older, err := s.CreateRun("first")
	require.NoError(t, err)
	newer, err := s.CreateRun("")
	require.NoError(t, err)
	_, err = s.Save(older, 0, smallReconstruction(2))
	require.NoError(t, err)

	runs, err := s.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer, runs[0].RunID)
	assert.Zero(t, runs[0].NumReconstructions)
	assert.Equal(t, older, runs[1].RunID)
	assert.Equal(t, "first", runs[1].Notes)
	assert.Equal(t, 1, runs[1].NumReconstructions)

	require.NoError(t, s.DeleteRun(older))
	_, err = s.ListReconstructions(older)
	assert.True(t, errors.Is(err, ErrRunNotFound))
	assert.True(t, errors.Is(s.DeleteRun(older), ErrRunNotFound))
}

func TestReconstructionStoreNotFound(t *testing.T) {
	s := newTestReconstructionStore(t)

	_, err := s.Load("nope")
	assert.True(t, errors.Is(err, ErrReconstructionNotFound))
	_, err = s.ListReconstructions("nope")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}
