package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cahya-wirawan/web-rwkv/internal/tensor"
	"github.com/cahya-wirawan/web-rwkv/model"
	"github.com/cahya-wirawan/web-rwkv/state"
)

func testCheckpoint() state.Checkpoint {
	return state.Checkpoint{
		Version: model.V4,
		Shape:   tensor.NewShape(3, 10, 1, 1),
		Data:    []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	cp := testCheckpoint()
	require.NoError(t, s.Save("run-a", 0, cp))

	back, err := s.Load("run-a", 0)
	require.NoError(t, err)
	assert.Equal(t, cp, back)
}

func TestLoadMissingKeyErrors(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load("nope", 0)
	assert.Error(t, err)
}

func TestSaveIsolatedByRunAndBatch(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	cpA := testCheckpoint()
	cpB := testCheckpoint()
	cpB.Data = append([]float32(nil), cpB.Data...)
	cpB.Data[0] = 999

	require.NoError(t, s.Save("run-a", 0, cpA))
	require.NoError(t, s.Save("run-a", 1, cpB))

	backA, err := s.Load("run-a", 0)
	require.NoError(t, err)
	backB, err := s.Load("run-a", 1)
	require.NoError(t, err)

	assert.Equal(t, float32(1), backA.Data[0])
	assert.Equal(t, float32(999), backB.Data[0])
}

func TestDeleteRemovesCheckpoint(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	cp := testCheckpoint()
	require.NoError(t, s.Save("run-a", 0, cp))
	require.NoError(t, s.Delete("run-a", 0))

	_, err = s.Load("run-a", 0)
	assert.Error(t, err)
}

func TestOperationsFailAfterClose(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close()) // idempotent

	err = s.Save("run-a", 0, testCheckpoint())
	assert.Error(t, err)
}
