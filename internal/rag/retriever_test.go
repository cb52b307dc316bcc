package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(index int, vec ...float32) Candidate {
	return Candidate{Chunk: Chunk{Index: index, Text: "chunk"}, Vector: vec}
}

func TestTopKExample(t *testing.T) {
	candidates := []Candidate{
		candidate(0, 1, 0),
		candidate(1, 0, 1),
		candidate(2, 0.7, 0.7),
	}

	results, err := TopK([]float32{1, 0}, candidates, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, 0, results[0].Chunk.Index)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, 2, results[1].Chunk.Index)
	assert.InDelta(t, 0.70710678, results[1].Score, 1e-6)
}

func TestTopKSelfSimilarityIsOne(t *testing.T) {
	vec := []float32{0.3, -1.2, 4.5, 0.01}
	results, err := TopK(vec, []Candidate{candidate(0, vec...)}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestTopKResultLength(t *testing.T) {
	candidates := []Candidate{
		candidate(0, 1, 0),
		candidate(1, 0, 1),
		candidate(2, 1, 1),
	}
	query := []float32{1, 1}

	// k 大于候选数时返回全部
	results, err := TopK(query, candidates, 10)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = TopK(query, candidates, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestTopKEmptyCandidates(t *testing.T) {
	results, err := TopK([]float32{1, 0}, nil, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTopKInvalidK(t *testing.T) {
	_, err := TopK([]float32{1}, []Candidate{candidate(0, 1)}, 0)
	assert.Error(t, err)
	_, err = TopK([]float32{1}, []Candidate{candidate(0, 1)}, -3)
	assert.Error(t, err)
}

func TestTopKZeroVectorScoresZero(t *testing.T) {
	candidates := []Candidate{
		candidate(0, 0, 0, 0),
		candidate(1, 1, 0, 0),
	}
	results, err := TopK([]float32{1, 0, 0}, candidates, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Chunk.Index)
	assert.Equal(t, 0, results[1].Chunk.Index)
	assert.Zero(t, results[1].Score)
}

func TestTopKLengthMismatch(t *testing.T) {
	candidates := []Candidate{
		candidate(0, 1, 0),
		candidate(1, 1, 0, 0),
	}
	_, err := TopK([]float32{1, 0}, candidates, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVectorLength)
}

func TestTopKOrderingAndTieBreak(t *testing.T) {
	candidates := []Candidate{
		candidate(3, 0, 1),
		candidate(1, 1, 1),
		candidate(0, 0, 1), // 与 index 3 同分，index 小者在前
		candidate(2, 1, 0),
	}
	results, err := TopK([]float32{0, 1}, candidates, 4)
	require.NoError(t, err)
	require.Len(t, results, 4)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	assert.Equal(t, 0, results[0].Chunk.Index)
	assert.Equal(t, 3, results[1].Chunk.Index)
	assert.Equal(t, 1, results[2].Chunk.Index)
	assert.Equal(t, 2, results[3].Chunk.Index)
}

func TestTopKDeterministic(t *testing.T) {
	candidates := []Candidate{
		candidate(0, 0.2, 0.8),
		candidate(1, 0.5, 0.5),
		candidate(2, 0.9, 0.1),
	}
	query := []float32{0.4, 0.6}

	first, err := TopK(query, candidates, 3)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := TopK(query, candidates, 3)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
