package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/pipevet/internal/pipeline"
)

func TestRecentsBuffer_SinceFiltersByCutoff(t *testing.T) {
	b := newRecentsBuffer(0)
	now := time.Now()

	b.add("s1", passedResult(pipeline.StageFetch, now.Add(-90*time.Minute)))
	b.add("s2", passedResult(pipeline.StageFetch, now.Add(-30*time.Minute)))
	b.add("s3", passedResult(pipeline.StageFetch, now.Add(-time.Minute)))

	got := b.since(pipeline.StageFetch, now.Add(-time.Hour))
	require.Len(t, got, 2)
	assert.Equal(t, "s2", got[0].SessionID)
	assert.Equal(t, "s3", got[1].SessionID)
}

func TestRecentsBuffer_StagesAreIndependent(t *testing.T) {
	b := newRecentsBuffer(0)
	now := time.Now()

	b.add("s1", passedResult(pipeline.StageFetch, now))
	b.add("s2", passedResult(pipeline.StageGenerate, now))

	assert.Len(t, b.since(pipeline.StageFetch, now.Add(-time.Minute)), 1)
	assert.Len(t, b.since(pipeline.StageGenerate, now.Add(-time.Minute)), 1)
	assert.Empty(t, b.since(pipeline.StagePublish, now.Add(-time.Minute)))
}

func TestRecentsBuffer_EvictsPastCapacity(t *testing.T) {
	b := newRecentsBuffer(3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		b.add(fmt.Sprintf("s%d", i), passedResult(pipeline.StageFetch, now))
	}

	got := b.since(pipeline.StageFetch, now.Add(-time.Minute))
	require.Len(t, got, 3)
	assert.Equal(t, "s2", got[0].SessionID)
	assert.Equal(t, "s4", got[2].SessionID)
}

func TestRecentsBuffer_ZeroValidatedAtUsesNow(t *testing.T) {
	b := newRecentsBuffer(0)

	b.add("s1", pipeline.StageResult{StageID: pipeline.StageFetch, Passed: true})

	got := b.since(pipeline.StageFetch, time.Now().Add(-time.Minute))
	assert.Len(t, got, 1)
}
