package liftover

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeItems(n int) <-chan WorkItem {
	ch := make(chan WorkItem, n)
	for i := 0; i < n; i++ {
		ch <- WorkItem{
			Seq:     i,
			Feature: simpleFeature("chr1", int64(1000+i), int64(1001+i)),
			Extra:   i,
		}
	}
	close(ch)
	return ch
}

func TestParallelMap_OrderPreservation(t *testing.T) {
	m := mapperFor(t, simpleChain)

	items := makeItems(200)
	results := m.ParallelMap(items, DefaultOptions(), 8)

	var collected []int
	err := OrderedCollect(results, func(r WorkResult) error {
		require.NoError(t, r.Err)
		collected = append(collected, r.Seq)
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, collected, 200)
	for i, seq := range collected {
		assert.Equal(t, i, seq, "result %d out of order", i)
	}
}

func TestParallelMap_SingleWorker(t *testing.T) {
	m := mapperFor(t, simpleChain)

	items := makeItems(50)
	results := m.ParallelMap(items, DefaultOptions(), 1)

	var collected []int
	err := OrderedCollect(results, func(r WorkResult) error {
		collected = append(collected, r.Seq)
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, collected, 50)
	for i, seq := range collected {
		assert.Equal(t, i, seq)
	}
}

func TestParallelMap_ExtraPreserved(t *testing.T) {
	m := mapperFor(t, simpleChain)

	items := makeItems(10)
	results := m.ParallelMap(items, DefaultOptions(), 4)

	err := OrderedCollect(results, func(r WorkResult) error {
		// Extra was set to the sequence number in makeItems
		assert.Equal(t, r.Seq, r.Extra.(int))
		return nil
	})
	require.NoError(t, err)
}

func TestParallelMap_EmptyInput(t *testing.T) {
	m := mapperFor(t, simpleChain)

	ch := make(chan WorkItem)
	close(ch)
	results := m.ParallelMap(ch, DefaultOptions(), 4)

	count := 0
	err := OrderedCollect(results, func(r WorkResult) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestParallelMap_NilFeaturePassesThrough(t *testing.T) {
	m := mapperFor(t, simpleChain)

	ch := make(chan WorkItem, 3)
	ch <- WorkItem{Seq: 0, Feature: simpleFeature("chr1", 1100, 1200), Extra: "a"}
	ch <- WorkItem{Seq: 1, Feature: nil, Extra: "header"}
	ch <- WorkItem{Seq: 2, Feature: simpleFeature("chr1", 1300, 1400), Extra: "b"}
	close(ch)
	results := m.ParallelMap(ch, DefaultOptions(), 2)

	var got []WorkResult
	err := OrderedCollect(results, func(r WorkResult) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.NotNil(t, got[0].Mapped)
	assert.Nil(t, got[1].Mapped, "passthrough item keeps its slot without mapping")
	assert.NoError(t, got[1].Err)
	assert.Equal(t, "header", got[1].Extra)
	assert.NotNil(t, got[2].Mapped)
}

func TestParallelMap_CarriesUnmappedErrors(t *testing.T) {
	m := mapperFor(t, simpleChain)

	ch := make(chan WorkItem, 2)
	ch <- WorkItem{Seq: 0, Feature: simpleFeature("chr1", 1100, 1200)}
	ch <- WorkItem{Seq: 1, Feature: simpleFeature("chr1", 8000, 9000)}
	close(ch)
	results := m.ParallelMap(ch, DefaultOptions(), 2)

	var got []WorkResult
	err := OrderedCollect(results, func(r WorkResult) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.NoError(t, got[0].Err)
	var ue *UnmappedError
	require.ErrorAs(t, got[1].Err, &ue, "mapping failures travel with the result")
	assert.Equal(t, NoOverlap, ue.Reason)
}

func TestOrderedCollect_EarlyError(t *testing.T) {
	m := mapperFor(t, simpleChain)

	items := makeItems(100)
	results := m.ParallelMap(items, DefaultOptions(), 4)

	count := 0
	err := OrderedCollect(results, func(r WorkResult) error {
		count++
		if count == 5 {
			return fmt.Errorf("stop at 5")
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 5, count)
}
