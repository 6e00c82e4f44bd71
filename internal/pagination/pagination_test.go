package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceDataset struct {
	items  []int
	counts int
	slices int
}

func (d *sliceDataset) Count(ctx context.Context) (int, error) {
	d.counts++
	return len(d.items), nil
}

func (d *sliceDataset) Slice(ctx context.Context, offset, limit int) ([]int, error) {
	d.slices++
	end := offset + limit
	if end > len(d.items) {
		end = len(d.items)
	}
	return d.items[offset:end], nil
}

func numbers(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestCursorPages(t *testing.T) {
	ctx := context.Background()
	data := &sliceDataset{items: numbers(250)}
	cur := NewCursor[int](data, 100, 0)

	first, err := cur.Page(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 250, first.Count)
	assert.Len(t, first.Results, 100)
	require.NotNil(t, first.Next)
	assert.Equal(t, 2, *first.Next)

	last, err := cur.Page(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, last.Results, 50)
	assert.Equal(t, 201, last.Results[0])
	assert.Nil(t, last.Next)
}

func TestCursorCountsOnce(t *testing.T) {
	ctx := context.Background()
	data := &sliceDataset{items: numbers(5)}
	cur := NewCursor[int](data, 2, 0)

	for i := 0; i < 3; i++ {
		_, err := cur.Page(ctx, 1)
		require.NoError(t, err)
	}
	_, err := cur.Page(ctx, 3)
	require.NoError(t, err)

	assert.Equal(t, 1, data.counts)
	assert.Equal(t, 4, data.slices)
}

func TestCursorEmptyDatasetHasOnePage(t *testing.T) {
	ctx := context.Background()
	cur := NewCursor[int](&sliceDataset{}, 100, 0)

	page, err := cur.Page(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Count)
	assert.Empty(t, page.Results)
	assert.NotNil(t, page.Results)
	assert.Nil(t, page.Next)

	_, err = cur.Page(ctx, 2)
	var invalid *InvalidPageError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "Page 2 does not exist!", invalid.Reason)
}

func TestCursorRejectsOutOfRange(t *testing.T) {
	ctx := context.Background()
	cur := NewCursor[int](&sliceDataset{items: numbers(3)}, 100, 0)

	_, err := cur.Page(ctx, 0)
	assert.EqualError(t, err, "Page 0 does not exist!")
	_, err = cur.Page(ctx, 5)
	assert.EqualError(t, err, "Page 5 does not exist!")
}

func TestCursorOrphans(t *testing.T) {
	ctx := context.Background()
	cur := NewCursor[int](&sliceDataset{items: numbers(11)}, 5, 1)

	pages, err := cur.NumPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pages)

	last, err := cur.Page(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, last.Results, 6)
}

func TestParsePageNumber(t *testing.T) {
	cases := []struct {
		raw     string
		want    int
		invalid bool
	}{
		{raw: ``, want: 1},
		{raw: `null`, want: 1},
		{raw: `2`, want: 2},
		{raw: `"3"`, want: 3},
		{raw: `"two"`, invalid: true},
		{raw: `1.5`, invalid: true},
		{raw: `[1]`, invalid: true},
	}
	for _, tc := range cases {
		got, err := ParsePageNumber(json.RawMessage(tc.raw))
		if tc.invalid {
			assert.EqualError(t, err, "Page number must be an integer!", tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestCacheGetOrCreateAndDrop(t *testing.T) {
	cache := NewCache()
	data := &sliceDataset{items: numbers(3)}

	first := CursorFor[int](cache, "get_rooms", data, 100)
	again := CursorFor[int](cache, "get_rooms", &sliceDataset{}, 100)
	assert.Same(t, first, again)

	CursorFor[int](cache, "get_room_messages", data, 100)
	assert.Equal(t, 2, cache.Len())

	cache.Drop("get_room_messages")
	assert.False(t, cache.Has("get_room_messages"))
	assert.True(t, cache.Has("get_rooms"))

	cache.DropAll()
	assert.Equal(t, 0, cache.Len())
}
