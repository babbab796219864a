package clients

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorPager_TerminatesOnHasMoreFalse(t *testing.T) {
	pages := map[string]string{
		"":    `{"tickets":[{"id":1},{"id":2}],"meta":{"has_more":true,"after_cursor":"aaa"}}`,
		"aaa": `{"tickets":[{"id":3}],"meta":{"has_more":false,"after_cursor":null}}`,
	}
	var requested []string

	pager := NewCursorPager(CursorConfig{
		Fetch: func(_ context.Context, params url.Values) (json.RawMessage, error) {
			cursor := params.Get("page[after]")
			requested = append(requested, cursor)
			return json.RawMessage(pages[cursor]), nil
		},
		DataKey:       "tickets",
		CursorParam:   "page[after]",
		NextCursorKey: "meta.after_cursor",
		HasMoreKey:    "meta.has_more",
		PageSize:      2,
		SizeParam:     "page[size]",
	})

	items, more, err := pager.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.True(t, more)

	items, more, err = pager.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.False(t, more)

	// exhausted pager keeps returning empty without fetching
	items, more, err = pager.Next(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.False(t, more)
	assert.Equal(t, []string{"", "aaa"}, requested)
}

func TestCursorPager_TerminatesOnNullCursor(t *testing.T) {
	pager := NewCursorPager(CursorConfig{
		Fetch: func(_ context.Context, _ url.Values) (json.RawMessage, error) {
			return json.RawMessage(`{"data":[{"id":1}],"next":null}`), nil
		},
		DataKey:       "data",
		CursorParam:   "cursor",
		NextCursorKey: "next",
	})

	items, more, err := pager.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.False(t, more)
}

func TestCursorPager_Reset(t *testing.T) {
	calls := 0
	pager := NewCursorPager(CursorConfig{
		Fetch: func(_ context.Context, _ url.Values) (json.RawMessage, error) {
			calls++
			return json.RawMessage(`{"data":[],"next":null}`), nil
		},
		DataKey:       "data",
		CursorParam:   "cursor",
		NextCursorKey: "next",
	})

	_, _, err := pager.Next(context.Background())
	require.NoError(t, err)
	pager.Reset()
	_, _, err = pager.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestOffsetPager_TerminatesOnShortPage(t *testing.T) {
	pageSize := 2
	records := []string{`{"id":1}`, `{"id":2}`, `{"id":3}`}

	pager := NewOffsetPager(OffsetConfig{
		Fetch: func(_ context.Context, params url.Values) (json.RawMessage, error) {
			page := params.Get("page")
			start := 0
			if page == "2" {
				start = pageSize
			}
			end := start + pageSize
			if end > len(records) {
				end = len(records)
			}
			body := "["
			for i, rec := range records[start:end] {
				if i > 0 {
					body += ","
				}
				body += rec
			}
			return json.RawMessage(body + "]"), nil
		},
		PageParam: "page",
		SizeParam: "per_page",
		PageSize:  pageSize,
	})

	total := 0
	err := Each(context.Background(), pager, func(_ json.RawMessage) error {
		total++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestOffsetPager_TerminatesOnTotalCount(t *testing.T) {
	// full final page: the total count is the only termination signal
	pager := NewOffsetPager(OffsetConfig{
		Fetch: func(_ context.Context, _ url.Values) (json.RawMessage, error) {
			return json.RawMessage(`{"results":[{"id":1},{"id":2}],"total":2}`), nil
		},
		DataKey:       "results",
		PageParam:     "page",
		PageSize:      2,
		TotalCountKey: "total",
	})

	items, more, err := pager.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.False(t, more)
}

func TestScrollPager_TerminatesWhenScrollParamAbsent(t *testing.T) {
	pages := map[string]string{
		"":   `{"conversations":[{"id":"a"}],"scroll_param":"s1"}`,
		"s1": `{"conversations":[{"id":"b"}]}`,
	}
	pager := NewScrollPager(ScrollConfig{
		Fetch: func(_ context.Context, params url.Values) (json.RawMessage, error) {
			return json.RawMessage(pages[params.Get("scroll_param")]), nil
		},
		DataKey: "conversations",
	})

	items, more, err := pager.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.True(t, more)

	items, more, err = pager.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.False(t, more)
}

func TestEach_StopsOnCallbackError(t *testing.T) {
	pager := NewScrollPager(ScrollConfig{
		Fetch: func(_ context.Context, _ url.Values) (json.RawMessage, error) {
			return json.RawMessage(`{"data":[{"id":"a"},{"id":"b"}],"scroll_param":"next"}`), nil
		},
		DataKey: "data",
	})

	seen := 0
	err := Each(context.Background(), pager, func(_ json.RawMessage) error {
		seen++
		return fmt.Errorf("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, seen)
}

func TestEach_MissingDataKeyFails(t *testing.T) {
	pager := NewScrollPager(ScrollConfig{
		Fetch: func(_ context.Context, _ url.Values) (json.RawMessage, error) {
			return json.RawMessage(`{"unexpected":[]}`), nil
		},
		DataKey: "data",
	})

	err := Each(context.Background(), pager, func(_ json.RawMessage) error { return nil })
	assert.Error(t, err)
}
