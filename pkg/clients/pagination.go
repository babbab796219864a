package clients

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/discordwell/ticketbridge/pkg/errors"
)

// FetchFunc requests one page from a source API. The pager owns the query
// parameters; the adapter supplies path and decoding.
type FetchFunc func(ctx context.Context, params url.Values) (json.RawMessage, error)

// PageIterator is a lazy, restartable sequence of pages. The consumer pulls
// pages instead of being pushed into a callback, so cancellation is just
// "stop calling Next".
type PageIterator interface {
	// Next returns the next page of items. more is false once the source's
	// end-of-stream signal has been observed; afterwards Next returns
	// (nil, false, nil).
	Next(ctx context.Context) (items []json.RawMessage, more bool, err error)

	// Reset rewinds the iterator to the first page.
	Reset()
}

// Each drains an iterator, invoking fn for every item. It stops on the first
// error from the iterator or from fn.
func Each(ctx context.Context, it PageIterator, fn func(item json.RawMessage) error) error {
	for {
		items, more, err := it.Next(ctx)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := fn(item); err != nil {
				return err
			}
		}
		if !more {
			return nil
		}
	}
}

// envelopeField extracts a (possibly dotted) key from a JSON object, e.g.
// "meta.after_cursor". Missing keys return an empty RawMessage.
func envelopeField(body json.RawMessage, key string) json.RawMessage {
	current := body
	for _, part := range strings.Split(key, ".") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(current, &obj); err != nil {
			return nil
		}
		current = obj[part]
		if current == nil {
			return nil
		}
	}
	return current
}

// envelopeItems extracts the page's item array under dataKey.
func envelopeItems(body json.RawMessage, dataKey string) ([]json.RawMessage, error) {
	raw := envelopeField(body, dataKey)
	if raw == nil {
		return nil, errors.Newf(errors.ErrorTypeData, "response missing data key %q", dataKey)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "response data key is not an array")
	}
	return items, nil
}

// envelopeString decodes a string field, tolerating absence and null.
func envelopeString(body json.RawMessage, key string) string {
	raw := envelopeField(body, key)
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// CursorConfig configures cursor-based pagination: the server returns an
// explicit end-of-stream flag or a null cursor.
type CursorConfig struct {
	Fetch FetchFunc
	// DataKey is the envelope key holding the item array
	DataKey string
	// CursorParam is the query parameter carrying the cursor
	CursorParam string
	// NextCursorKey locates the next cursor in the envelope (dotted path)
	NextCursorKey string
	// HasMoreKey optionally locates an explicit end-of-stream flag
	HasMoreKey string
	// PageSize and SizeParam request a page size when set
	PageSize  int
	SizeParam string
	// Params are extra query parameters sent on every page
	Params url.Values
}

type cursorPager struct {
	cfg    CursorConfig
	cursor string
	done   bool
}

// NewCursorPager creates a cursor-based page iterator.
func NewCursorPager(cfg CursorConfig) PageIterator {
	return &cursorPager{cfg: cfg}
}

func (p *cursorPager) Next(ctx context.Context) ([]json.RawMessage, bool, error) {
	if p.done {
		return nil, false, nil
	}

	params := cloneParams(p.cfg.Params)
	if p.cfg.PageSize > 0 && p.cfg.SizeParam != "" {
		params.Set(p.cfg.SizeParam, strconv.Itoa(p.cfg.PageSize))
	}
	if p.cursor != "" {
		params.Set(p.cfg.CursorParam, p.cursor)
	}

	body, err := p.cfg.Fetch(ctx, params)
	if err != nil {
		return nil, false, err
	}

	items, err := envelopeItems(body, p.cfg.DataKey)
	if err != nil {
		return nil, false, err
	}

	next := envelopeString(body, p.cfg.NextCursorKey)
	if p.cfg.HasMoreKey != "" {
		var hasMore bool
		if raw := envelopeField(body, p.cfg.HasMoreKey); raw != nil {
			_ = json.Unmarshal(raw, &hasMore)
		}
		if !hasMore {
			next = ""
		}
	}

	if next == "" {
		p.done = true
		return items, false, nil
	}

	p.cursor = next
	return items, true, nil
}

func (p *cursorPager) Reset() {
	p.cursor = ""
	p.done = false
}

// OffsetConfig configures offset-based pagination: the offset advances by
// page size after each page. Termination is whichever signal the source
// provides: a short page, or a server-reported total count.
type OffsetConfig struct {
	Fetch FetchFunc
	// DataKey is the envelope key holding the item array; empty means the
	// response body itself is the array
	DataKey string
	// PageParam names the page-number parameter (1-based); when empty,
	// OffsetParam carries a raw item offset instead
	PageParam   string
	OffsetParam string
	SizeParam   string
	PageSize    int
	// TotalCountKey optionally locates a server-reported total
	TotalCountKey string
	Params        url.Values
}

type offsetPager struct {
	cfg     OffsetConfig
	page    int
	offset  int
	fetched int
	done    bool
}

// NewOffsetPager creates an offset-based page iterator.
func NewOffsetPager(cfg OffsetConfig) PageIterator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &offsetPager{cfg: cfg, page: 1}
}

func (p *offsetPager) Next(ctx context.Context) ([]json.RawMessage, bool, error) {
	if p.done {
		return nil, false, nil
	}

	params := cloneParams(p.cfg.Params)
	if p.cfg.SizeParam != "" {
		params.Set(p.cfg.SizeParam, strconv.Itoa(p.cfg.PageSize))
	}
	if p.cfg.PageParam != "" {
		params.Set(p.cfg.PageParam, strconv.Itoa(p.page))
	} else if p.cfg.OffsetParam != "" {
		params.Set(p.cfg.OffsetParam, strconv.Itoa(p.offset))
	}

	body, err := p.cfg.Fetch(ctx, params)
	if err != nil {
		return nil, false, err
	}

	var items []json.RawMessage
	if p.cfg.DataKey == "" {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, false, errors.Wrap(err, errors.ErrorTypeData, "response body is not an array")
		}
	} else {
		items, err = envelopeItems(body, p.cfg.DataKey)
		if err != nil {
			return nil, false, err
		}
	}

	p.page++
	p.offset += p.cfg.PageSize
	p.fetched += len(items)

	if len(items) < p.cfg.PageSize {
		p.done = true
		return items, false, nil
	}

	if p.cfg.TotalCountKey != "" {
		if raw := envelopeField(body, p.cfg.TotalCountKey); raw != nil {
			var total int
			if err := json.Unmarshal(raw, &total); err == nil && p.fetched >= total {
				p.done = true
				return items, false, nil
			}
		}
	}

	return items, true, nil
}

func (p *offsetPager) Reset() {
	p.page = 1
	p.offset = 0
	p.fetched = 0
	p.done = false
}

// ScrollConfig configures scroll-based pagination: the server returns an
// opaque scroll_param; termination when it comes back null or absent.
type ScrollConfig struct {
	Fetch FetchFunc
	// DataKey is the envelope key holding the item array
	DataKey string
	// ScrollParam is both the query parameter and the envelope key carrying
	// the scroll handle
	ScrollParam string
	Params      url.Values
}

type scrollPager struct {
	cfg    ScrollConfig
	scroll string
	done   bool
}

// NewScrollPager creates a scroll-based page iterator.
func NewScrollPager(cfg ScrollConfig) PageIterator {
	if cfg.ScrollParam == "" {
		cfg.ScrollParam = "scroll_param"
	}
	return &scrollPager{cfg: cfg}
}

func (p *scrollPager) Next(ctx context.Context) ([]json.RawMessage, bool, error) {
	if p.done {
		return nil, false, nil
	}

	params := cloneParams(p.cfg.Params)
	if p.scroll != "" {
		params.Set(p.cfg.ScrollParam, p.scroll)
	}

	body, err := p.cfg.Fetch(ctx, params)
	if err != nil {
		return nil, false, err
	}

	items, err := envelopeItems(body, p.cfg.DataKey)
	if err != nil {
		return nil, false, err
	}

	next := envelopeString(body, p.cfg.ScrollParam)
	if next == "" {
		p.done = true
		return items, false, nil
	}

	p.scroll = next
	return items, true, nil
}

func (p *scrollPager) Reset() {
	p.scroll = ""
	p.done = false
}

func cloneParams(params url.Values) url.Values {
	cloned := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			cloned.Add(k, v)
		}
	}
	return cloned
}
