package pagination

import (
	"errors"
	"net/url"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d got %d", DefaultPageSize, params.PageSize)
	}
	if params.PageToken != "" || !params.Cursor.IsZero() {
		t.Fatalf("expected empty cursor, got %#v", params)
	}
}

func TestParsePageSize(t *testing.T) {
	opts := Options{DefaultPageSize: 25, MaxPageSize: 40}
	values := url.Values{}
	values.Set("page_size", "30")

	params, err := Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 30 {
		t.Fatalf("expected page size 30 got %d", params.PageSize)
	}

	values.Set("page_size", "400")
	params, err = Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != opts.MaxPageSize {
		t.Fatalf("expected page size clamped to %d got %d", opts.MaxPageSize, params.PageSize)
	}
}

func TestParseInvalidPageSize(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-3"} {
		values := url.Values{}
		values.Set("pageSize", raw)
		if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("%q: expected ErrInvalidPageSize, got %v", raw, err)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), ID: "ord_1"}
	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}

	values := url.Values{}
	values.Set("page_token", token)
	params, err := Parse(values, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if !params.Cursor.CreatedAt.Equal(cursor.CreatedAt) || params.Cursor.ID != cursor.ID {
		t.Fatalf("expected cursor %#v got %#v", cursor, params.Cursor)
	}
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	if _, err := DecodeToken("%%%"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestCursorAfter(t *testing.T) {
	ts := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	cursor := Cursor{CreatedAt: ts, ID: "ord_5"}

	if !cursor.After(ts.Add(-time.Second), "ord_9") {
		t.Fatalf("expected older item to follow cursor")
	}
	if !cursor.After(ts, "ord_4") {
		t.Fatalf("expected same timestamp with smaller id to follow cursor")
	}
	if cursor.After(ts, "ord_6") || cursor.After(ts.Add(time.Second), "ord_1") {
		t.Fatalf("expected newer items to precede cursor")
	}
}
