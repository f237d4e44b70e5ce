package resp

import (
	"bytes"
	"testing"
)

func mustParse(t *testing.T, data []byte) Value {
	t.Helper()
	p := NewParser()
	p.Feed(data)
	v, ok, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a complete value, got need-more for %q", data)
	}
	if p.Buffered() != 0 {
		t.Fatalf("expected all input consumed, %d bytes left", p.Buffered())
	}
	return v
}

func TestParseArrayForm(t *testing.T) {
	v := mustParse(t, []byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))
	if v.Kind != KindArray || len(v.Array) != 2 {
		t.Fatalf("got %+v", v)
	}
	if s, _ := v.Array[0].ToStringLossy(); s != "GET" {
		t.Fatalf("got %q", s)
	}
	if s, _ := v.Array[1].ToStringLossy(); s != "foo" {
		t.Fatalf("got %q", s)
	}
}

func TestParseInlineForm(t *testing.T) {
	v := mustParse(t, []byte("PING\r\n"))
	if v.Kind != KindArray || len(v.Array) != 1 {
		t.Fatalf("got %+v", v)
	}
	if s, _ := v.Array[0].ToStringLossy(); s != "PING" {
		t.Fatalf("got %q", s)
	}
}

func TestParseInlineQuoted(t *testing.T) {
	v := mustParse(t, []byte(`SET k "a b\nc"` + "\r\n"))
	if len(v.Array) != 3 {
		t.Fatalf("got %d tokens", len(v.Array))
	}
	if s, _ := v.Array[2].ToStringLossy(); s != "a b\nc" {
		t.Fatalf("got %q", s)
	}
}

func TestParseInlineUnbalancedQuote(t *testing.T) {
	p := NewParser()
	p.Feed([]byte("SET k \"abc\r\n"))
	_, _, err := p.Next()
	if err == nil {
		t.Fatalf("expected a protocol error")
	}
}

func TestParseInlineEmptyLineSkipped(t *testing.T) {
	v := mustParse(t, []byte("\r\n"))
	if v.Kind != KindArray || len(v.Array) != 0 {
		t.Fatalf("got %+v", v)
	}
}

func TestNullBulkAndArray(t *testing.T) {
	v := mustParse(t, []byte("$-1\r\n"))
	if !v.IsNull() || v.Kind != KindBulk {
		t.Fatalf("got %+v", v)
	}
	v2 := mustParse(t, []byte("*-1\r\n"))
	if !v2.IsNull() || v2.Kind != KindArray {
		t.Fatalf("got %+v", v2)
	}
}

func TestPartialArrayRestoresBuffer(t *testing.T) {
	p := NewParser()
	// Second element's bulk body is not fully present yet.
	p.Feed([]byte("*2\r\n$3\r\nGET\r\n$3\r\nfo"))
	_, ok, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected need-more")
	}
	before := p.Buffered()
	// Feed the rest; the whole array must now parse from the start.
	p.Feed([]byte("o\r\n"))
	v, ok, err := p.Next()
	if err != nil || !ok {
		t.Fatalf("expected complete parse, err=%v ok=%v", err, ok)
	}
	if before != len("*2\r\n$3\r\nGET\r\n$3\r\nfo") {
		t.Fatalf("buffer was mutated during incomplete parse")
	}
	if s, _ := v.Array[1].ToStringLossy(); s != "foo" {
		t.Fatalf("got %q", s)
	}
}

func TestRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte("*1\r\n$4\r\nPING\r\n"),
		[]byte("$-1\r\n"),
		[]byte("*-1\r\n"),
		[]byte(":1234\r\n"),
		[]byte("+OK\r\n"),
		[]byte("-ERR bad\r\n"),
	}
	for _, c := range cases {
		p := NewParser()
		p.Feed(c)
		v, ok, err := p.Next()
		if err != nil || !ok {
			t.Fatalf("parse of %q failed: ok=%v err=%v", c, ok, err)
		}
		got := Marshal(v)
		if !bytes.Equal(got, c) {
			t.Fatalf("round trip mismatch: in=%q out=%q", c, got)
		}
	}
}

func TestBulkLengthLimit(t *testing.T) {
	p := NewParser()
	p.Feed([]byte("$536870913\r\n"))
	_, _, err := p.Next()
	if err == nil {
		t.Fatalf("expected protocol error for oversized bulk length")
	}
}

func TestArrayLengthLimit(t *testing.T) {
	p := NewParser()
	p.Feed([]byte("*1048577\r\n"))
	_, _, err := p.Next()
	if err == nil {
		t.Fatalf("expected protocol error for oversized array length")
	}
}
