package scgi

import (
	"bytes"
	"errors"
	"maps"
	"strings"
	"testing"

	"github.com/searchktools/fast-scgi/core/buffer"
)

// helloRequest is "CONTENT_LENGTH\x0013\x00SCGI\x001\x00" (25 bytes) plus a 13 byte body
const helloRequest = "25:CONTENT_LENGTH\x0013\x00SCGI\x001\x00,Hello, world!"

var helloHeaders = map[string]string{"CONTENT_LENGTH": "13", "SCGI": "1"}

// feedAll feeds data in chunks of the given sizes, then whatever is left
func feedAll(t *testing.T, data []byte, chunks ...int) (*Parser, *Request, bool) {
	t.Helper()

	req := &Request{}
	p := NewParser(req, Limits{})
	var in buffer.Queue

	done := false
	for _, n := range chunks {
		in.Write(data[:n])
		data = data[n:]
		var err error
		done, err = p.Feed(&in)
		if err != nil {
			t.Fatalf("Feed error: %v", err)
		}
	}
	if len(data) > 0 {
		in.Write(data)
		var err error
		done, err = p.Feed(&in)
		if err != nil {
			t.Fatalf("Feed error: %v", err)
		}
	}
	return p, req, done
}

func feedError(data string) error {
	p := NewParser(&Request{}, Limits{MaxHeaderLength: 128, MaxContentLength: 16})
	var in buffer.Queue
	in.WriteString(data)
	_, err := p.Feed(&in)
	return err
}

func TestParserHelloWorld(t *testing.T) {
	_, req, done := feedAll(t, []byte(helloRequest))

	if !done {
		t.Fatal("Expected request to be complete")
	}
	if !maps.Equal(req.Headers(), helloHeaders) {
		t.Errorf("Expected headers %v, got %v", helloHeaders, req.Headers())
	}
	if string(req.Body()) != "Hello, world!" {
		t.Errorf("Expected body Hello, world!, got %q", req.Body())
	}
	if req.ContentLength() != 13 {
		t.Errorf("Expected content length 13, got %d", req.ContentLength())
	}
}

func TestParserEverySplitPoint(t *testing.T) {
	data := []byte(helloRequest)

	for i := 1; i < len(data); i++ {
		_, req, done := feedAll(t, data, i)
		if !done {
			t.Fatalf("Split at %d: expected completion", i)
		}
		if !maps.Equal(req.Headers(), helloHeaders) {
			t.Errorf("Split at %d: expected headers %v, got %v", i, helloHeaders, req.Headers())
		}
		if string(req.Body()) != "Hello, world!" {
			t.Errorf("Split at %d: expected body Hello, world!, got %q", i, req.Body())
		}
	}
}

func TestParserByteAtATime(t *testing.T) {
	data := AppendRequest(nil, []Header{
		{Name: "CONTENT_LENGTH", Value: "27"},
		{Name: "SCGI", Value: "1"},
		{Name: "REQUEST_METHOD", Value: "POST"},
		{Name: "REQUEST_URI", Value: "/deepthought"},
		{Name: "EMPTY", Value: ""},
	}, []byte("What is the answer to life?"))

	whole, wholeReq, _ := feedAll(t, data)

	req := &Request{}
	p := NewParser(req, Limits{})
	var in buffer.Queue
	calls := 0
	for i := range data {
		in.WriteByte(data[i])
		done, err := p.Feed(&in)
		if err != nil {
			t.Fatalf("Byte %d: Feed error: %v", i, err)
		}
		if done {
			calls++
			if i != len(data)-1 {
				t.Fatalf("Completed early at byte %d of %d", i, len(data))
			}
		}
	}

	if calls != 1 {
		t.Fatalf("Expected completion exactly once, got %d", calls)
	}
	if !maps.Equal(req.Headers(), wholeReq.Headers()) {
		t.Errorf("Expected headers %v, got %v", wholeReq.Headers(), req.Headers())
	}
	if !bytes.Equal(req.Body(), wholeReq.Body()) {
		t.Errorf("Expected body %q, got %q", wholeReq.Body(), req.Body())
	}
	if p.Progress() != whole.Progress() {
		t.Errorf("Expected progress %+v, got %+v", whole.Progress(), p.Progress())
	}
	if req.Method() != "POST" || req.URI() != "/deepthought" {
		t.Errorf("Unexpected method/uri %q %q", req.Method(), req.URI())
	}
}

func TestParserMonotonicBounds(t *testing.T) {
	data := []byte(helloRequest)
	p := NewParser(&Request{}, Limits{})
	var in buffer.Queue

	var last Progress
	for i := range data {
		in.WriteByte(data[i])
		if _, err := p.Feed(&in); err != nil {
			t.Fatalf("Feed error: %v", err)
		}

		pr := p.Progress()
		if pr.HeadersLength > 0 && pr.HeadersRead > pr.HeadersLength {
			t.Fatalf("Byte %d: headers read %d exceeds length %d", i, pr.HeadersRead, pr.HeadersLength)
		}
		if pr.ContentRead > pr.ContentLength {
			t.Fatalf("Byte %d: content read %d exceeds length %d", i, pr.ContentRead, pr.ContentLength)
		}
		if pr.HeadersRead < last.HeadersRead || pr.ContentRead < last.ContentRead {
			t.Fatalf("Byte %d: progress went backwards: %+v -> %+v", i, last, pr)
		}
		if pr.Complete != (i == len(data)-1) {
			t.Fatalf("Byte %d: unexpected completion state %v", i, pr.Complete)
		}
		last = pr
	}

	if last.HeadersRead != last.HeadersLength || last.ContentRead != last.ContentLength {
		t.Errorf("Expected counters to meet their bounds, got %+v", last)
	}
}

func TestParserRoundTrip(t *testing.T) {
	wire := AppendRequest(nil, []Header{
		{Name: "CONTENT_LENGTH", Value: "13"},
		{Name: "SCGI", Value: "1"},
	}, []byte("Hello, world!"))

	if string(wire) != helloRequest {
		t.Fatalf("Expected wire %q, got %q", helloRequest, wire)
	}

	_, req, done := feedAll(t, wire)
	if !done {
		t.Fatal("Expected request to be complete")
	}
	if !maps.Equal(req.Headers(), helloHeaders) {
		t.Errorf("Expected headers %v, got %v", helloHeaders, req.Headers())
	}
	if got := strings.Join(req.Names(), ","); got != "CONTENT_LENGTH,SCGI" {
		t.Errorf("Expected header order CONTENT_LENGTH,SCGI, got %s", got)
	}
}

func TestAppendRequestAddsContentLength(t *testing.T) {
	wire := AppendRequest(nil, []Header{{Name: "SCGI", Value: "1"}}, []byte("abc"))

	_, req, done := feedAll(t, wire)
	if !done {
		t.Fatal("Expected request to be complete")
	}
	if req.Header("CONTENT_LENGTH") != "3" {
		t.Errorf("Expected CONTENT_LENGTH 3, got %q", req.Header("CONTENT_LENGTH"))
	}
	if req.Names()[0] != "CONTENT_LENGTH" {
		t.Errorf("Expected CONTENT_LENGTH first, got %v", req.Names())
	}
}

func TestParserPartialPrefixConsumesNothing(t *testing.T) {
	p := NewParser(&Request{}, Limits{})
	var in buffer.Queue
	in.WriteString("25")

	done, err := p.Feed(&in)
	if done || err != nil {
		t.Fatalf("Expected (false, nil), got (%v, %v)", done, err)
	}
	if in.Len() != 2 {
		t.Errorf("Expected 2 unconsumed bytes, got %d", in.Len())
	}

	in.WriteString(":CONTENT_LENGTH")
	if _, err := p.Feed(&in); err != nil {
		t.Fatalf("Feed error: %v", err)
	}
	if p.Progress().HeadersLength != 25 {
		t.Errorf("Expected header length 25, got %d", p.Progress().HeadersLength)
	}
	if in.Len() != len("CONTENT_LENGTH") {
		t.Errorf("Expected incomplete name to stay queued, %d bytes left", in.Len())
	}
}

func TestParserZeroContentLength(t *testing.T) {
	wire := AppendRequest(nil, []Header{{Name: "SCGI", Value: "1"}}, nil)
	_, req, done := feedAll(t, wire)

	if !done {
		t.Fatal("Expected request without body to complete")
	}
	if len(req.Body()) != 0 {
		t.Errorf("Expected empty body, got %q", req.Body())
	}
}

func TestParserIgnoresBytesPastBody(t *testing.T) {
	p := NewParser(&Request{}, Limits{})
	var in buffer.Queue
	in.WriteString(helloRequest + "trailing")

	done, err := p.Feed(&in)
	if !done || err != nil {
		t.Fatalf("Expected (true, nil), got (%v, %v)", done, err)
	}
	if string(p.Request().Body()) != "Hello, world!" {
		t.Errorf("Expected body Hello, world!, got %q", p.Request().Body())
	}
	if in.Len() != len("trailing") {
		t.Errorf("Expected trailing bytes left queued, got %d", in.Len())
	}

	// Feeding again after completion is a no-op
	done, err = p.Feed(&in)
	if !done || err != nil {
		t.Errorf("Expected (true, nil) after completion, got (%v, %v)", done, err)
	}
	if in.Len() != len("trailing") {
		t.Errorf("Expected no further consumption, got %d", in.Len())
	}
}

func TestParserProtocolErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  error
	}{
		{"non-numeric length", "2x:", ErrBadLength},
		{"signed length", "-5:", ErrBadLength},
		{"zero length", "0:", ErrBadLength},
		{"empty length", ":", ErrBadLength},
		{"prefix without colon", "12345678901", ErrBadLength},
		{"header block too large", "129:", ErrHeadersTooLarge},
		{"length wrapping 32 bits", "4294967321:", ErrHeadersTooLarge},
		{"ten digit length", "9999999999:", ErrHeadersTooLarge},
		{"duplicate header", "8:A\x001\x00A\x002\x00", ErrDuplicateHeader},
		{"empty header name", "3:\x00x\x00", ErrMalformedHeaders},
		{"pair overruns length", "4:AB\x00CD\x00", ErrMalformedHeaders},
		{"unterminated header", "3:ABC", ErrMalformedHeaders},
		{"bad separator", "4:A\x001\x00;", ErrBadSeparator},
		{"missing content length", "7:SCGI\x001\x00,", ErrMissingContentLength},
		{"non-numeric content length", "18:CONTENT_LENGTH\x00ab\x00,", ErrBadContentLength},
		{"negative content length", "18:CONTENT_LENGTH\x00-1\x00,", ErrBadContentLength},
		{"body too large", "18:CONTENT_LENGTH\x0017\x00,", ErrBodyTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := feedError(tc.input)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, ErrProtocol) {
				t.Errorf("Expected %v to wrap ErrProtocol", err)
			}
		})
	}
}

func TestParserErrorIsSticky(t *testing.T) {
	p := NewParser(&Request{}, Limits{})
	var in buffer.Queue
	in.WriteString("x:")

	_, first := p.Feed(&in)
	if first == nil {
		t.Fatal("Expected an error")
	}

	in.WriteString(helloRequest)
	done, second := p.Feed(&in)
	if done || second != first {
		t.Errorf("Expected the same error again, got (%v, %v)", done, second)
	}
}

func TestParserReset(t *testing.T) {
	req := &Request{}
	p, _, _ := feedAll(t, []byte(helloRequest))

	req.Reset()
	p.Reset(req, Limits{})
	if p.Complete() || p.Progress() != (Progress{}) {
		t.Errorf("Expected fresh parser, got %+v", p.Progress())
	}
}

func TestRequestResetKeepsRetainedSlices(t *testing.T) {
	req := &Request{}
	p := NewParser(req, Limits{})
	var in buffer.Queue
	in.Write(AppendRequest(nil, []Header{{Name: "SCGI", Value: "1"}}, []byte("first body")))
	if done, err := p.Feed(&in); !done || err != nil {
		t.Fatalf("Expected complete request, got (%v, %v)", done, err)
	}

	body, names := req.Body(), req.Names()

	req.Reset()
	p.Reset(req, Limits{})
	in.Write(AppendRequest(nil, []Header{{Name: "OTHER", Value: "2"}}, []byte("later body")))
	if done, err := p.Feed(&in); !done || err != nil {
		t.Fatalf("Expected complete request, got (%v, %v)", done, err)
	}

	if string(body) != "first body" {
		t.Errorf("Expected retained body to stay first body, got %q", body)
	}
	if strings.Join(names, ",") != "CONTENT_LENGTH,SCGI" {
		t.Errorf("Expected retained names to stay intact, got %v", names)
	}
	if string(req.Body()) != "later body" {
		t.Errorf("Expected later body, got %q", req.Body())
	}
}

func BenchmarkParserWhole(b *testing.B) {
	data := []byte(helloRequest)
	req := &Request{}
	p := NewParser(req, Limits{})
	var in buffer.Queue

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req.Reset()
		p.Reset(req, Limits{})
		in.Write(data)
		p.Feed(&in)
	}
}

func BenchmarkParserByteAtATime(b *testing.B) {
	data := []byte(helloRequest)
	req := &Request{}
	p := NewParser(req, Limits{})
	var in buffer.Queue

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req.Reset()
		p.Reset(req, Limits{})
		for j := range data {
			in.WriteByte(data[j])
			p.Feed(&in)
		}
	}
}
