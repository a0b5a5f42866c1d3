package scgi

import "strconv"

// Header is one name/value pair of an encoded request
type Header struct {
	Name  string
	Value string
}

// AppendRequest appends the wire form of a request to dst:
//
//	<len>:name\0value\0...,<body>
//
// Headers are written in the given order. CONTENT_LENGTH is prepended with
// len(body) when headers do not contain it.
func AppendRequest(dst []byte, headers []Header, body []byte) []byte {
	hasLength := false
	size := 0
	for _, h := range headers {
		if h.Name == HeaderContentLength {
			hasLength = true
		}
		size += len(h.Name) + len(h.Value) + 2
	}

	var lengthValue string
	if !hasLength {
		lengthValue = strconv.Itoa(len(body))
		size += len(HeaderContentLength) + len(lengthValue) + 2
	}

	dst = strconv.AppendInt(dst, int64(size), 10)
	dst = append(dst, ':')
	if !hasLength {
		dst = appendPair(dst, HeaderContentLength, lengthValue)
	}
	for _, h := range headers {
		dst = appendPair(dst, h.Name, h.Value)
	}
	dst = append(dst, ',')
	return append(dst, body...)
}

func appendPair(dst []byte, name, value string) []byte {
	dst = append(dst, name...)
	dst = append(dst, 0)
	dst = append(dst, value...)
	return append(dst, 0)
}
