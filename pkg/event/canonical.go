// Package event builds and verifies signed event records.
//
// Canonical serialisation cannot be delegated to encoding/json, whose
// object key order is unspecified for maps — the id algorithm requires a
// fixed array shape with no object at all, so this is a hand-written
// minimal-escape encoder, since byte-for-byte stability matters more
// here than marshalling convenience.
package event

import (
	"strconv"
	"strings"

	"github.com/nsyte-dev/nsyte/pkg/api"
)

// Canonical returns the minimally-escaped JSON serialisation of
// [0, pubkey, created_at, kind, tags, content] used to compute an event id.
func Canonical(pubkey string, createdAt int64, kind api.EventKind, tags api.Tags, content string) string {
	var b strings.Builder
	b.WriteString("[0,")
	writeString(&b, pubkey)
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(createdAt, 10))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(int(kind)))
	b.WriteByte(',')
	writeTags(&b, tags)
	b.WriteByte(',')
	writeString(&b, content)
	b.WriteByte(']')
	return b.String()
}

func writeTags(b *strings.Builder, tags api.Tags) {
	b.WriteByte('[')
	for i, tag := range tags {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('[')
		for j, v := range tag {
			if j > 0 {
				b.WriteByte(',')
			}
			writeString(b, v)
		}
		b.WriteByte(']')
	}
	b.WriteByte(']')
}

// writeString escapes a string minimally: quote, backslash, and control
// characters, matching the id algorithm in ("strings escaped
// minimally").
func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString("\\u")
				const hex = "0123456789abcdef"
				b.WriteByte('0')
				b.WriteByte('0')
				b.WriteByte(hex[(r>>4)&0xf])
				b.WriteByte(hex[r&0xf])
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}
