// Package hexdump formats byte buffers for diagnostic logging. The output
// pairs a short direction prefix ("R" for received, "W" for written) with
// offset-grouped hex and an ASCII gutter, one line per 16 bytes.
package hexdump

import (
	"fmt"
	"strings"
)

const bytesPerLine = 16

// Dump renders data as prefixed hex+ASCII lines. An empty input renders a
// single line so the caller's log entry still shows the prefix.
func Dump(prefix string, data []byte) string {
	if len(data) == 0 {
		return prefix + ": 0000:"
	}

	var sb strings.Builder
	for off := 0; off < len(data); off += bytesPerLine {
		end := off + bytesPerLine
		if end > len(data) {
			end = len(data)
		}
		line := data[off:end]

		if off > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s: %04x:", prefix, off)
		for i := 0; i < bytesPerLine; i++ {
			if i < len(line) {
				fmt.Fprintf(&sb, " %02x", line[i])
			} else {
				sb.WriteString("   ")
			}
		}
		sb.WriteByte(' ')
		for _, c := range line {
			if c < 0x20 || c > 0x7e {
				c = '.'
			}
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
