package hexdump

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDumpSingleLine(t *testing.T) {
	t.Parallel()

	got := Dump("R", []byte{0xFF, 0xFF, 0x01, 0x02, 0x00, 0xFC})
	// Ten unused byte columns follow the six hex pairs, then the gutter.
	want := "R: 0000: ff ff 01 02 00 fc" + strings.Repeat("   ", 10) + " ......"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Dump mismatch (-want +got):\n%s", diff)
	}
}

func TestDumpMultiLineOffsets(t *testing.T) {
	t.Parallel()

	data := make([]byte, 18)
	for i := range data {
		data[i] = byte(i)
	}

	got := Dump("W", data)
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines for 18 bytes, got %d:\n%s", len(lines), got)
	}
	if !strings.HasPrefix(lines[0], "W: 0000:") {
		t.Errorf("first line has wrong offset: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "W: 0010:") {
		t.Errorf("second line has wrong offset: %q", lines[1])
	}
}

func TestDumpASCIIGutter(t *testing.T) {
	t.Parallel()

	// Printable bytes show as-is, everything else as a dot.
	got := Dump("R", []byte{'p', 'i', 'n', 'g', 0x00, 0x7F})
	if !strings.HasSuffix(got, "ping..") {
		t.Errorf("ASCII gutter wrong: %q", got)
	}
}

func TestDumpEmpty(t *testing.T) {
	t.Parallel()

	if got := Dump("R", nil); got != "R: 0000:" {
		t.Errorf("Dump(nil) = %q", got)
	}
}
