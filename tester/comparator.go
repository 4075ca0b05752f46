package tester

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/google/go-cmp/cmp"
)

// Compare checks actual program output against the golden bytes. The
// comparison is byte-exact: datasets whose outputs contain recomputed
// checksums or variable encapsulation fields pre-bake the correct bytes at
// construction time instead of relying on lenient matching here.
//
// On mismatch the returned diff is a human-readable summary.
func Compare(actual, expected []byte) (bool, string) {
	if bytes.Equal(actual, expected) {
		return true, ""
	}

	var sb bytes.Buffer
	if len(actual) != len(expected) {
		fmt.Fprintf(&sb, "length mismatch: got %d bytes, want %d bytes\n",
			len(actual), len(expected))
	}
	sb.WriteString(cmp.Diff(hex.Dump(expected), hex.Dump(actual)))
	return false, sb.String()
}
