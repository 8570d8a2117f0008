package poller

import (
	"fmt"
	"strings"
)

// maxFaultDepth bounds how far an error chain is walked.
const maxFaultDepth = 32

// FormatFault renders err as a trace: its type and message, then each wrapped
// cause on its own line. Joined errors are rendered as indented branches.
// A nil error formats as "".
func FormatFault(err error) string {
	if err == nil {
		return ""
	}

	var b strings.Builder
	writeFault(&b, err, 0, 0)
	return strings.TrimRight(b.String(), "\n")
}

func writeFault(b *strings.Builder, err error, indent, depth int) {
	for err != nil && depth < maxFaultDepth {
		prefix := strings.Repeat("  ", indent)
		if depth > 0 {
			prefix += "caused by: "
		}
		fmt.Fprintf(b, "%s%T: %s\n", prefix, err, err.Error())
		depth++

		switch x := err.(type) {
		case interface{ Unwrap() []error }:
			for _, branch := range x.Unwrap() {
				writeFault(b, branch, indent+1, depth)
			}
			return
		case interface{ Unwrap() error }:
			err = x.Unwrap()
		default:
			return
		}
	}
}
