// Package clirole decides which side of the pipe this process invocation
// plays, the way the original CLI does: by inspecting whether standard
// input and standard output are terminals or pipes.
package clirole

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

// Role identifies which transport a process invocation should run.
type Role int

const (
	// Sender reads stdin and PUTs packets to the relay.
	Sender Role = iota
	// Receiver GETs packets from the relay and writes them to stdout.
	Receiver
)

// Detect inspects stdin/stdout and returns the role this invocation must
// play. A pipe on stdin only means Sender; a pipe on stdout only means
// Receiver. Pipes on both streams, or on neither, return an error.
func Detect() (Role, error) {
	return detect(os.Stdin.Fd(), os.Stdout.Fd())
}

func detect(stdin, stdout uintptr) (Role, error) {
	stdinPiped := !isatty.IsTerminal(stdin) && !isatty.IsCygwinTerminal(stdin)
	stdoutPiped := !isatty.IsTerminal(stdout) && !isatty.IsCygwinTerminal(stdout)

	switch {
	case stdinPiped && !stdoutPiped:
		return Sender, nil
	case !stdinPiped && stdoutPiped:
		return Receiver, nil
	default:
		return 0, errors.New("expected exactly one of stdin or stdout to be a pipe")
	}
}
