package command

import (
	"strings"

	"github.com/giantswarm/enginectl/internal/sentinel"
)

// ErrEmptyCommand is returned by Build when the raw script contains no
// non-blank tokens. Nothing can be spawned from it.
const ErrEmptyCommand = sentinel.Error("command is empty")

// Spec is the executable and its arguments, in order.
type Spec struct {
	// Argv holds the escalation prefix (if any) followed by the script tokens.
	// Argv[0] is the program to execute.
	Argv []string
}

// Program returns Argv[0], or "" for an empty Spec.
func (s Spec) Program() string {
	if len(s.Argv) == 0 {
		return ""
	}
	return s.Argv[0]
}

// String joins Argv with single spaces. It is meant for logs only; the result
// is not shell-quoted.
func (s Spec) String() string {
	return strings.Join(s.Argv, " ")
}

// Tokenize splits raw on whitespace. Leading, trailing and repeated
// whitespace never produce empty tokens, and token order is preserved.
func Tokenize(raw string) []string {
	return strings.Fields(raw)
}

// Build tokenizes raw and prepends escalate(privileged). A nil escalate adds
// no prefix. Returns ErrEmptyCommand when raw has no tokens, even if an
// escalation prefix would have been added.
func Build(raw string, privileged bool, escalate Escalation) (Spec, error) {
	tokens := Tokenize(raw)
	if len(tokens) == 0 {
		return Spec{}, ErrEmptyCommand
	}

	var prefix []string
	if escalate != nil {
		prefix = escalate(privileged)
	}

	argv := make([]string, 0, len(prefix)+len(tokens))
	argv = append(argv, prefix...)
	argv = append(argv, tokens...)
	return Spec{Argv: argv}, nil
}
