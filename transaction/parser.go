package transaction

import (
	"regexp"
	"strconv"
	"strings"

	simerrors "repsim/internal/errors"
)

// Command is one parsed input line (spec.md §2.6). Fields beyond Name
// are populated according to Name; see Parse.
type Command struct {
	Name   string
	TxnID  string
	VarID  string
	Value  int
	SiteID int
}

var token = regexp.MustCompile(`\w+`)

var knownCommands = map[string]bool{
	"begin": true, "beginRO": true, "R": true, "W": true,
	"dump": true, "end": true, "fail": true, "recover": true,
}

// Parse tokenizes one line the way original_source/transaction/parser.py
// does: split on \w+ (ignoring punctuation like "(", ",", ")"), treat a
// line starting with "//" or "===" as a no-op passthrough, and validate
// the command name against the fixed command set before decoding
// per-command arguments (spec.md §2.6).
func Parse(line string) (Command, bool, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "===") {
		return Command{}, false, nil
	}

	toks := token.FindAllString(trimmed, -1)
	if len(toks) == 0 {
		return Command{}, false, nil
	}
	name := toks[0]
	if !knownCommands[name] {
		return Command{}, false, simerrors.NewParseError("unknown command %q", name)
	}

	switch name {
	case "begin", "beginRO":
		if len(toks) < 2 {
			return Command{}, false, simerrors.NewParseError("%s requires a transaction id", name)
		}
		return Command{Name: name, TxnID: toks[1]}, true, nil
	case "R":
		if len(toks) < 3 {
			return Command{}, false, simerrors.NewParseError("R requires a transaction id and variable")
		}
		return Command{Name: name, TxnID: toks[1], VarID: toks[2]}, true, nil
	case "W":
		if len(toks) < 4 {
			return Command{}, false, simerrors.NewParseError("W requires a transaction id, variable, and value")
		}
		val, err := strconv.Atoi(toks[3])
		if err != nil {
			return Command{}, false, simerrors.NewParseError("W value %q is not an integer", toks[3])
		}
		return Command{Name: name, TxnID: toks[1], VarID: toks[2], Value: val}, true, nil
	case "end":
		if len(toks) < 2 {
			return Command{}, false, simerrors.NewParseError("end requires a transaction id")
		}
		return Command{Name: name, TxnID: toks[1]}, true, nil
	case "dump":
		return Command{Name: name}, true, nil
	case "fail", "recover":
		if len(toks) < 2 {
			return Command{}, false, simerrors.NewParseError("%s requires a site id", name)
		}
		sid, err := strconv.Atoi(toks[1])
		if err != nil {
			return Command{}, false, simerrors.NewParseError("%s site id %q is not an integer", name, toks[1])
		}
		return Command{Name: name, SiteID: sid}, true, nil
	default:
		return Command{}, false, simerrors.NewParseError("unhandled command %q", name)
	}
}
