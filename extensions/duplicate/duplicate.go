// Package duplicate implements RFC 7352's "duplicate" test: true if a
// message carrying the same tracking key (by default its Message-ID) was
// already seen within the configured window, false otherwise — either way
// the key is recorded as seen for next time. It reuses the same
// registry.ExecAPI.CheckDuplicate/interpreter.DuplicateTracker plumbing
// extensions/vacation built for ":handle" dedup, since both are "has this
// key been seen before" checks against one run-scoped tracker.
package duplicate

import (
	"strconv"
	"time"

	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/registry"
)

const Name = "duplicate"

// defaultPeriod is RFC 7352 §3.1's "reasonable amount of time" default;
// like vacation's default period this module picks 7 days rather than
// leaving the choice unspecified.
const defaultPeriod = 7 * 24 * time.Hour

// keyPrefix namespaces this extension's tracker keys away from
// vacation's ":handle" keys, since both extensions share one
// interpreter.DuplicateTracker per run.
const keyPrefix = "duplicate:"

func tags() []registry.TagShape {
	return []registry.TagShape{
		{Name: "header", TakesParam: true},
		{Name: "uniqueid", TakesParam: true},
		{Name: "seconds", TakesParam: true},
		{Name: "last"},
	}
}

func validate(api registry.ValidateAPI, test ast.NodeID) {
	args := api.PositionalArgs(test)
	if len(args) != 0 {
		api.Errorf(api.Arena().Node(test).Line(), "\"duplicate\" takes no positional arguments")
	}
	header, _ := api.Tag(test, "header")
	uniqueid, _ := api.Tag(test, "uniqueid")
	if header && uniqueid {
		api.Errorf(api.Arena().Node(test).Line(), "\"duplicate\" cannot take both :header and :uniqueid")
	}
	if present, arg := api.Tag(test, "header"); present {
		if vals := api.Arena().StringListValues(arg); len(vals) != 1 {
			api.Errorf(api.Arena().Node(test).Line(), "\":header\" takes a single header name")
		}
	}
	if present, arg := api.Tag(test, "uniqueid"); present {
		if vals := api.Arena().StringListValues(arg); len(vals) != 1 {
			api.Errorf(api.Arena().Node(test).Line(), "\":uniqueid\" takes a single value")
		}
	}
	if present, arg := api.Tag(test, "seconds"); present {
		if _, isNum := api.Arena().Node(arg).(*ast.Number); !isNum {
			if vals := api.Arena().StringListValues(arg); len(vals) != 1 {
				api.Errorf(api.Arena().Node(test).Line(), "\":seconds\" takes a single number")
			} else if _, err := strconv.Atoi(vals[0]); err != nil {
				api.Errorf(api.Arena().Node(test).Line(), "\":seconds\" value %q is not a number", vals[0])
			}
		}
	}
}

// keyMode is wire-encoded so Execute knows how to build its tracker key
// without re-reading tag presence (tags aren't available past Generate).
const (
	keyModeMessageID byte = iota
	keyModeHeader
	keyModeUniqueID
)

func generate(api registry.GenAPI, test ast.NodeID) {
	mode := keyModeMessageID
	source := ""
	if present, arg := api.Tag(test, "header"); present {
		mode = keyModeHeader
		if vals := api.Arena().StringListValues(arg); len(vals) == 1 {
			source = vals[0]
		}
	} else if present, arg := api.Tag(test, "uniqueid"); present {
		mode = keyModeUniqueID
		if vals := api.Arena().StringListValues(arg); len(vals) == 1 {
			source = vals[0]
		}
	}
	api.EmitByte(mode)
	api.EmitString(source)

	period := defaultPeriod
	if present, arg := api.Tag(test, "seconds"); present {
		if n, ok := api.Arena().Node(arg).(*ast.Number); ok {
			period = time.Duration(n.Value) * time.Second
		} else if vals := api.Arena().StringListValues(arg); len(vals) == 1 {
			if n, err := strconv.Atoi(vals[0]); err == nil {
				period = time.Duration(n) * time.Second
			}
		}
	}
	api.EmitUvarint(uint64(period))
}

func execute(api registry.ExecAPI) (bool, error) {
	mode, err := api.ReadByte()
	if err != nil {
		return false, err
	}
	source, err := api.ReadString()
	if err != nil {
		return false, err
	}
	periodRaw, err := api.ReadUvarint()
	if err != nil {
		return false, err
	}

	var key string
	switch mode {
	case keyModeUniqueID:
		key = api.ExpandVariables(source)
	case keyModeHeader:
		vals, err := api.Header(api.ExpandVariables(source))
		if err != nil {
			return false, err
		}
		if len(vals) > 0 {
			key = vals[0]
		}
	default:
		vals, err := api.Header("Message-ID")
		if err != nil {
			return false, err
		}
		if len(vals) > 0 {
			key = vals[0]
		}
	}
	if key == "" {
		return false, nil
	}

	dup, err := api.CheckDuplicate(keyPrefix+key, time.Duration(periodRaw))
	if err != nil {
		return false, err
	}
	return dup, nil
}

func Load(r *registry.Registry) error {
	r.AddTest(&registry.TestDef{
		Name:        Name,
		ExtensionID: Extension.ID,
		SubCode:     1,
		Tags:        tags(),
		Validate:    validate,
		Generate:    generate,
		Execute:     execute,
	})
	return nil
}

var Extension = &registry.Extension{Name: Name, Version: "1.0", Load: Load}
