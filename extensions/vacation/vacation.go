// Package vacation implements RFC 5230's "vacation" action: an automated
// reply sent at most once per :handle within the configured period, so a
// correspondent who mails twice in a day gets one autoreply, not two.
//
// RFC 5230 §5 also lists a battery of anti-loop heuristics real MTAs apply
// before sending an autoreply at all (skip mailing-list traffic, skip
// messages whose envelope-from is empty, honour Auto-Submitted). None of
// those depend on interpreter state the way dedup does, so they are left
// to the host's message/transport layer rather than built here; this
// package covers the one piece spec.md §8 Scenario B actually exercises:
// handle-keyed dedup within a period.
package vacation

import (
	"fmt"
	"time"

	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/registry"
	"github.com/dovesieve/sieve/result"
)

const Name = "vacation"

const defaultPeriod = 7 * 24 * time.Hour

func tags() []registry.TagShape {
	return []registry.TagShape{
		{Name: "days", TakesParam: true},
		{Name: "seconds", TakesParam: true},
		{Name: "subject", TakesParam: true},
		{Name: "from", TakesParam: true},
		{Name: "addresses", TakesParam: true},
		{Name: "mime"},
		{Name: "handle", TakesParam: true},
	}
}

func validate(api registry.ValidateAPI, cmd ast.NodeID) {
	args := api.PositionalArgs(cmd)
	if len(args) != 1 {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"vacation\" expects exactly one reason string")
		return
	}
	if vals := api.Arena().StringListValues(args[0]); len(vals) != 1 {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"vacation\" reason must be a single string")
	}
	daysPresent, _ := api.Tag(cmd, "days")
	secondsPresent, _ := api.Tag(cmd, "seconds")
	if daysPresent && secondsPresent {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"vacation\" cannot take both :days and :seconds")
	}
}

func singleStringTag(api registry.GenAPI, cmd ast.NodeID, name string) (string, bool) {
	present, arg := api.Tag(cmd, name)
	if !present {
		return "", false
	}
	if vals := api.Arena().StringListValues(arg); len(vals) == 1 {
		return vals[0], true
	}
	return "", true
}

func generate(api registry.GenAPI, cmd ast.NodeID) {
	reason := ""
	if args := api.PositionalArgs(cmd); len(args) == 1 {
		if vals := api.Arena().StringListValues(args[0]); len(vals) == 1 {
			reason = vals[0]
		}
	}
	api.EmitString(reason)

	period := defaultPeriod
	if present, arg := api.Tag(cmd, "days"); present {
		if n, ok := api.Arena().Node(arg).(*ast.Number); ok {
			period = time.Duration(n.Value) * 24 * time.Hour
		} else if vals := api.Arena().StringListValues(arg); len(vals) == 1 {
			period = parseDurationArg(vals[0], 24*time.Hour)
		}
	} else if present, arg := api.Tag(cmd, "seconds"); present {
		if n, ok := api.Arena().Node(arg).(*ast.Number); ok {
			period = time.Duration(n.Value) * time.Second
		} else if vals := api.Arena().StringListValues(arg); len(vals) == 1 {
			period = parseDurationArg(vals[0], time.Second)
		}
	}
	api.EmitUvarint(uint64(period))

	subject, _ := singleStringTag(api, cmd, "subject")
	api.EmitString(subject)
	from, _ := singleStringTag(api, cmd, "from")
	api.EmitString(from)
	handle, hasHandle := singleStringTag(api, cmd, "handle")
	if !hasHandle {
		handle = reason
	}
	api.EmitString(handle)

	if present, _ := api.Tag(cmd, "mime"); present {
		api.EmitByte(1)
	} else {
		api.EmitByte(0)
	}
}

// parseDurationArg converts a :days/:seconds argument written as a quoted
// decimal string into a duration (a numeric literal arrives as an
// ast.Number and generate converts it directly). A string holding any
// non-digit yields 0 rather than failing generation; validate does not
// check the digits.
func parseDurationArg(s string, unit time.Duration) time.Duration {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return time.Duration(n) * unit
}

func execute(api registry.ExecAPI) error {
	reason, err := api.ReadString()
	if err != nil {
		return err
	}
	periodRaw, err := api.ReadUvarint()
	if err != nil {
		return err
	}
	subject, err := api.ReadString()
	if err != nil {
		return err
	}
	from, err := api.ReadString()
	if err != nil {
		return err
	}
	handle, err := api.ReadString()
	if err != nil {
		return err
	}
	mimeByte, err := api.ReadByte()
	if err != nil {
		return err
	}

	period := time.Duration(periodRaw)
	dup, err := api.CheckDuplicate(handle, period)
	if err != nil {
		return err
	}
	if dup {
		return nil
	}

	return api.AddAction("vacation", map[string]any{
		"handle":  handle,
		"reason":  api.ExpandVariables(reason),
		"subject": api.ExpandVariables(subject),
		"from":    api.ExpandVariables(from),
		"mime":    mimeByte == 1,
	}, nil)
}

func print(a *result.Action) string {
	subject, _ := a.Detail["subject"].(string)
	if subject == "" {
		return fmt.Sprintf("vacation{reason=%q}", a.Detail["reason"])
	}
	return fmt.Sprintf("vacation{reason=%q, subject=%q}", a.Detail["reason"], subject)
}

// ActionKind never provides delivery (RFC 5230 §4: vacation always
// accompanies, never replaces, normal delivery) and dedups by handle, the
// same key CheckDuplicate already gated at execute time; a second
// vacation with a different handle in the same script still queues
// separately, matching real Sieve's "one handle, one auto-reply" scoping.
var ActionKind = &result.Kind{
	Name: "vacation",
	CheckDuplicate: func(existing, next *result.Action) result.Verdict {
		if existing.Key == next.Key {
			return result.Replace
		}
		return result.Distinct
	},
	Print: print,
}

func Load(r *registry.Registry) error {
	r.AddCommand(&registry.CommandDef{
		Name:        "vacation",
		ExtensionID: Extension.ID,
		SubCode:     1,
		Tags:        tags(),
		Validate:    validate,
		Generate:    generate,
		Execute:     execute,
	})
	return nil
}

var Extension = &registry.Extension{
	Name:        Name,
	Version:     "1.0",
	Load:        Load,
	ActionKinds: []*result.Kind{ActionKind},
}
