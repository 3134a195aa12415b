// Package editheader implements RFC 5293's "editheader" extension:
// "addheader" and "deleteheader" mutate the header fields subsequent
// tests in the same run see, through the host message's optional
// message.Editor facility. A host message that doesn't implement Editor
// makes both commands a not_possible runtime error rather than a silent
// no-op, so a script author finds out its require'd extension has no
// effect on this host.
package editheader

import (
	"strconv"

	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/registry"
	"github.com/dovesieve/sieve/sieveerr"
)

const Name = "editheader"

func validateAddHeader(api registry.ValidateAPI, cmd ast.NodeID) {
	args := api.PositionalArgs(cmd)
	if len(args) != 2 {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"addheader\" expects a field name and a value")
		return
	}
	if vals := api.Arena().StringListValues(args[0]); len(vals) != 1 {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"addheader\" field name must be a single string")
	}
	if vals := api.Arena().StringListValues(args[1]); len(vals) != 1 {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"addheader\" value must be a single string")
	}
}

func generateAddHeader(api registry.GenAPI, cmd ast.NodeID) {
	args := api.PositionalArgs(cmd)
	name, value := "", ""
	if len(args) == 2 {
		if vals := api.Arena().StringListValues(args[0]); len(vals) == 1 {
			name = vals[0]
		}
		if vals := api.Arena().StringListValues(args[1]); len(vals) == 1 {
			value = vals[0]
		}
	}
	api.EmitString(name)
	api.EmitString(value)

	last, _ := api.Tag(cmd, "last")
	if last {
		api.EmitByte(1)
	} else {
		api.EmitByte(0)
	}
}

func executeAddHeader(api registry.ExecAPI) error {
	name, err := api.ReadString()
	if err != nil {
		return err
	}
	value, err := api.ReadString()
	if err != nil {
		return err
	}
	last, err := api.ReadByte()
	if err != nil {
		return err
	}

	ed, ok := api.EditHeader()
	if !ok {
		return sieveerr.New(sieveerr.KindNotPossible, "\"addheader\" is not supported by this message host")
	}
	ed.AddHeader(api.ExpandVariables(name), api.ExpandVariables(value), last == 1)
	return nil
}

func validateDeleteHeader(api registry.ValidateAPI, cmd ast.NodeID) {
	args := api.PositionalArgs(cmd)
	if len(args) < 1 || len(args) > 2 {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"deleteheader\" expects a field name and an optional value-list")
		return
	}
	if vals := api.Arena().StringListValues(args[0]); len(vals) != 1 {
		api.Errorf(api.Arena().Node(cmd).Line(), "\"deleteheader\" field name must be a single string")
	}

	_, idxArg := api.Tag(cmd, "index")
	if idxArg != 0 {
		if _, isNum := api.Arena().Node(idxArg).(*ast.Number); !isNum {
			if vals := api.Arena().StringListValues(idxArg); len(vals) != 1 {
				api.Errorf(api.Arena().Node(cmd).Line(), "\":index\" takes a single number")
			} else if _, err := strconv.Atoi(vals[0]); err != nil {
				api.Errorf(api.Arena().Node(cmd).Line(), "\":index\" value %q is not a number", vals[0])
			}
		}
	}
}

func generateDeleteHeader(api registry.GenAPI, cmd ast.NodeID) {
	args := api.PositionalArgs(cmd)
	name := ""
	if len(args) >= 1 {
		if vals := api.Arena().StringListValues(args[0]); len(vals) == 1 {
			name = vals[0]
		}
	}
	api.EmitString(name)

	value := ""
	if len(args) == 2 {
		if vals := api.Arena().StringListValues(args[1]); len(vals) == 1 {
			value = vals[0]
		}
	}
	api.EmitString(value)

	index := 0
	if _, idxArg := api.Tag(cmd, "index"); idxArg != 0 {
		if n, ok := api.Arena().Node(idxArg).(*ast.Number); ok {
			index = int(n.Value)
		} else if vals := api.Arena().StringListValues(idxArg); len(vals) == 1 {
			index, _ = strconv.Atoi(vals[0])
		}
	}
	api.EmitUvarint(uint64(index))
}

func executeDeleteHeader(api registry.ExecAPI) error {
	name, err := api.ReadString()
	if err != nil {
		return err
	}
	value, err := api.ReadString()
	if err != nil {
		return err
	}
	index, err := api.ReadUvarint()
	if err != nil {
		return err
	}

	ed, ok := api.EditHeader()
	if !ok {
		return sieveerr.New(sieveerr.KindNotPossible, "\"deleteheader\" is not supported by this message host")
	}
	ed.DeleteHeader(api.ExpandVariables(name), api.ExpandVariables(value), int(index))
	return nil
}

func Load(r *registry.Registry) error {
	r.AddCommand(&registry.CommandDef{
		Name:        "addheader",
		ExtensionID: Extension.ID,
		SubCode:     1,
		Tags:        []registry.TagShape{{Name: "last"}},
		Validate:    validateAddHeader,
		Generate:    generateAddHeader,
		Execute:     executeAddHeader,
	})
	r.AddCommand(&registry.CommandDef{
		Name:        "deleteheader",
		ExtensionID: Extension.ID,
		SubCode:     2,
		Tags:        []registry.TagShape{{Name: "index", TakesParam: true}},
		Validate:    validateDeleteHeader,
		Generate:    generateDeleteHeader,
		Execute:     executeDeleteHeader,
	})
	return nil
}

var Extension = &registry.Extension{Name: Name, Version: "1.0", Load: Load}
