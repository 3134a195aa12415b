// Package envelope implements RFC 5228 §5.4's "envelope" extension. The
// "envelope" test itself is core (registry/core.go) so codegen and the
// interpreter can dispatch it without an extension opcode; this package
// contributes no commands or tests of its own. Its only job is to give
// "require [\"envelope\"]" a registered extension name to resolve, since
// validateEnvelope (registry/core.go) checks that requirement before
// allowing the test to be used.
package envelope

import "github.com/dovesieve/sieve/registry"

const Name = "envelope"

func Load(r *registry.Registry) error {
	return nil
}

var Extension = &registry.Extension{Name: Name, Version: "1.0", Load: Load}
