package script

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/dovesieve/sieve/binary"
	"github.com/dovesieve/sieve/interpreter"
)

// Compiler compiles one script's source into a binary, for NewIncludeResolver
// to recompile an entry whose saved binary is Stale or was never saved
// (spec.md §4.8 "include" falls back to compiling a script's current source
// when no up-to-date binary exists).
type Compiler func(source, filename string) (*binary.Binary, error)

// NewIncludeResolver adapts a personal and a global Storage into an
// interpreter.IncludeResolver (spec.md §4.8): "include :personal" (or no
// tag) resolves against personal, "include :global" against global. Either
// Storage may be nil, meaning that scope is unavailable; a bare-call (the
// interpreter's "personal" bool) against a nil scope fails bin_corrupt, the
// same way an unresolvable name does.
//
// Binary resolution follows Script.BinaryLoad's verdict: UpToDate reuses the
// saved bytecode as-is; Stale or an outright BinaryLoad error falls back to
// recompiling the script's current source with compile, so an included
// script that has never been explicitly compiled still runs.
func NewIncludeResolver(personal, global Storage, compile Compiler) interpreter.IncludeResolver {
	return func(name string, isPersonal bool) (*binary.Binary, error) {
		store := global
		scope := "global"
		if isPersonal {
			store = personal
			scope = "personal"
		}
		if store == nil {
			return nil, fmt.Errorf("script: include %q: no %s storage configured", name, scope)
		}

		ctx := context.Background()
		sc, err := store.GetScript(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("script: include %q: %w", name, err)
		}

		raw, verdict, err := sc.BinaryLoad(ctx)
		if err == nil && verdict == UpToDate {
			bin, err := binary.Load(bytes.NewReader(raw))
			if err == nil {
				return bin, nil
			}
		}

		src, err := readAll(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("script: include %q: reading source: %w", name, err)
		}
		bin, err := compile(string(src), name)
		if err != nil {
			return nil, fmt.Errorf("script: include %q: %w", name, err)
		}
		return bin, nil
	}
}

func readAll(ctx context.Context, sc Script) ([]byte, error) {
	rc, err := sc.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
