package main

import (
	"fmt"
	"strings"

	"github.com/dovesieve/sieve/script"
	"github.com/dovesieve/sieve/script/storage/datadriver"
	"github.com/dovesieve/sieve/script/storage/filedriver"
)

// openStorage builds the script.Storage named by backend ("file" or
// "data"); "dict" is recognised but rejected, since it needs a Dict wired
// in process, and "ldap" is not wired into this CLI (no ldapdriver exists
// in this module).
func openStorage(name, backend string, opts script.Options) (script.Storage, error) {
	switch strings.ToLower(backend) {
	case "file":
		return filedriver.New(name, opts)
	case "data":
		return datadriver.New(name), nil
	case "dict":
		return nil, fmt.Errorf("sievec: --backend dict requires a Dict wired in process; not available from the CLI")
	default:
		return nil, fmt.Errorf("sievec: unknown storage backend %q (want file, dict, data)", backend)
	}
}

// parseOptions turns repeated "key=value" --option flags into a
// script.Options map (spec.md §6 "Storage configuration is a set of named
// key/value options").
func parseOptions(raw []string) (script.Options, error) {
	opts := make(script.Options, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("sievec: --option %q is not in key=value form", kv)
		}
		opts[k] = v
	}
	return opts, nil
}
