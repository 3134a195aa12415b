// Command sievec is a CLI surface over this module (spec.md §6): compile
// and dry-run scripts directly from a file, or drive a storage backend's
// save/activate/deactivate/list/delete/rename lifecycle.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dovesieve/sieve"
	"github.com/dovesieve/sieve/ast"
	"github.com/dovesieve/sieve/binary"
	"github.com/dovesieve/sieve/internal/diag"
	"github.com/dovesieve/sieve/message"
	"github.com/dovesieve/sieve/script"
	"github.com/dovesieve/sieve/sieveerr"
)

// sysexits.h-style codes, the set spec.md §6 names.
const (
	exitOK          = 0
	exitUsage       = 65
	exitCantCreate  = 73
	exitIOErr       = 74
	exitTempFailure = 75
	exitProtocol    = 76
)

func main() {
	exitCode := exitOK

	var backend, storageName string
	var rawOpts []string

	rootCmd := &cobra.Command{
		Use:           "sievec",
		Short:         "Compile, run, and manage Sieve mail-filtering scripts",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "data", "storage backend: file, data (dict requires in-process wiring, not available here)")
	rootCmd.PersistentFlags().StringVar(&storageName, "storage-name", "default", "name reported by the storage backend")
	rootCmd.PersistentFlags().StringArrayVar(&rawOpts, "option", nil, "driver option in key=value form, repeatable")

	rootCmd.AddCommand(
		newTestCmd(&exitCode),
		newDumpCmd(&exitCode),
		newCompileCmd(&exitCode),
		newSaveCmd(&exitCode, &backend, &storageName, &rawOpts),
		newActivateCmd(&exitCode, &backend, &storageName, &rawOpts),
		newDeactivateCmd(&exitCode, &backend, &storageName, &rawOpts),
		newListCmd(&exitCode, &backend, &storageName, &rawOpts),
		newDeleteCmd(&exitCode, &backend, &storageName, &rawOpts),
		newRenameCmd(&exitCode, &backend, &storageName, &rawOpts),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sievec:", err)
		if exitCode == exitOK {
			exitCode = exitFor(err)
		}
	}
	os.Exit(exitCode)
}

// exitFor maps a sieveerr.Kind onto the sysexits-style code spec.md §6
// fixes for this CLI; any error outside the Kinds listed here (flag
// parsing, missing files, ...) maps to exitIOErr.
func exitFor(err error) int {
	switch {
	case sieveerr.Is(err, sieveerr.KindParse), sieveerr.Is(err, sieveerr.KindValidate), sieveerr.Is(err, sieveerr.KindBinCorrupt):
		return exitProtocol
	case sieveerr.Is(err, sieveerr.KindTempFailure):
		return exitTempFailure
	case sieveerr.Is(err, sieveerr.KindNoQuota), sieveerr.Is(err, sieveerr.KindExists):
		return exitCantCreate
	case sieveerr.Is(err, sieveerr.KindNotFound), sieveerr.Is(err, sieveerr.KindNoPermission):
		return exitIOErr
	default:
		return exitIOErr
	}
}

func readSource(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func newTestCmd(exitCode *int) *cobra.Command {
	var envFrom, envTo string
	cmd := &cobra.Command{
		Use:   "test <script>",
		Short: "Compile a script and run it against a synthetic message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(args[0])
			if err != nil {
				*exitCode = exitIOErr
				return err
			}
			in, err := sieve.New()
			if err != nil {
				return err
			}
			res, err := in.Compile(src, args[0])
			if err != nil {
				*exitCode = exitFor(err)
				printDiagnostics(res.Diagnostics)
				return err
			}
			msg := message.NewStatic(nil, envFrom, envTo, "")
			acc, err := in.Run(context.Background(), res.Binary, msg, nil)
			if err != nil {
				*exitCode = exitFor(err)
				return err
			}
			for _, line := range acc.Dump() {
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&envFrom, "envelope-from", "", "synthetic envelope-from address")
	cmd.Flags().StringVar(&envTo, "envelope-to", "", "synthetic envelope-to address")
	return cmd
}

func newDumpCmd(exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <script>",
		Short: "Parse a script and print its AST",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(args[0])
			if err != nil {
				*exitCode = exitIOErr
				return err
			}
			buf := diag.NewBufferHandler()
			sink := diag.NewSink(args[0], 0, diag.NewRefHandler(buf))
			tree := sieve.ParseOnly(src, args[0], sink)
			if !sink.OK() {
				*exitCode = exitProtocol
				printDiagnostics(buf.Diagnostics())
				return fmt.Errorf("parse failed")
			}
			fmt.Print(ast.Dump(tree))
			return nil
		},
	}
}

func newCompileCmd(exitCode *int) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "compile <script>",
		Short: "Compile a script to its binary bytecode form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(args[0])
			if err != nil {
				*exitCode = exitIOErr
				return err
			}
			in, err := sieve.New()
			if err != nil {
				return err
			}
			res, err := in.Compile(src, args[0])
			if err != nil {
				*exitCode = exitFor(err)
				printDiagnostics(res.Diagnostics)
				return err
			}
			w := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					*exitCode = exitCantCreate
					return err
				}
				defer f.Close()
				w = f
			}
			if err := writeBinary(w, res); err != nil {
				*exitCode = exitIOErr
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write compiled binary here instead of stdout")
	return cmd
}

func writeBinary(w io.Writer, res *sieve.CompileResult) error {
	return binary.Save(w, res.Binary)
}

func printDiagnostics(diags []diag.Diagnostic) {
	for _, d := range diags {
		fmt.Fprintln(os.Stderr, d.String())
	}
}

func openStorageFromFlags(backend, storageName *string, rawOpts *[]string) (script.Storage, error) {
	opts, err := parseOptions(*rawOpts)
	if err != nil {
		return nil, err
	}
	return openStorage(*storageName, *backend, opts)
}

func newSaveCmd(exitCode *int, backend, storageName *string, rawOpts *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "save <name> <script>",
		Short: "Save a script's source under a storage-managed name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := script.ValidateName(args[0]); err != nil {
				*exitCode = exitUsage
				return err
			}
			src, err := readSource(args[1])
			if err != nil {
				*exitCode = exitIOErr
				return err
			}
			st, err := openStorageFromFlags(backend, storageName, rawOpts)
			if err != nil {
				*exitCode = exitUsage
				return err
			}
			defer st.Close()
			fits, err := st.QuotaHaveSpace(cmd.Context(), int64(len(src)))
			if err != nil {
				*exitCode = exitIOErr
				return err
			}
			if !fits {
				*exitCode = exitCantCreate
				return fmt.Errorf("sievec: storage quota exceeded saving %q", args[0])
			}
			if _, err := st.Save(cmd.Context(), args[0], []byte(src)); err != nil {
				*exitCode = exitFor(err)
				return err
			}
			return nil
		},
	}
}

func newActivateCmd(exitCode *int, backend, storageName *string, rawOpts *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <name>",
		Short: "Make a saved script the storage's active script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStorageFromFlags(backend, storageName, rawOpts)
			if err != nil {
				*exitCode = exitUsage
				return err
			}
			defer st.Close()
			sc, err := st.GetScript(cmd.Context(), args[0])
			if err != nil {
				*exitCode = exitFor(err)
				return err
			}
			if err := sc.Activate(cmd.Context()); err != nil {
				*exitCode = exitFor(err)
				return err
			}
			return nil
		},
	}
}

func newDeactivateCmd(exitCode *int, backend, storageName *string, rawOpts *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate",
		Short: "Clear the storage's active script",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStorageFromFlags(backend, storageName, rawOpts)
			if err != nil {
				*exitCode = exitUsage
				return err
			}
			defer st.Close()
			if err := st.Deactivate(cmd.Context()); err != nil {
				*exitCode = exitFor(err)
				return err
			}
			return nil
		},
	}
}

func newListCmd(exitCode *int, backend, storageName *string, rawOpts *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every script name the storage holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStorageFromFlags(backend, storageName, rawOpts)
			if err != nil {
				*exitCode = exitUsage
				return err
			}
			defer st.Close()
			names, err := st.List(cmd.Context())
			if err != nil {
				*exitCode = exitFor(err)
				return err
			}
			active, hasActive, err := st.ActiveScriptName(cmd.Context())
			if err != nil {
				*exitCode = exitFor(err)
				return err
			}
			for _, name := range names {
				marker := " "
				if hasActive && name == active {
					marker = "*"
				}
				fmt.Printf("%s %s\n", marker, name)
			}
			return nil
		},
	}
}

func newDeleteCmd(exitCode *int, backend, storageName *string, rawOpts *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStorageFromFlags(backend, storageName, rawOpts)
			if err != nil {
				*exitCode = exitUsage
				return err
			}
			defer st.Close()
			sc, err := st.GetScript(cmd.Context(), args[0])
			if err != nil {
				*exitCode = exitFor(err)
				return err
			}
			if err := sc.Delete(cmd.Context()); err != nil {
				*exitCode = exitFor(err)
				return err
			}
			return nil
		},
	}
}

func newRenameCmd(exitCode *int, backend, storageName *string, rawOpts *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a saved script",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := script.ValidateName(args[1]); err != nil {
				*exitCode = exitUsage
				return err
			}
			st, err := openStorageFromFlags(backend, storageName, rawOpts)
			if err != nil {
				*exitCode = exitUsage
				return err
			}
			defer st.Close()
			sc, err := st.GetScript(cmd.Context(), args[0])
			if err != nil {
				*exitCode = exitFor(err)
				return err
			}
			if err := sc.Rename(cmd.Context(), args[1]); err != nil {
				*exitCode = exitFor(err)
				return err
			}
			return nil
		},
	}
}
