// Package result implements spec.md §4.10: the ordered pending-action list
// an interpreter run builds as it executes "keep"/"discard"/"redirect" and
// every extension action, plus the two-phase commit that turns it into
// side effects against the host.
package result

import "fmt"

// Verdict is the outcome of comparing a new action against one already
// pending under the same (kind, key) pair.
type Verdict int

const (
	// Distinct means the new action does not collide with the existing
	// one at all; both are kept (the common case: two different
	// fileinto folders, for instance).
	Distinct Verdict = iota
	// Merge means the new action folds into the existing one; its side
	// effects (flags, primarily) are combined via MergeSideEffects.
	Merge
	// Replace means the new action supersedes the existing one outright.
	Replace
	// Conflict means the two actions cannot both apply; adding raises a
	// runtime error (spec.md §4.10 step 3).
	Conflict
)

// Action is one pending action in the accumulator.
type Action struct {
	Kind   string
	Key    string // within Kind, the dedup key ("" if the kind never dedups)
	Detail map[string]any
	Flags  []string
}

// Kind describes one action's behaviour in the accumulator: how it
// deduplicates against another pending action of the same kind, and its
// two-phase-commit hooks. A Kind with nil hooks behaves as a no-op during
// commit (useful for actions whose only effect is being present, like
// "discard").
type Kind struct {
	Name string
	// ProvidesDelivery marks an action that counts as "the message was
	// delivered somewhere" for the implicit-keep rule (fileinto, keep,
	// redirect — but not discard, which cancels keep without itself
	// providing delivery).
	ProvidesDelivery bool
	// CancelsKeep marks an action that suppresses the implicit keep
	// without itself providing delivery (discard).
	CancelsKeep bool

	CheckDuplicate   func(existing, next *Action) Verdict
	MergeSideEffects func(existing, next *Action)

	Check       func(a *Action) error // phase A: fatal vs. temp_failure vs. ok
	PreExecute  func(a *Action) error
	Execute     func(a *Action) error
	PostExecute func(a *Action) error
	Rollback    func(a *Action) error
	Print       func(a *Action) string
}

// Accumulator is the ordered pending-action list for one interpreter run.
type Accumulator struct {
	kinds   map[string]*Kind
	actions []*Action

	discarded bool
	keepFlags []string
}

// New builds an empty Accumulator preloaded with the core RFC 5228 action
// kinds (keep, discard, redirect). Extensions register their own kinds via
// AddKind.
func New() *Accumulator {
	a := &Accumulator{kinds: make(map[string]*Kind)}
	a.AddKind(&Kind{Name: "keep", ProvidesDelivery: true})
	a.AddKind(&Kind{Name: "discard", CancelsKeep: true})
	a.AddKind(&Kind{
		Name:             "redirect",
		ProvidesDelivery: true,
		CheckDuplicate: func(existing, next *Action) Verdict {
			if existing.Key == next.Key {
				return Merge
			}
			return Distinct
		},
	})
	return a
}

// AddKind registers or overrides an action kind's behaviour.
func (a *Accumulator) AddKind(k *Kind) { a.kinds[k.Name] = k }

// Add appends a pending action, running its kind's dedup contract against
// whichever pending action of the same kind and key (if any) was added
// first (spec.md §4.10 steps 1-4).
func (a *Accumulator) Add(kind, key string, detail map[string]any, flags []string) error {
	k, ok := a.kinds[kind]
	if !ok {
		return fmt.Errorf("result: unknown action kind %q", kind)
	}
	next := &Action{Kind: kind, Key: key, Detail: detail, Flags: flags}

	if k.CancelsKeep {
		a.discarded = true
	}

	if k.CheckDuplicate != nil {
		for _, existing := range a.actions {
			if existing.Kind != kind {
				continue
			}
			switch k.CheckDuplicate(existing, next) {
			case Merge:
				if k.MergeSideEffects != nil {
					k.MergeSideEffects(existing, next)
				} else {
					existing.Flags = append(existing.Flags, next.Flags...)
				}
				return nil
			case Replace:
				*existing = *next
				return nil
			case Conflict:
				return fmt.Errorf("result: conflicting %q actions", kind)
			case Distinct:
				// fall through to append below after checking the rest
			}
		}
	}

	a.actions = append(a.actions, next)
	return nil
}

// SetKeepFlags records the IMAP flags the implicit keep (if one ends up
// being appended at commit time) should carry, per the imap4flags
// extension's accumulated ":flags" state (spec.md §9).
func (a *Accumulator) SetKeepFlags(flags []string) { a.keepFlags = flags }

// Actions returns the pending actions in insertion order, with the
// implicit keep appended at the end if commit-time rules require one. It does not
// mutate the accumulator; call it once commit is ready to run phase B.
func (a *Accumulator) Actions() []*Action {
	out := make([]*Action, len(a.actions))
	copy(out, a.actions)

	delivered := a.discarded
	for _, act := range a.actions {
		if k := a.kinds[act.Kind]; k != nil && k.ProvidesDelivery {
			delivered = true
		}
	}
	if !delivered {
		out = append(out, &Action{Kind: "keep", Flags: a.keepFlags})
	}
	return out
}

// Commit runs the two-phase commit protocol of spec.md §4.10 over
// Actions(): phase A calls every action's Check hook (any error aborts
// before anything executes); phase B runs PreExecute/Execute/PostExecute
// in order, rolling back previously executed actions on failure.
func (a *Accumulator) Commit() error {
	actions := a.Actions()

	for _, act := range actions {
		k := a.kinds[act.Kind]
		if k == nil || k.Check == nil {
			continue
		}
		if err := k.Check(act); err != nil {
			return fmt.Errorf("result: check failed for %q: %w", act.Kind, err)
		}
	}

	var executed []*Action
	for _, act := range actions {
		k := a.kinds[act.Kind]
		if k == nil {
			continue
		}
		if k.PreExecute != nil {
			if err := k.PreExecute(act); err != nil {
				a.rollback(executed)
				return fmt.Errorf("result: pre_execute failed for %q: %w", act.Kind, err)
			}
		}
		if k.Execute != nil {
			if err := k.Execute(act); err != nil {
				a.rollback(executed)
				return fmt.Errorf("result: execute failed for %q: %w", act.Kind, err)
			}
		}
		executed = append(executed, act)
		if k.PostExecute != nil {
			if err := k.PostExecute(act); err != nil {
				a.rollback(executed)
				return fmt.Errorf("result: post_execute failed for %q: %w", act.Kind, err)
			}
		}
	}
	return nil
}

func (a *Accumulator) rollback(executed []*Action) {
	for i := len(executed) - 1; i >= 0; i-- {
		act := executed[i]
		k := a.kinds[act.Kind]
		if k != nil && k.Rollback != nil {
			_ = k.Rollback(act)
		}
	}
}

// Dump renders every pending action (implicit keep included) via each
// kind's Print hook, in commit order, for test and debug tooling (spec.md
// §4.10 "Action printing/dump mode").
func (a *Accumulator) Dump() []string {
	var lines []string
	for _, act := range a.Actions() {
		k := a.kinds[act.Kind]
		if k != nil && k.Print != nil {
			lines = append(lines, k.Print(act))
			continue
		}
		lines = append(lines, act.Kind)
	}
	return lines
}
