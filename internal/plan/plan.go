// Package plan reconciles the desired extension set from a manifest
// against the installed-state snapshot and produces an ordered action
// list. Build is pure: it reads its inputs and touches no filesystem,
// which keeps it deterministic and testable without a target directory.
package plan

import (
	"fmt"
	"sort"

	"github.com/vsixgate/vsixgate/internal/extension"
	"github.com/vsixgate/vsixgate/internal/manifest"
	"github.com/vsixgate/vsixgate/internal/scanner"
)

// Mode governs how existing extensions in the target directory are treated.
type Mode int

const (
	// ModeNone never touches an existing extension.
	ModeNone Mode = iota
	// ModeReplace replaces installed extensions whose version differs.
	ModeReplace
	// ModeClean is ModeReplace plus removal of every installed extension
	// the archive does not provide.
	ModeClean
)

// ParseMode maps the NONE/REPLACE/CLEAN policy names onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "NONE", "none":
		return ModeNone, nil
	case "REPLACE", "replace":
		return ModeReplace, nil
	case "CLEAN", "clean":
		return ModeClean, nil
	default:
		return ModeNone, fmt.Errorf("unknown replace mode %q (want NONE, REPLACE, or CLEAN)", s)
	}
}

func (m Mode) String() string {
	switch m {
	case ModeReplace:
		return "REPLACE"
	case ModeClean:
		return "CLEAN"
	default:
		return "NONE"
	}
}

// Op is the closed set of action kinds. The execution engine switches
// exhaustively over these; adding a kind must be handled everywhere.
type Op int

const (
	OpInstall Op = iota
	OpSkip
	OpReplace
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpInstall:
		return "install"
	case OpSkip:
		return "skip"
	case OpReplace:
		return "replace"
	case OpRemove:
		return "remove"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Action is one step of a Plan.
//
// OpInstall: install Ref from the archive entry at Entry.
// OpSkip: leave Ref alone; Reason says why.
// OpReplace: back up and remove Installed, then install Ref from Entry.
// OpRemove: back up and remove Installed.
type Action struct {
	Op        Op
	Ref       extension.Ref     // desired ref (zero for OpRemove)
	Entry     manifest.Entry    // archive entry backing an install/replace
	Installed scanner.Installed // resident extension for skip/replace/remove
	Reason    string            // populated for OpSkip
}

// Subject returns the extension the action is about.
func (a Action) Subject() extension.Ref {
	if a.Op == OpRemove {
		return a.Installed.Ref
	}
	return a.Ref
}

func (a Action) String() string {
	switch a.Op {
	case OpSkip:
		return fmt.Sprintf("skip %s (%s)", a.Ref, a.Reason)
	case OpReplace:
		return fmt.Sprintf("replace %s %s -> %s", a.Ref.ID(), a.Installed.Ref.Version, a.Ref.Version)
	case OpRemove:
		return fmt.Sprintf("remove %s", a.Installed.Ref)
	default:
		return fmt.Sprintf("install %s", a.Ref)
	}
}

// Plan is the ordered, deterministic action list for one run.
type Plan struct {
	Mode    Mode
	Actions []Action
}

// Build computes the plan for the given snapshot. Every Replace/Remove in
// the result precedes any Install, so backups always complete before new
// payloads land; within each group actions are sorted by extension id.
func Build(m *manifest.Manifest, state *scanner.State, filter extension.Filter, mode Mode) *Plan {
	desired := make([]manifest.Entry, 0, len(m.Entries))
	desiredIDs := make(map[string]bool, len(m.Entries))
	for _, e := range m.Entries {
		if !filter.Admits(e.Ref) {
			continue
		}
		desired = append(desired, e)
		desiredIDs[e.Ref.ID()] = true
	}
	sort.Slice(desired, func(i, j int) bool {
		return desired[i].Ref.ID() < desired[j].Ref.ID()
	})

	var mutations, installs, skips []Action

	for _, e := range desired {
		resident, installed := state.ByID[e.Ref.ID()]
		switch {
		case !installed:
			installs = append(installs, Action{Op: OpInstall, Ref: e.Ref, Entry: e})
		case resident.Ref.Version == e.Ref.Version:
			skips = append(skips, Action{
				Op: OpSkip, Ref: e.Ref, Installed: resident,
				Reason: "already installed",
			})
		case mode == ModeNone:
			skips = append(skips, Action{
				Op: OpSkip, Ref: e.Ref, Installed: resident,
				Reason: "replace disabled",
			})
		default: // ModeReplace, ModeClean
			mutations = append(mutations, Action{
				Op: OpReplace, Ref: e.Ref, Entry: e, Installed: resident,
			})
		}
	}

	if mode == ModeClean {
		mutations = append(mutations, cleanRemovals(state, desiredIDs, filter)...)
		sort.SliceStable(mutations, func(i, j int) bool {
			return mutations[i].Subject().ID() < mutations[j].Subject().ID()
		})
	}

	actions := make([]Action, 0, len(mutations)+len(installs)+len(skips))
	actions = append(actions, mutations...)
	actions = append(actions, installs...)
	actions = append(actions, skips...)

	return &Plan{Mode: mode, Actions: actions}
}

// cleanRemovals emits Remove actions for every resident extension the
// desired set does not cover, plus orphaned duplicate-version directories.
// Filter-excluded extensions are never wipe targets.
func cleanRemovals(state *scanner.State, desiredIDs map[string]bool, filter extension.Filter) []Action {
	var removals []Action

	ids := make([]string, 0, len(state.ByID))
	for id := range state.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		resident := state.ByID[id]
		if desiredIDs[id] || filter.Excludes(resident.Ref) {
			continue
		}
		removals = append(removals, Action{Op: OpRemove, Installed: resident})
	}

	for _, orphan := range state.Orphans {
		if filter.Excludes(orphan.Ref) {
			continue
		}
		removals = append(removals, Action{Op: OpRemove, Installed: orphan})
	}

	return removals
}
