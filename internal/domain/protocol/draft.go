package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EditorState is the coarse state of a draft editor.
type EditorState string

const (
	// StateEditing means exactly one variant editor is mounted for the
	// draft's current type.
	StateEditing EditorState = "editing"
	// StatePendingConfirmation means a type switch is waiting on the
	// therapist's confirmation; the draft is untouched while pending.
	StatePendingConfirmation EditorState = "pending-confirmation"
)

// SwitchOutcome is what a type-switch request produced.
type SwitchOutcome string

const (
	// SwitchNoop: requested type equals the current one, nothing happened.
	SwitchNoop SwitchOutcome = "noop"
	// SwitchApplied: the draft was rebuilt for the new type immediately.
	SwitchApplied SwitchOutcome = "applied"
	// SwitchNeedsConfirmation: a confirmation prompt must be shown before
	// anything changes.
	SwitchNeedsConfirmation SwitchOutcome = "needs-confirmation"
)

// PendingSwitch describes the open confirmation prompt.
type PendingSwitch struct {
	From Type
	To   Type
}

// Prompt is the text shown in the blocking confirmation, naming both types.
func (p PendingSwitch) Prompt() string {
	return fmt.Sprintf("Protokolltyp wechseln: %s → %s? Bereits eingegebene %s-Daten gehen verloren.",
		p.From.Label(), p.To.Label(), p.From.Label())
}

// Editor mediates type switches on a single in-memory draft. The four variant
// shapes share nothing beyond metadata, so a switch never migrates fields: the
// draft is rebuilt from the target type's empty state and only metadata
// crosses the boundary. The confirmation gate only exists for drafts that
// already chose a type; a never-typed draft has nothing to lose and switches
// immediately.
//
// Editors are not safe for concurrent use; every transition completes before
// the next user input is processed.
type Editor struct {
	draft   *Protocol
	typeSet bool
	pending *PendingSwitch

	now   func() time.Time
	newID func() string
}

// NewEditor starts a fresh draft with the given metadata and no type chosen
// yet. Metadata may be partially filled; defaults are applied on the first
// type selection.
func NewEditor(meta Metadata) *Editor {
	return &Editor{
		draft: &Protocol{Metadata: meta},
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// LoadEditor opens an existing record for editing. Its type counts as set, so
// any switch away from it goes through the confirmation gate.
func LoadEditor(p *Protocol) *Editor {
	return &Editor{
		draft:   p,
		typeSet: p.ProtocolType.Valid(),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Draft returns the current draft. While a confirmation is pending this is
// still the old, unmodified draft.
func (e *Editor) Draft() *Protocol { return e.draft }

// State reports whether a confirmation prompt is open.
func (e *Editor) State() EditorState {
	if e.pending != nil {
		return StatePendingConfirmation
	}
	return StateEditing
}

// Pending returns the open switch request, or nil.
func (e *Editor) Pending() *PendingSwitch {
	if e.pending == nil {
		return nil
	}
	ps := *e.pending
	return &ps
}

// CurrentType is the variant editor that is mounted right now.
func (e *Editor) CurrentType() Type { return e.draft.ProtocolType }

// RequestTypeSwitch asks to change the draft's type. Same type is a no-op.
// If no type was ever chosen the switch applies immediately; otherwise the
// editor parks the request and surfaces a confirmation prompt without
// mutating the draft.
func (e *Editor) RequestTypeSwitch(to Type) (SwitchOutcome, error) {
	if !to.Valid() {
		return SwitchNoop, fmt.Errorf("%w: %q", ErrUnknownType, to)
	}
	if e.pending != nil {
		// A prompt is already open; a new request replaces it.
		e.pending = nil
	}
	if e.typeSet && to == e.draft.ProtocolType {
		return SwitchNoop, nil
	}
	if !e.typeSet || !e.draft.HasBodyContent() {
		// Nothing to lose: never-typed drafts and typed-but-empty drafts
		// switch without a prompt.
		if err := e.rebuild(to); err != nil {
			return SwitchNoop, err
		}
		return SwitchApplied, nil
	}
	e.pending = &PendingSwitch{From: e.draft.ProtocolType, To: to}
	return SwitchNeedsConfirmation, nil
}

// Confirm applies the pending switch. The old type's data is discarded for
// good; this is the intended behavior the prompt warned about.
func (e *Editor) Confirm() error {
	if e.pending == nil {
		return fmt.Errorf("no pending type switch to confirm")
	}
	to := e.pending.To
	e.pending = nil
	return e.rebuild(to)
}

// Cancel discards the pending request and leaves the draft unchanged.
func (e *Editor) Cancel() {
	e.pending = nil
}

// rebuild constructs a fresh default draft of the target type and carries the
// metadata over verbatim, filling previously-unset fields: today's date for
// datum, a fresh id. Never a field-by-field patch of variant data.
func (e *Editor) rebuild(to Type) error {
	meta := e.draft.Metadata
	if meta.ID == "" {
		meta.ID = e.newID()
	}
	if meta.Datum == "" {
		meta.Datum = e.now().Format(DatumLayout)
	}
	fresh, err := NewDraft(to, meta)
	if err != nil {
		return err
	}
	e.draft = fresh
	e.typeSet = true
	return nil
}
