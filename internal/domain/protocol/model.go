package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type tags the four fixed protocol forms plus a free-form custom record.
type Type string

const (
	TypeStandard    Type = "standard"
	TypeIRI         Type = "iri"
	TypeCIPOS       Type = "cipos"
	TypeSichererOrt Type = "sicherer-ort"
	TypeCustom      Type = "custom"
)

// ErrUnknownType signals a tag outside the known set. Hitting it from
// user-facing code is a programmer error, not a user error.
var ErrUnknownType = errors.New("unknown protocol type")

// KnownTypes lists every valid tag in display order.
func KnownTypes() []Type {
	return []Type{TypeStandard, TypeIRI, TypeCIPOS, TypeSichererOrt, TypeCustom}
}

// Valid reports whether t is one of the known tags.
func (t Type) Valid() bool {
	switch t {
	case TypeStandard, TypeIRI, TypeCIPOS, TypeSichererOrt, TypeCustom:
		return true
	}
	return false
}

// Label returns the German display name used in confirmations and exports.
func (t Type) Label() string {
	switch t {
	case TypeStandard:
		return "Standardprotokoll"
	case TypeIRI:
		return "IRI"
	case TypeCIPOS:
		return "CIPOS"
	case TypeSichererOrt:
		return "Sicherer Ort"
	case TypeCustom:
		return "Eigenes Protokoll"
	}
	return string(t)
}

// Metadata is shared by every variant. Datum is the session date in
// YYYY-MM-DD form; it is a clinical label, not a timestamp.
type Metadata struct {
	ID              string    `json:"id"`
	Chiffre         string    `json:"chiffre"`
	Datum           string    `json:"datum"`
	Protokollnummer string    `json:"protokollnummer"`
	ProtocolType    Type      `json:"protocolType"`
	CreatedAt       time.Time `json:"createdAt"`
	LastModified    time.Time `json:"lastModified"`
}

// DatumLayout is the wire format for Metadata.Datum.
const DatumLayout = "2006-01-02"

// Geschwindigkeit is the bilateral stimulation speed for a channel item.
type Geschwindigkeit string

const (
	GeschwindigkeitLangsam Geschwindigkeit = "langsam"
	GeschwindigkeitMittel  Geschwindigkeit = "mittel"
	GeschwindigkeitSchnell Geschwindigkeit = "schnell"
)

// Stimulation describes one set of bilateral stimulation.
type Stimulation struct {
	AnzahlBewegungen int             `json:"anzahlBewegungen"`
	Geschwindigkeit  Geschwindigkeit `json:"geschwindigkeit"`
}

// Fragment is what the patient reports after a stimulation set.
type Fragment struct {
	Text      string `json:"text"`
	Einwebung string `json:"einwebung,omitempty"`
	Notizen   string `json:"notizen,omitempty"`
}

// ChannelItem pairs a stimulation set with the reported fragment.
type ChannelItem struct {
	Stimulation Stimulation `json:"stimulation"`
	Fragment    Fragment    `json:"fragment"`
}

// StandardData is the classic reprocessing protocol: a start node and the
// ordered channel of stimulation/fragment pairs.
type StandardData struct {
	StartKnoten string        `json:"startKnoten"`
	Channel     []ChannelItem `json:"channel"`
}

// IRISet is a single stimulation set within an IRI session, carrying its own
// LOPE score.
type IRISet struct {
	Dauer   string `json:"dauer,omitempty"`
	Lope    int    `json:"lope"`
	Notizen string `json:"notizen,omitempty"`
}

// IRIBilateraleStimulation groups the stimulation modality with its sets.
type IRIBilateraleStimulation struct {
	Typ  string   `json:"typ"`
	Sets []IRISet `json:"sets"`
}

// IRIData covers the nine sections of the IRI (Imagery Rescripting) form.
// LOPE values are 0-10.
type IRIData struct {
	Indikation              string                   `json:"indikation"`
	PositiverMoment         string                   `json:"positiverMoment"`
	Koerperwahrnehmung      string                   `json:"koerperwahrnehmung"`
	LopeVorher              int                      `json:"lopeVorher"`
	BilateraleStimulation   IRIBilateraleStimulation `json:"bilateraleStimulation"`
	LopeNachher             int                      `json:"lopeNachher"`
	RessourcenEinschaetzung string                   `json:"ressourcenEinschaetzung"`
	Abschluss               string                   `json:"abschluss"`
	Notizen                 string                   `json:"notizen,omitempty"`
}

// CIPOSDurchgang is one pass of the CIPOS pendulation. Nummer is derived:
// always the 1-based position within Durchgaenge.
type CIPOSDurchgang struct {
	Nummer           int    `json:"nummer"`
	AnzahlBewegungen int    `json:"anzahlBewegungen"`
	Rueckmeldung     string `json:"rueckmeldung,omitempty"`
	SUD              int    `json:"sud"`
}

// MaxDurchgaenge caps the number of CIPOS passes per session.
const MaxDurchgaenge = 3

// CIPOSData covers the eight sections of the CIPOS form.
type CIPOSData struct {
	Belastungssituation string           `json:"belastungssituation"`
	SUDVorher           int              `json:"sudVorher"`
	OrtDerSicherheit    string           `json:"ortDerSicherheit"`
	Durchgaenge         []CIPOSDurchgang `json:"durchgaenge"`
	SUDNachher          int              `json:"sudNachher"`
	Koerperreaktion     string           `json:"koerperreaktion"`
	Abschluss           string           `json:"abschluss"`
	Notizen             string           `json:"notizen,omitempty"`
}

// AddDurchgang appends a pass and renumbers. A fourth pass is rejected.
func (d *CIPOSData) AddDurchgang(dg CIPOSDurchgang) error {
	if len(d.Durchgaenge) >= MaxDurchgaenge {
		return fmt.Errorf("at most %d durchgaenge allowed", MaxDurchgaenge)
	}
	d.Durchgaenge = append(d.Durchgaenge, dg)
	d.renumber()
	return nil
}

// RemoveDurchgang deletes the pass at index i and renumbers. Out-of-range
// indices are a no-op.
func (d *CIPOSData) RemoveDurchgang(i int) {
	if i < 0 || i >= len(d.Durchgaenge) {
		return
	}
	d.Durchgaenge = append(d.Durchgaenge[:i], d.Durchgaenge[i+1:]...)
	d.renumber()
}

func (d *CIPOSData) renumber() {
	for i := range d.Durchgaenge {
		d.Durchgaenge[i].Nummer = i + 1
	}
}

// SichererOrtData covers the nine sections of the Sicherer-Ort installation.
// The later sections only apply depending on earlier answers; that branching
// is a presentation concern, storage keeps them all optional.
type SichererOrtData struct {
	OrtBeschreibung         string `json:"ortBeschreibung"`
	Sinneseindruecke        string `json:"sinneseindruecke"`
	Emotionen               string `json:"emotionen"`
	Koerperwahrnehmung      string `json:"koerperwahrnehmung"`
	StoerungenVorhanden     bool   `json:"stoerungenVorhanden"`
	StoerungenBeschreibung  string `json:"stoerungenBeschreibung,omitempty"`
	BilateraleStimulation   string `json:"bilateraleStimulation"`
	Schluesselwort          string `json:"schluesselwort"`
	Alltagstransfer         string `json:"alltagstransfer"`
}

// Protocol is the tagged union. Exactly the body matching ProtocolType is
// non-nil; the others stay nil. Unknown top-level JSON fields survive a
// round trip through Extra so the store never drops client data.
type Protocol struct {
	Metadata
	Standard    *StandardData          `json:"standard,omitempty"`
	IRI         *IRIData               `json:"iri,omitempty"`
	CIPOS       *CIPOSData             `json:"cipos,omitempty"`
	SichererOrt *SichererOrtData       `json:"sichererOrt,omitempty"`
	Custom      map[string]interface{} `json:"custom,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// NewDraft builds a default-valued draft of the given type carrying the given
// metadata. The metadata's ProtocolType is overwritten with t; type-specific
// sections start from their empty state.
func NewDraft(t Type, meta Metadata) (*Protocol, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	meta.ProtocolType = t
	p := &Protocol{Metadata: meta}
	switch t {
	case TypeStandard:
		p.Standard = &StandardData{Channel: []ChannelItem{}}
	case TypeIRI:
		p.IRI = &IRIData{BilateraleStimulation: IRIBilateraleStimulation{Sets: []IRISet{}}}
	case TypeCIPOS:
		p.CIPOS = &CIPOSData{Durchgaenge: []CIPOSDurchgang{}}
	case TypeSichererOrt:
		p.SichererOrt = &SichererOrtData{}
	case TypeCustom:
		p.Custom = map[string]interface{}{}
	}
	return p, nil
}

// Body returns the variant body matching the tag, or nil for an untyped or
// inconsistent record.
func (p *Protocol) Body() interface{} {
	switch p.ProtocolType {
	case TypeStandard:
		if p.Standard != nil {
			return p.Standard
		}
	case TypeIRI:
		if p.IRI != nil {
			return p.IRI
		}
	case TypeCIPOS:
		if p.CIPOS != nil {
			return p.CIPOS
		}
	case TypeSichererOrt:
		if p.SichererOrt != nil {
			return p.SichererOrt
		}
	case TypeCustom:
		if p.Custom != nil {
			return p.Custom
		}
	}
	return nil
}

// HasBodyContent reports whether the draft carries any type-specific data a
// user could lose on a type switch. A freshly constructed default draft has
// none.
func (p *Protocol) HasBodyContent() bool {
	switch {
	case p.Standard != nil:
		return p.Standard.StartKnoten != "" || len(p.Standard.Channel) > 0
	case p.IRI != nil:
		d := p.IRI
		return d.Indikation != "" || d.PositiverMoment != "" || d.Koerperwahrnehmung != "" ||
			d.LopeVorher != 0 || d.LopeNachher != 0 ||
			d.BilateraleStimulation.Typ != "" || len(d.BilateraleStimulation.Sets) > 0 ||
			d.RessourcenEinschaetzung != "" || d.Abschluss != "" || d.Notizen != ""
	case p.CIPOS != nil:
		d := p.CIPOS
		return d.Belastungssituation != "" || d.SUDVorher != 0 || d.OrtDerSicherheit != "" ||
			len(d.Durchgaenge) > 0 || d.SUDNachher != 0 || d.Koerperreaktion != "" ||
			d.Abschluss != "" || d.Notizen != ""
	case p.SichererOrt != nil:
		d := p.SichererOrt
		return d.OrtBeschreibung != "" || d.Sinneseindruecke != "" || d.Emotionen != "" ||
			d.Koerperwahrnehmung != "" || d.StoerungenVorhanden || d.StoerungenBeschreibung != "" ||
			d.BilateraleStimulation != "" || d.Schluesselwort != "" || d.Alltagstransfer != ""
	case p.Custom != nil:
		return len(p.Custom) > 0
	}
	return false
}

// ListItem is the denormalized summary projection kept in the index.
type ListItem struct {
	ID              string    `json:"id"`
	Chiffre         string    `json:"chiffre"`
	Datum           string    `json:"datum"`
	Protokollnummer string    `json:"protokollnummer"`
	ProtocolType    Type      `json:"protocolType"`
	LastModified    time.Time `json:"lastModified"`
}

// Summary derives the list item for p. After a successful save both must
// agree field for field.
func (p *Protocol) Summary() ListItem {
	return ListItem{
		ID:              p.ID,
		Chiffre:         p.Chiffre,
		Datum:           p.Datum,
		Protokollnummer: p.Protokollnummer,
		ProtocolType:    p.ProtocolType,
		LastModified:    p.LastModified,
	}
}

// protocolKnownKeys are the top-level JSON keys owned by the Protocol struct;
// anything else lands in Extra.
var protocolKnownKeys = map[string]bool{
	"id": true, "chiffre": true, "datum": true, "protokollnummer": true,
	"protocolType": true, "createdAt": true, "lastModified": true,
	"standard": true, "iri": true, "cipos": true, "sichererOrt": true,
	"custom": true,
}

type protocolAlias Protocol

// UnmarshalJSON keeps unknown top-level fields in Extra instead of dropping
// them.
func (p *Protocol) UnmarshalJSON(data []byte) error {
	var a protocolAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range raw {
		if protocolKnownKeys[k] {
			delete(raw, k)
		}
	}
	if len(raw) > 0 {
		a.Extra = raw
	}
	*p = Protocol(a)
	return nil
}

// MarshalJSON re-emits preserved unknown fields alongside the known ones.
func (p Protocol) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(protocolAlias(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if !protocolKnownKeys[k] {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// FieldError is a validation failure attached to a single field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors aggregates per-field failures; it is returned before any
// persistence is attempted.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(v))
	for i, fe := range v {
		msgs[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Validate checks the record against the rules that must hold before a save.
// It returns ValidationErrors listing every offending field, never just the
// first one.
func (p *Protocol) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(p.Chiffre) == "" {
		errs = append(errs, FieldError{Field: "chiffre", Message: "chiffre is required"})
	}
	if strings.TrimSpace(p.Datum) == "" {
		errs = append(errs, FieldError{Field: "datum", Message: "datum is required"})
	} else if _, err := time.Parse(DatumLayout, p.Datum); err != nil {
		errs = append(errs, FieldError{Field: "datum", Message: "datum must be YYYY-MM-DD"})
	}
	if strings.TrimSpace(p.Protokollnummer) == "" {
		errs = append(errs, FieldError{Field: "protokollnummer", Message: "protokollnummer is required"})
	}
	if !p.ProtocolType.Valid() {
		errs = append(errs, FieldError{Field: "protocolType", Message: "unknown protocol type"})
		if len(errs) > 0 {
			return errs
		}
	}
	if p.Body() == nil {
		errs = append(errs, FieldError{Field: "protocolType", Message: "record body does not match protocol type"})
		return errs
	}

	switch p.ProtocolType {
	case TypeStandard:
		errs = append(errs, p.Standard.validate()...)
	case TypeIRI:
		errs = append(errs, p.IRI.validate()...)
	case TypeCIPOS:
		errs = append(errs, p.CIPOS.validate()...)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (d *StandardData) validate() ValidationErrors {
	var errs ValidationErrors
	if len(d.Channel) == 0 {
		errs = append(errs, FieldError{Field: "channel", Message: "at least one pair required"})
	}
	for i, item := range d.Channel {
		if item.Stimulation.AnzahlBewegungen <= 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("channel[%d].stimulation.anzahlBewegungen", i),
				Message: "must be a positive number",
			})
		}
	}
	return errs
}

func lopeInRange(v int) bool { return v >= 0 && v <= 10 }

func (d *IRIData) validate() ValidationErrors {
	var errs ValidationErrors
	if !lopeInRange(d.LopeVorher) {
		errs = append(errs, FieldError{Field: "lopeVorher", Message: "LOPE must be between 0 and 10"})
	}
	if !lopeInRange(d.LopeNachher) {
		errs = append(errs, FieldError{Field: "lopeNachher", Message: "LOPE must be between 0 and 10"})
	}
	for i, set := range d.BilateraleStimulation.Sets {
		if !lopeInRange(set.Lope) {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("bilateraleStimulation.sets[%d].lope", i),
				Message: "LOPE must be between 0 and 10",
			})
		}
	}
	return errs
}

func (d *CIPOSData) validate() ValidationErrors {
	var errs ValidationErrors
	if len(d.Durchgaenge) > MaxDurchgaenge {
		errs = append(errs, FieldError{
			Field:   "durchgaenge",
			Message: fmt.Sprintf("at most %d durchgaenge allowed", MaxDurchgaenge),
		})
	}
	for i, dg := range d.Durchgaenge {
		if dg.Nummer != i+1 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("durchgaenge[%d].nummer", i),
				Message: fmt.Sprintf("must equal position %d", i+1),
			})
		}
		if dg.SUD < 0 || dg.SUD > 10 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("durchgaenge[%d].sud", i),
				Message: "SUD must be between 0 and 10",
			})
		}
	}
	return errs
}
