// Package export renders a fully-typed protocol into printable PDF or
// canonical JSON byte streams. Export failures are reported to the user and
// never touch persisted state.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/emdr/protokoll/internal/domain/protocol"
)

// JSON produces the canonical JSON form of a protocol: object keys sorted,
// stable across runs, indented for a human reader.
func JSON(p *protocol.Protocol) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode protocol %s: %w", p.ID, err)
	}

	// Round trip through a generic value: encoding/json writes map keys in
	// sorted order, which is the canonical form. UseNumber keeps integers
	// intact.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonicalize protocol %s: %w", p.ID, err)
	}

	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode canonical protocol %s: %w", p.ID, err)
	}
	return out, nil
}
