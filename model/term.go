// Package model defines the RDF quad data model shared by every hybrid
// storage component: terms, quads, spaces, graphs, parsed update
// operations, and the dual-write result envelope.
package model

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/google/uuid"
)

// TermKind identifies the lexical class of an RDF term.
type TermKind byte

const (
	KindIRI       TermKind = 'U'
	KindLiteral   TermKind = 'L'
	KindBlankNode TermKind = 'B'
)

func (k TermKind) String() string {
	switch k {
	case KindIRI:
		return "iri"
	case KindLiteral:
		return "literal"
	case KindBlankNode:
		return "blank_node"
	default:
		return "unknown"
	}
}

// Term is one RDF lexical value: an IRI, a literal, or a blank node.
// Identity for hashing purposes is the term value, never its serialized
// wire form, so a literal "1"^^xsd:int and the IRI <1> hash differently
// even though their unwrapped strings collide.
type Term struct {
	Value      string
	Kind       TermKind
	Lang       string // literals only
	DatatypeID string // literals only; the datatype IRI, empty for plain/lang-tagged literals
}

// NewIRI builds an IRI term.
func NewIRI(value string) Term {
	return Term{Value: value, Kind: KindIRI}
}

// NewBlankNode builds a blank node term.
func NewBlankNode(id string) Term {
	return Term{Value: id, Kind: KindBlankNode}
}

// NewLiteral builds a plain or lang-tagged literal term.
func NewLiteral(value, lang string) Term {
	return Term{Value: value, Kind: KindLiteral, Lang: lang}
}

// NewTypedLiteral builds a datatyped literal term.
func NewTypedLiteral(value, datatypeIRI string) Term {
	return Term{Value: value, Kind: KindLiteral, DatatypeID: datatypeIRI}
}

// termIDSeparator delimits the fields hashed into a term's identifier.
// Chosen as the ASCII unit separator: it cannot appear in any of the
// fields it delimits, so the concatenation is injective.
const termIDSeparator = 0x1F

// ID computes the term's deterministic 128-bit identifier from
// (unwrapped value, kind, language, datatype). The algorithm is a
// compile-time constant: SHA-256 of the delimited field concatenation,
// truncated to the first 16 bytes and interpreted as a UUID. Two terms
// compare equal under this identifier iff all four fields are equal.
func (t Term) ID() uuid.UUID {
	h := sha256.New()
	h.Write([]byte(t.Value))
	h.Write([]byte{termIDSeparator})
	h.Write([]byte{byte(t.Kind)})
	h.Write([]byte{termIDSeparator})
	h.Write([]byte(t.Lang))
	h.Write([]byte{termIDSeparator})
	h.Write([]byte(t.DatatypeID))
	sum := h.Sum(nil)
	var id uuid.UUID
	copy(id[:], sum[:16])
	return id
}

// LockKey derives the 64-bit advisory lock key for an entity URI: the
// first 8 bytes of SHA-256(uri), read as a big-endian signed integer.
func LockKey(uri string) int64 {
	sum := sha256.Sum256([]byte(uri))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
