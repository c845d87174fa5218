// Package canonical implements deterministic field selection and encoding
// for hashing and signing. Two structurally equal documents produced by
// different code paths canonicalize to identical bytes: field order is
// lexicographic over field names, nested objects are encoded recursively with
// the same rule, and no step depends on map iteration order.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jacsproject/jacs-go/interfaces"
)

// Mode selects which fields of a document participate in an operation.
type Mode int

const (
	// ModeDigest covers every field except the integrity digest itself and
	// the signature-bearing fields.
	ModeDigest Mode = iota

	// ModeSign covers the fields a signature is computed over. A signature
	// can never cover itself, the other signature bodies, or the integrity
	// digest (which is computed after signing).
	ModeSign
)

// digestExcluded holds the fields outside the integrity digest scope: the
// digest itself and the signature bodies.
var digestExcluded = map[string]struct{}{
	interfaces.FieldSha256:       {},
	interfaces.FieldSignature:    {},
	interfaces.FieldRegistration: {},
	interfaces.FieldAgreement:    {},
}

// signExcluded additionally leaves out the agreement hash: attaching an
// agreement to an already-signed document must not invalidate the author's
// signature, while the integrity digest is recomputed on every mutation.
var signExcluded = map[string]struct{}{
	interfaces.FieldSha256:        {},
	interfaces.FieldSignature:     {},
	interfaces.FieldRegistration:  {},
	interfaces.FieldAgreement:     {},
	interfaces.FieldAgreementHash: {},
}

// termsExcluded extends the signing exclusions with version/status metadata
// so that status changes never invalidate prior consent.
var termsExcluded = map[string]struct{}{
	interfaces.FieldSha256:          {},
	interfaces.FieldSignature:       {},
	interfaces.FieldRegistration:    {},
	interfaces.FieldAgreement:       {},
	interfaces.FieldAgreementHash:   {},
	interfaces.FieldVersion:         {},
	interfaces.FieldVersionDate:     {},
	interfaces.FieldPreviousVersion: {},
}

// Fields returns the lexicographically ordered field names of doc included
// in the given mode's scope. Returns an error wrapping
// interfaces.ErrCanonicalization when a required header field is absent.
func Fields(doc map[string]any, mode Mode) ([]string, error) {
	if err := CheckHeader(doc); err != nil {
		return nil, err
	}

	skipSet := digestExcluded
	if mode == ModeSign {
		skipSet = signExcluded
	}

	names := make([]string, 0, len(doc))
	for name := range doc {
		if _, skip := skipSet[name]; skip {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// TermsFields returns the ordered field names constituting a document's
// substantive terms. statusFields names additional per-document-type fields
// to exclude (status markers that must not bind consent).
func TermsFields(doc map[string]any, statusFields []string) ([]string, error) {
	if err := CheckHeader(doc); err != nil {
		return nil, err
	}

	status := make(map[string]struct{}, len(statusFields))
	for _, name := range statusFields {
		status[name] = struct{}{}
	}

	names := make([]string, 0, len(doc))
	for name := range doc {
		if _, skip := termsExcluded[name]; skip {
			continue
		}
		if _, skip := status[name]; skip {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CheckHeader verifies the required header fields are present and non-empty.
func CheckHeader(doc map[string]any) error {
	for _, name := range interfaces.RequiredHeaderFields {
		value, ok := doc[name]
		if !ok {
			return fmt.Errorf("%w: missing header field %q", interfaces.ErrCanonicalization, name)
		}
		s, isString := value.(string)
		if !isString || s == "" {
			return fmt.Errorf("%w: header field %q must be a non-empty string", interfaces.ErrCanonicalization, name)
		}
	}
	return nil
}

// DigestFields computes the SHA-256 digest over the named fields of doc.
// The field list is sorted before encoding so callers may pass a signature's
// stored covered-field list as-is. Fields absent from doc are omitted from
// the encoding, which makes a deleted covered field detectable as a mismatch.
func DigestFields(doc map[string]any, fields []string) (interfaces.Digest, error) {
	names := make([]string, len(fields))
	copy(names, fields)
	sort.Strings(names)

	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, name := range names {
		value, ok := doc[name]
		if !ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false

		key, err := json.Marshal(name)
		if err != nil {
			return interfaces.Digest{}, fmt.Errorf("%w: %v", interfaces.ErrCanonicalization, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := encode(&buf, value); err != nil {
			return interfaces.Digest{}, fmt.Errorf("%w: field %q: %v", interfaces.ErrCanonicalization, name, err)
		}
	}
	buf.WriteByte('}')

	return interfaces.ComputeDigest(buf.Bytes()), nil
}

// HashDocument canonicalizes doc in the given mode and digests it.
// Returns the digest together with the field list it covers.
func HashDocument(doc map[string]any, mode Mode) (interfaces.Digest, []string, error) {
	fields, err := Fields(doc, mode)
	if err != nil {
		return interfaces.Digest{}, nil, err
	}
	digest, err := DigestFields(doc, fields)
	if err != nil {
		return interfaces.Digest{}, nil, err
	}
	return digest, fields, nil
}

// Decode parses serialized JSON into a document map. Numbers are kept as
// json.Number so their exact wire text survives a decode/encode round trip;
// a float64 detour would change the canonical bytes and break digests.
func Decode(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid document JSON: %w", err)
	}
	return doc, nil
}

// Marshal encodes v canonically: compact JSON with object keys sorted
// lexicographically at every nesting level.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch value := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil

	case map[string]any:
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := encode(buf, value[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case []any:
		buf.WriteByte('[')
		for i, elem := range value {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case json.Number:
		buf.WriteString(value.String())
		return nil

	default:
		// Scalars encode directly. Anything composite (structs, typed maps
		// or slices) is normalized through a JSON round-trip so its keys get
		// the same sorted treatment.
		b, err := json.Marshal(value)
		if err != nil {
			return err
		}
		if len(b) > 0 && (b[0] == '{' || b[0] == '[') {
			var normalized any
			dec := json.NewDecoder(bytes.NewReader(b))
			dec.UseNumber()
			if err := dec.Decode(&normalized); err != nil {
				return err
			}
			return encode(buf, normalized)
		}
		buf.Write(b)
		return nil
	}
}
