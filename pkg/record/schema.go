// Package record defines the fixed-width binary record format shared by the
// ring buffer regions. A record is an ordered list of named fields; string
// values are UTF-8, cut to the field width without splitting a codepoint and
// right-padded with spaces.
package record

import "strings"

// Field is one fixed-width slot in a record.
type Field struct {
	Name string
	Size int
}

// Schema is an ordered, immutable field list. The wire layout is the fields
// concatenated in declaration order with no gaps, so the record size never
// changes once a schema is in use (no schema evolution).
type Schema struct {
	fields []Field
	size   int
}

func NewSchema(fields ...Field) Schema {
	total := 0
	for _, f := range fields {
		total += f.Size
	}
	return Schema{fields: fields, size: total}
}

// Size returns the packed byte width of one record.
func (s Schema) Size() int { return s.size }

func (s Schema) Fields() []Field { return s.fields }

// Pack serializes the named values into the fixed layout. Overlong values
// are cut at a codepoint boundary; missing fields pack as all spaces.
func (s Schema) Pack(values map[string]string) []byte {
	out := make([]byte, 0, s.size)
	for _, f := range s.fields {
		v := truncateField(values[f.Name], f.Size)
		out = append(out, v...)
		for pad := f.Size - len(v); pad > 0; pad-- {
			out = append(out, ' ')
		}
	}
	return out
}

// Unpack decodes one packed record into its field map, stripping the space
// padding. data must be exactly Size() bytes.
func (s Schema) Unpack(data []byte) map[string]string {
	values := make(map[string]string, len(s.fields))
	off := 0
	for _, f := range s.fields {
		values[f.Name] = strings.TrimRight(string(data[off:off+f.Size]), " ")
		off += f.Size
	}
	return values
}

// truncateField cuts v to at most size bytes, backing off so a multi-byte
// codepoint is never split.
func truncateField(v string, size int) string {
	if len(v) <= size {
		return v
	}
	end := size
	for end > 0 && v[end]&0xC0 == 0x80 {
		end--
	}
	return v[:end]
}
