// Copyright 2020 Erin Shepherd
// SPDX-License-Identifier: ISC

package tags

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	ndrinterfaces "go.e43.eu/ndr/interfaces"
)

// NDRTag represents a decoded NDR struct tag. It is a sequence of tag entries, where
// each one applies to the corresponding "layer" when multiple Go type definitions are
// nested on a field.
//
// As an example, consider the struct field:
//    Foo []*Bar `ndr:"unique/relative"`
//
// This contains two layers of type:
//    * The slice, which is marshalled as a unique pointer to a conformant array
//    * The *Bar elements, each marshalled as a relative pointer
//
// Pointer kinds (inline, unique, ref, full, relative, short_relative) are prefixes: they
// do not consume a layer, and are followed by the entry for the layer they modify.
// Field scoped entries (flags, subcontext, switch_is) are prefixes in the same way.
//
// There are four kinds of entry:
//   * Flags, e.g. unique, varying. These are encoded as a single byte
//   * Strings, e.g. switch_is. These are encoded as a single byte, followed by the
//     length of the string as a 32-bit integer, followed by the string
//   * Single valued parameters. A flag byte followed by a 32-bit integer
//   * Multi-valued parameters, such as union cases. A flag byte, followed by the number
//     of parameters as a 32-bit integer, followed by that many 32-bit integers
//
// The type of an entry is encoded in the most significant bits:
//   0b00 Tag, no value
//   0b01 Tag with string value
//   0b10 Tag with single 32-bit value (immediately following)
//   0b11 Tag with multiple values
//
// We encode this into a byte slice so that it may be converted into a string and used as a part
// of a map key for codec resolution
type NDRTag []byte
type NDRTagKind byte

const (
	// Kinds without value, starting at 0x00 (0b00xx_xxxx)

	// No-op tag, required to skip a layer. A tag must not contain trailing noops
	Noop NDRTagKind = 0x00 | iota
	// Skip encoding this field (must be the only tag); Go struct tag `ndr:"-"`
	Skip
	// Unique pointer: referent ID in the scalars, target in the buffers
	Unique
	// Reference pointer: never null
	Ref
	// Full pointer: the same pointer always receives the same referent ID
	Full
	// Relative pointer: 32-bit offset from the enclosing structure
	Relative
	// Short relative pointer: 16-bit offset from the enclosing structure
	ShortRelative
	// Slice is a conformant varying array
	Varying
	// Byte slice is a DATA_BLOB (length prefixed, unaligned)
	Blob
	// Union discriminant which is encoded on the wire (encapsulated union)
	UnionSwitch
	// Union discriminant which is supplied by the containing structure
	UnionDiscriminant
	// Union arm used when no case matches
	UnionDefault
	// Pointer or slice marshalled in place of its target, without a referent
	Inline
)

const (
	// Kinds with a string value, starting at 0x40 (0b01xx_xxxx)

	// Name of the sibling field which carries the discriminant of this union
	SwitchIs NDRTagKind = 0x40 | iota
)

const (
	// Kinds with multiple values, starting 0xC0 (0b11xx_xxxx)

	// Union arm used for the specified discriminants
	UnionCases NDRTagKind = 0xC0 | iota
	// Wire flags set while marshalling this field (low word, high word)
	Flags
	// Marshal this field in a subcontext (header size[, size_is])
	Subcontext
)

// Empty returns if this tag is empty
func (t NDRTag) Empty() bool {
	return len(t) == 0
}

// Kind returns the kind of the tag
func (t NDRTag) Kind() NDRTagKind {
	if len(t) > 0 {
		return NDRTagKind(t[0])
	}
	return Noop
}

// IsPointer returns whether this kind is one of the pointer kinds
func (k NDRTagKind) IsPointer() bool {
	switch k {
	case Unique, Ref, Full, Relative, ShortRelative:
		return true
	default:
		return false
	}
}

// valAt returns the 32-bit value at offset `offs`
func (t NDRTag) valAt(offs int) uint32 {
	_ = t[offs+3]
	return uint32(t[offs])<<24 | uint32(t[offs+1])<<16 | uint32(t[offs+2])<<8 | uint32(t[offs+3])
}

// thisLen returns the length (in bytes) of this tag (as encoded)
func (t NDRTag) thisLen() int {
	switch {
	case len(t) == 0:
		return 0
	case t[0] < 0x40:
		return 1
	case t[0] < 0x80:
		return 5 + int(t.valAt(1))
	case t[0] < 0xC0:
		return 5
	default: // t[0] >= C0
		return 5 + int(t.valAt(1))*4
	}
}

// Next returns the next tag in the sequence
func (t NDRTag) Next() NDRTag {
	l := t.thisLen()
	if len(t) == l {
		return NDRTag(nil)
	}
	return NDRTag(t[l:])
}

// Returns the value of string valued options
func (t NDRTag) StringValue() string {
	n := int(t.valAt(1))
	return string(t[5 : 5+n])
}

// Returns the range of values to iterate through to find all values for this tag
//
// for i, n := t.ValueRange(); i < n; i++ {
//     v := t.Value(i)
//
// As is typical for ranges, it's lower-inclusive upper-exclusive
func (t NDRTag) ValueRange() (int, int) {
	switch {
	case t[0] < 0x80:
		return 0, 0
	case t[0] < 0xC0:
		_ = t[4]
		return 0, 1
	default: // t[0] >= 0xC0
		max := 1 + int(t.valAt(1))
		_ = t[4*max]
		return 1, max
	}
}

// Returns the value at index n (which must be in between the range returned by ValueRange)
func (t NDRTag) Value(n int) uint32 {
	return t.valAt(1 + 4*n)
}

// Appends a tag with the specified values to the end of the current tag set
func (t NDRTag) Append(k NDRTagKind, values ...uint32) NDRTag {
	switch {
	case k < 0x40:
		if len(values) != 0 {
			panic(fmt.Sprintf("Attempt to append valueless tag %x with values %v", k, values))
		}
		return NDRTag(append([]byte(t), byte(k)))

	case k < 0x80:
		panic(fmt.Sprintf("Attempt to append string tag %x with integer values", k))

	case k < 0xC0:
		if len(values) != 1 {
			panic(fmt.Sprintf("Attempt to append single-value tag %x with %d values (%v)",
				k, len(values), values))
		}

		v := values[0]
		return NDRTag(append([]byte(t), byte(k), byte(v>>24), byte(v>>16), byte(v>>8), byte(v)))

	default: // k >= 0xC0
		tb := []byte(t)
		nv := uint32(len(values))
		tb = append(tb, byte(k), byte(nv>>24), byte(nv>>16), byte(nv>>8), byte(nv))
		for _, v := range values {
			tb = append(tb, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
		}
		return NDRTag(tb)
	}
}

// Appends a string valued tag
func (t NDRTag) AppendString(k NDRTagKind, s string) NDRTag {
	if k < 0x40 || k >= 0x80 {
		panic(fmt.Sprintf("Attempt to append tag %x with string value", k))
	}

	n := uint32(len(s))
	tb := append([]byte(t), byte(k), byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	return NDRTag(append(tb, s...))
}

// Trimmed returns this tag with any trailing noops removed
func (t NDRTag) Trimmed() NDRTag {
	var e, mark int

	for ct := t; !ct.Empty(); ct = ct.Next() {
		e += ct.thisLen()
		if ct.Kind() != Noop {
			mark = e
		}
	}

	return NDRTag(t[0:mark])
}

// Returns this tag list as a byte slice. It must not be modified
func (t NDRTag) Bytes() []byte {
	return []byte(t)
}

// Returns this tag list as a byte string
func (t NDRTag) ByteString() string {
	return string([]byte(t))
}

// Vaguely pretty prints this tag list (for debugging purposes)
func (t NDRTag) String() string {
	if t.Empty() {
		return "Noop<empty>"
	}

	s := fmt.Sprintf("[%x]", t.Kind())

	switch k := t.Kind(); {
	case k >= 0x40 && k < 0x80:
		s += fmt.Sprintf("(%q)", t.StringValue())
	default:
		i, n := t.ValueRange()
		if i != n {
			pfx := "("
			for ; i < n; i++ {
				s = fmt.Sprintf("%s%s%08x", s, pfx, t.Value(i))
				pfx = ", "
			}
			s += ")"
		}
	}

	nt := t.Next()
	if !nt.Empty() {
		s = fmt.Sprintf("%s;%s", s, nt)
	}

	return s
}

var (
	skipTag = NDRTag([]byte{byte(Skip)})
)

func validForUnionSwitch(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int8,
		reflect.Int16,
		reflect.Int32,
		reflect.Uint8,
		reflect.Uint16,
		reflect.Uint32:
		return true

	default:
		return false
	}
}

func canBePointer(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Slice:
		return true
	default:
		return false
	}
}

// Specifies whether or not we're parsing this type in the direct context of a union
// If this is initially set to MaybeInUnion, then it will be bound to either of the two
// possible values as soon as we find the first indicative tag. If it's one of the two
// definitive values, then we'll never modify it
type IsInUnion int

const (
	// We're possibly in a union (see if we parse a union switch - then we'll know we are)
	MaybeInUnion IsInUnion = iota
	// We're defintely not in a union
	NotInUnion
	// We're definitely in a union
	InUnion
)

// FlagNames maps the names accepted by the `flags:` tag to wire flags
var FlagNames = map[string]ndrinterfaces.Flags{
	"bigendian":                  ndrinterfaces.FlagBigEndian,
	"littleendian":               ndrinterfaces.FlagLittleEndian,
	"noalign":                    ndrinterfaces.FlagNoAlign,
	"align2":                     ndrinterfaces.FlagAlign2,
	"align4":                     ndrinterfaces.FlagAlign4,
	"align8":                     ndrinterfaces.FlagAlign8,
	"remaining":                  ndrinterfaces.FlagRemaining,
	"str_ascii":                  ndrinterfaces.FlagStrASCII,
	"str_len4":                   ndrinterfaces.FlagStrLen4,
	"str_size4":                  ndrinterfaces.FlagStrSize4,
	"str_noterm":                 ndrinterfaces.FlagStrNoTerm,
	"str_nullterm":               ndrinterfaces.FlagStrNullTerm,
	"str_size2":                  ndrinterfaces.FlagStrSize2,
	"str_bytesize":               ndrinterfaces.FlagStrByteSize,
	"str_no_embedded_nul":        ndrinterfaces.FlagStrNoEmbeddedNUL,
	"str_conformant":             ndrinterfaces.FlagStrConformant,
	"str_charlen":                ndrinterfaces.FlagStrCharLen,
	"str_utf8":                   ndrinterfaces.FlagStrUTF8,
	"str_raw8":                   ndrinterfaces.FlagStrRaw8,
	"secret":                     ndrinterfaces.FlagIsSecret,
	"relative_reverse":           ndrinterfaces.FlagRelativeReverse,
	"no_relative_reverse":        ndrinterfaces.FlagNoRelativeReverse,
	"pad_check":                  ndrinterfaces.FlagPadCheck,
	"ndr64":                      ndrinterfaces.FlagNDR64,
	"subcontext_no_unread_bytes": ndrinterfaces.FlagSubcontextNoUnreadBytes,
	"relative_no_backward":       ndrinterfaces.FlagRelativeNoBackward,
}

// ParseFlags parses a `|` separated list of flag names or numbers
func ParseFlags(s string) (ndrinterfaces.Flags, error) {
	var f ndrinterfaces.Flags
	for _, n := range strings.Split(s, "|") {
		n = strings.TrimSpace(n)
		if v, ok := FlagNames[n]; ok {
			f |= v
			continue
		}

		v, err := strconv.ParseUint(n, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("Unknown flag '%s'", n)
		}
		f |= ndrinterfaces.Flags(v)
	}
	return f, nil
}

// Parse a struct tag to be applied to the specified type
func ParseStructTag(
	t reflect.Type,
	rtag reflect.StructTag,
	isUnion *IsInUnion,
) (NDRTag, error) {
	return ParseTag(t, rtag.Get("ndr"), isUnion)
}

func parseU32(s string) (uint32, error) {
	u64, err := strconv.ParseUint(s, 0, 32)
	return uint32(u64), err
}

func parseU32s(s string) ([]uint32, error) {
	vals := strings.Split(s, ",")
	u32s := make([]uint32, 0, len(vals))
	for _, v := range vals {
		u32, err := parseU32(strings.TrimSpace(v))
		if err != nil {
			return nil, err
		}
		u32s = append(u32s, u32)
	}
	return u32s, nil
}

var pointerKinds = map[string]NDRTagKind{
	"unique":         Unique,
	"ref":            Ref,
	"full":           Full,
	"relative":       Relative,
	"short_relative": ShortRelative,
	"inline":         Inline,
}

func isFieldScoped(p string) bool {
	return strings.HasPrefix(p, "flags:") ||
		strings.HasPrefix(p, "subcontext:") ||
		strings.HasPrefix(p, "switch_is:")
}

// Parses the body of an NDR tag
func ParseTag(
	t reflect.Type,
	stags string,
	isUnion *IsInUnion,
) (
	xt NDRTag,
	err error,
) {
	stags = strings.TrimSpace(stags)

	switch stags {
	case "-":
		return skipTag, nil
	}

	parts := strings.Split(stags, "/")

	// Handle union related matters. Union related tags are special because they
	// (a) always come first in the composite tag, and (b) don't relate to a specific
	// type in the stack (so we should not pop a type)
	if strings.HasPrefix(parts[0], "union:") {
		p := parts[0]
		parts = parts[1:]

		switch {
		case p == "union:switch" || p == "union:discriminant":
			if *isUnion != MaybeInUnion {
				return xt, errors.New("Found field annotated with `" + p + "` tag which is not legal in a struct which is not a union or already has a switch")
			}

			if !validForUnionSwitch(t) {
				return xt, fmt.Errorf("Type %s not legal for union switch", t)
			}

			*isUnion = InUnion
			if p == "union:switch" {
				xt = xt.Append(UnionSwitch)
			} else {
				xt = xt.Append(UnionDiscriminant)
			}

		case *isUnion != InUnion:
			return xt, fmt.Errorf("'%s' union tag not valid as we are not inside a union", p)

		case p == "union:false":
			xt = xt.Append(UnionCases, 0)
		case p == "union:true":
			xt = xt.Append(UnionCases, 1)
		case p == "union:default":
			xt = xt.Append(UnionDefault)
		default:
			vals, err := parseU32s(strings.TrimPrefix(p, "union:"))
			if err != nil {
				return xt, fmt.Errorf("Parsing `union:` values: %v", err)
			}

			xt = xt.Append(UnionCases, vals...)
		}
	} else if *isUnion == InUnion {
		return xt, errors.New("Every field inside a union struct must have a `union:` leading tag")
	} else {
		*isUnion = NotInUnion
	}

	// Field scoped entries apply to the field as a whole. switch_is always goes
	// first so that the containing struct can find it easily
	var (
		switchIs string
		scoped   NDRTag
	)
	for len(parts) > 0 && isFieldScoped(strings.TrimSpace(parts[0])) {
		p := strings.TrimSpace(parts[0])
		parts = parts[1:]

		switch {
		case strings.HasPrefix(p, "switch_is:"):
			switchIs = strings.TrimSpace(p[len("switch_is:"):])
			if switchIs == "" {
				return xt, errors.New("`switch_is:` requires a field name")
			}

		case strings.HasPrefix(p, "flags:"):
			f, err := ParseFlags(p[len("flags:"):])
			if err != nil {
				return xt, fmt.Errorf("Parsing `flags:` tag: %v", err)
			}
			scoped = scoped.Append(Flags, uint32(f), uint32(f>>32))

		case strings.HasPrefix(p, "subcontext:"):
			vals, err := parseU32s(p[len("subcontext:"):])
			if err != nil {
				return xt, fmt.Errorf("Parsing `subcontext:` tag: %v", err)
			}

			switch {
			case len(vals) > 2:
				return xt, fmt.Errorf("`subcontext:` takes a header size and an optional size, got %v", vals)
			case vals[0] != 0 && vals[0] != 2 && vals[0] != 4 &&
				vals[0] != ndrinterfaces.SubcontextTypeSerialization:
				return xt, fmt.Errorf("Invalid subcontext header size %d", vals[0])
			}
			scoped = scoped.Append(Subcontext, vals...)
		}
	}
	if switchIs != "" {
		xt = xt.AppendString(SwitchIs, switchIs)
	}
	xt = append(xt, scoped...)

	// Next we should handle each of the tags which may correspond to one or more layers of
	// types
	for i, n := 0, len(parts); i < n; i++ {
		p := strings.TrimSpace(parts[i])
		mods := strings.Split(p, ",")

		// Pointer modifiers are prefixes to the layer entry
		layer := ""
		for j, m := range mods {
			m = strings.TrimSpace(m)
			k, isPtr := pointerKinds[m]
			switch {
			case isPtr:
				if !canBePointer(t) {
					return xt, fmt.Errorf("Type %s cannot be '%s'", t, m)
				}
				xt = xt.Append(k)
			case j != len(mods)-1:
				return xt, fmt.Errorf("'%s' must be the last modifier of '%s'", m, p)
			default:
				layer = m
			}
		}

		switch {
		case layer == "":
			xt = xt.Append(Noop)

		case layer == "varying":
			if t.Kind() != reflect.Slice {
				return xt, fmt.Errorf("Type %s cannot be 'varying'", t)
			}
			xt = xt.Append(Varying)

		case layer == "blob":
			if t.Kind() != reflect.Slice || t.Elem().Kind() != reflect.Uint8 {
				return xt, fmt.Errorf("'blob' label applied to %s, but only applicable to []byte", t)
			}
			xt = xt.Append(Blob)

		case isFieldScoped(layer):
			return xt, fmt.Errorf("'%s' must precede any type tags", layer)

		default:
			return xt, fmt.Errorf("Unknown NDR tag '%s'", layer)
		}

		// Descend one level through the types
		if i+1 != n {
			switch t.Kind() {
			case reflect.Array, reflect.Ptr, reflect.Slice:
				t = t.Elem()

			default:
				return xt, fmt.Errorf("Trailing tags (%v) after reaching type %s", parts[i+1:], t)
			}
		}
	}

	return xt.Trimmed(), nil
}
