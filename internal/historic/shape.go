package historic

// Shape is the definition of a named legacy type.
type Shape interface {
	isShape()
}

// Alias resolves to another type.
type Alias struct {
	Target LookupName
}

// Struct is a sequence of named fields.
type Struct struct {
	Fields []Field
}

// Tuple is a sequence of unnamed fields. The empty tuple is the unit type.
type Tuple struct {
	Elems []LookupName
}

// Enum is a tagged union selected by a one byte index.
type Enum struct {
	Variants []Variant
}

// BitFlags is a set of named flags packed into an unsigned integer.
type BitFlags struct {
	Bits  int
	Flags []Flag
}

// Field is a struct field or enum variant field. Name is empty for
// positional fields.
type Field struct {
	Name string
	Type LookupName
}

// Variant is one enum case.
type Variant struct {
	Index  uint8
	Name   string
	Fields []Field
}

// Flag is one named bit mask of a BitFlags type.
type Flag struct {
	Name string
	Mask uint64
}

func (Alias) isShape()    {}
func (Struct) isShape()   {}
func (Tuple) isShape()    {}
func (Enum) isShape()     {}
func (BitFlags) isShape() {}

func (e Enum) variant(index uint8) (Variant, bool) {
	for _, v := range e.Variants {
		if v.Index == index {
			return v, true
		}
	}
	return Variant{}, false
}

func (v Variant) named() bool {
	return len(v.Fields) > 0 && v.Fields[0].Name != ""
}
