package ir

import "fmt"

// Type represents a PPL type. Types are value objects: two types describing
// the same shape compare equal field-by-field, there is no interning.
type Type interface {
	String() string
	typ()
}

func (BitsType) typ()   {}
func (BoolType) typ()   {}
func (VarbitType) typ() {}
func (*StructType) typ() {}
func (ErrorType) typ()  {}
func (VoidType) typ()   {}
func (StringType) typ() {}

// BitsType is a fixed-width bitvector, signed or unsigned.
type BitsType struct {
	Width  uint
	Signed bool
}

func (t BitsType) String() string {
	if t.Signed {
		return fmt.Sprintf("int<%d>", t.Width)
	}
	return fmt.Sprintf("bit<%d>", t.Width)
}

// BoolType is the distinguished boolean type. It is never interchangeable
// with bit<1> at the type level, though both occupy a single bit in the
// solver encoding.
type BoolType struct{}

func (BoolType) String() string { return "bool" }

// VarbitType is a variable-width bitvector bounded by Max bits.
type VarbitType struct {
	Max uint
}

func (t VarbitType) String() string { return fmt.Sprintf("varbit<%d>", t.Max) }

// Field is a named, typed member of a StructType.
type Field struct {
	Name string
	Type Type
}

// StructType describes an aggregate of named fields. A header is a
// StructType with HasValidBit set: it carries an implicit boolean validity
// bit that is not itself one of Fields.
type StructType struct {
	Name        string
	Fields      []Field
	HasValidBit bool
}

func (t *StructType) String() string {
	if t.HasValidBit {
		return "header " + t.Name
	}
	return "struct " + t.Name
}

// FieldType returns the type of the named field, or nil if it does not
// exist.
func (t *StructType) FieldType(name string) Type {
	for _, f := range t.Fields {
		if f.Name == name {
			return f.Type
		}
	}
	return nil
}

// ErrorType is the PPL error enumeration type; Name identifies the
// particular enumerator set (there is conventionally a single global one,
// but the type is kept distinct from a plain string for clarity at use
// sites such as TypeNameExpression).
type ErrorType struct {
	Name string
}

func (t ErrorType) String() string { return "error" }

// VoidType is the type of statements and of calls with no return value.
type VoidType struct{}

func (VoidType) String() string { return "void" }

// StringType is the type of compile-time string literals (table
// annotations, trace messages). It never appears on the wire to the solver.
type StringType struct{}

func (StringType) String() string { return "string" }

// TypeWidth returns the bit width a type occupies in the solver encoding.
// It panics on types with no fixed bit-level encoding (StructType, VoidType,
// StringType) — callers must destructure aggregates to their leaf fields
// first.
func TypeWidth(t Type) uint {
	switch t := t.(type) {
	case BitsType:
		return t.Width
	case BoolType:
		return WidthBool
	case VarbitType:
		return t.Max
	case ErrorType:
		return Width32
	default:
		panic(fmt.Sprintf("ir: type %v has no fixed bit width", t))
	}
}

// TypesEqual reports whether two types describe the same shape.
func TypesEqual(a, b Type) bool {
	switch a := a.(type) {
	case BitsType:
		b, ok := b.(BitsType)
		return ok && a == b
	case BoolType:
		_, ok := b.(BoolType)
		return ok
	case VarbitType:
		b, ok := b.(VarbitType)
		return ok && a == b
	case *StructType:
		b, ok := b.(*StructType)
		if !ok || a.Name != b.Name || a.HasValidBit != b.HasValidBit || len(a.Fields) != len(b.Fields) {
			return false
		}
		for i, f := range a.Fields {
			if f.Name != b.Fields[i].Name || !TypesEqual(f.Type, b.Fields[i].Type) {
				return false
			}
		}
		return true
	case ErrorType:
		b, ok := b.(ErrorType)
		return ok && a == b
	case VoidType:
		_, ok := b.(VoidType)
		return ok
	case StringType:
		_, ok := b.(StringType)
		return ok
	default:
		return false
	}
}
