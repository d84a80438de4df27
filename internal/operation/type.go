package operation

// Type is the coarse shape of an operation's input or output, used to
// type-check chains before they run.
type Type int

const (
	TypeVoid Type = iota
	// TypeAny is checked at run time only.
	TypeAny
	TypeElements
	TypeElementIDs
	TypeObjects
	TypeLong
	TypeBoolean
	TypeGroupCounts
	TypeSchema
	TypeJobDetails
	TypeNamedViews
	TypeNamedOperations
	TypeStrings
)

var typeNames = map[Type]string{
	TypeVoid:            "Void",
	TypeAny:             "Any",
	TypeElements:        "Elements",
	TypeElementIDs:      "ElementIDs",
	TypeObjects:         "Objects",
	TypeLong:            "Long",
	TypeBoolean:         "Boolean",
	TypeGroupCounts:     "GroupCounts",
	TypeSchema:          "Schema",
	TypeJobDetails:      "JobDetails",
	TypeNamedViews:      "NamedViews",
	TypeNamedOperations: "NamedOperations",
	TypeStrings:         "Strings",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// Iterable reports whether values of t are collections.
func (t Type) Iterable() bool {
	switch t {
	case TypeElements, TypeElementIDs, TypeObjects, TypeJobDetails, TypeNamedViews, TypeNamedOperations, TypeStrings:
		return true
	}
	return false
}

// AssignableTo reports whether an output of type t can be bound as an input
// of type in. Elements are usable as ids, and every iterable is usable as
// generic objects.
func (t Type) AssignableTo(in Type) bool {
	switch {
	case t == in, in == TypeAny, t == TypeAny:
		return true
	case t == TypeVoid:
		return false
	case in == TypeElementIDs:
		return t == TypeElements || t == TypeObjects
	case in == TypeElements:
		return t == TypeObjects
	case in == TypeObjects:
		return t.Iterable()
	}
	return false
}
