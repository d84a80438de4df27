package element

import "fmt"

// DirectedType qualifies an edge seed.
type DirectedType string

const (
	DirectedTypeEither     DirectedType = "EITHER"
	DirectedTypeDirected   DirectedType = "DIRECTED"
	DirectedTypeUndirected DirectedType = "UNDIRECTED"
)

// ID is a seed: an entity id (vertex) or an edge id (endpoints plus
// direction).
type ID struct {
	Kind         Kind
	Vertex       any
	Source       any
	Destination  any
	DirectedType DirectedType
}

// EntityID seeds by vertex.
func EntityID(vertex any) ID {
	return ID{Kind: KindEntity, Vertex: vertex}
}

// EdgeID seeds by edge endpoints.
func EdgeID(source, destination any, dt DirectedType) ID {
	if dt == "" {
		dt = DirectedTypeEither
	}
	return ID{Kind: KindEdge, Source: source, Destination: destination, DirectedType: dt}
}

// IsEntityID reports whether the seed is a vertex seed.
func (id ID) IsEntityID() bool { return id.Kind == KindEntity }

// Key is a canonical string form used for de-duplication.
func (id ID) Key() string {
	if id.IsEntityID() {
		return "v=" + ValueKey(id.Vertex)
	}
	return fmt.Sprintf("s=%s|d=%s|%s", ValueKey(id.Source), ValueKey(id.Destination), id.DirectedType)
}

// MatchesEdge reports whether an edge seed identifies e. Undirected and
// either-direction seeds match both orientations.
func (id ID) MatchesEdge(e *Element) bool {
	if id.IsEntityID() || !e.IsEdge() {
		return false
	}
	switch id.DirectedType {
	case DirectedTypeDirected:
		if !e.Directed {
			return false
		}
	case DirectedTypeUndirected:
		if e.Directed {
			return false
		}
	}
	s, d := ValueKey(id.Source), ValueKey(id.Destination)
	es, ed := ValueKey(e.Source), ValueKey(e.Destination)
	if s == es && d == ed {
		return true
	}
	return !e.Directed && s == ed && d == es
}

func (id ID) String() string {
	if id.IsEntityID() {
		return fmt.Sprintf("EntitySeed[vertex=%v]", id.Vertex)
	}
	return fmt.Sprintf("EdgeSeed[source=%v,destination=%v,directedType=%s]", id.Source, id.Destination, id.DirectedType)
}
