package graph

// Kind discriminates the four node families a ConfigGraph holds.
type Kind string

const (
	KindBuild   Kind = "build"
	KindService Kind = "service"
	KindTask    Kind = "task"
	KindTest    Kind = "test"
)

// Ref names a single node: Kind plus its globally-unique name within that
// kind (build nodes are named by their owning module's Key()).
type Ref struct {
	Kind Kind
	Name string
}

func (r Ref) String() string {
	return string(r.Kind) + ":" + r.Name
}

// node is the internal record backing a Ref: which module owns it and what
// it declares a direct dependency on.
type node struct {
	ref       Ref
	module    string
	dependsOn []Ref
}
