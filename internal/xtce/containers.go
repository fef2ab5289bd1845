package xtce

// Entry is one element of a container's entry list: either a parameter
// reference or an inlined container reference. Exactly one field is set.
type Entry struct {
	Parameter *Parameter
	Container *SequenceContainer
}

// SequenceContainer is a node of the container inheritance forest. A
// container's entry list holds only its own additions; ancestors'
// entries are consumed first when parsing.
type SequenceContainer struct {
	Name              string
	Abstract          bool
	BaseContainerName string
	// RestrictionCriteria gate inheritance: this container applies only
	// when all criteria evaluate true against the partial context.
	RestrictionCriteria ComparisonList
	Entries             []Entry

	// Inheritors lists the names of containers whose base is this one.
	// Populated at load time.
	Inheritors []string

	ShortDescription string
}

// Definition is the immutable in-memory packet definition: three
// read-only indexes by name plus the root container for parsing.
type Definition struct {
	ParameterTypes    map[string]ParameterType
	Parameters        map[string]*Parameter
	Containers        map[string]*SequenceContainer
	RootContainerName string
}

// DefaultRootContainer is the conventional name of the CCSDS
// primary-header container at the root of the inheritance tree.
const DefaultRootContainer = "CCSDSPacket"

// Container looks up a sequence container by name.
func (d *Definition) Container(name string) (*SequenceContainer, bool) {
	c, ok := d.Containers[name]
	return c, ok
}

// Validate checks cross-reference integrity and inheritance shape:
// resolvable bases, no inheritance cycles, and populated entry refs.
// Returns the names of abstract leaf containers (a definition-time
// smell surfaced to the caller for warning logs).
func (d *Definition) Validate() ([]string, error) {
	for name, c := range d.Containers {
		if c.BaseContainerName != "" {
			if _, ok := d.Containers[c.BaseContainerName]; !ok {
				return nil, defErrorf("container %q inherits unknown base container %q", name, c.BaseContainerName)
			}
		}
		for _, e := range c.Entries {
			if e.Parameter == nil && e.Container == nil {
				return nil, defErrorf("container %q has an empty entry", name)
			}
		}
	}

	// Walk each inheritance chain to the root, watching for cycles.
	for name := range d.Containers {
		seen := map[string]bool{}
		for cur := name; cur != ""; {
			if seen[cur] {
				return nil, defErrorf("circular container inheritance involving %q", cur)
			}
			seen[cur] = true
			cur = d.Containers[cur].BaseContainerName
		}
	}

	var abstractLeaves []string
	for name, c := range d.Containers {
		if c.Abstract && len(c.Inheritors) == 0 {
			abstractLeaves = append(abstractLeaves, name)
		}
	}
	return abstractLeaves, nil
}

// linkInheritors fills each container's Inheritors slice from the
// BaseContainerName references, preserving a stable order.
func (d *Definition) linkInheritors(order []string) {
	for _, name := range order {
		c := d.Containers[name]
		if c.BaseContainerName == "" {
			continue
		}
		if base, ok := d.Containers[c.BaseContainerName]; ok {
			base.Inheritors = append(base.Inheritors, name)
		}
	}
}
