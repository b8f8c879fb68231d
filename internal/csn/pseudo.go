package csn

// Pseudo roots resolvable as the first step of any path without an entity.
var pseudoRoots = buildPseudoRoots()

func buildPseudoRoots() map[string]*Element {
	user := &Element{
		Name: "$user",
		Elements: []*Element{
			{Name: "id", Type: TypeString},
			{Name: "locale", Type: TypeString},
			{Name: "tenant", Type: TypeString},
		},
	}
	user.index = make(map[string]*Element, len(user.Elements))
	for _, el := range user.Elements {
		el.parent = user
		user.index[el.Name] = el
	}

	roots := map[string]*Element{"$user": user}
	for _, name := range []string{"$now", "$at", "$from", "$to"} {
		roots[name] = &Element{Name: name, Type: TypeTimestamp}
	}
	for _, name := range []string{"$locale", "$tenant"} {
		roots[name] = &Element{Name: name, Type: TypeString}
	}
	return roots
}

// Pseudo returns the pseudo element for a first path step such as "$user"
// or "$now". The returned elements are shared and must not be modified.
func Pseudo(name string) (*Element, bool) {
	el, ok := pseudoRoots[name]
	return el, ok
}

// IsPseudo reports whether el is one of the pseudo roots or nested in one.
func IsPseudo(el *Element) bool {
	for el.parent != nil {
		el = el.parent
	}
	return pseudoRoots[el.Name] == el
}
