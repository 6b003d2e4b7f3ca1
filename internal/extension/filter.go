package extension

// Filter narrows the set of extensions taken from an archive.
//
// A ref matches a rule when the ids are equal and the rule's version is
// either VersionLatest or equal to the ref's version. Exclude rules win
// over include rules when both match the same extension.
type Filter struct {
	Include []Ref
	Exclude []Ref
}

// ParseFilter builds a Filter from "publisher.name[@version]" specs.
func ParseFilter(include, exclude []string) (Filter, error) {
	var f Filter
	for _, s := range include {
		ref, err := ParseRef(s)
		if err != nil {
			return Filter{}, err
		}
		f.Include = append(f.Include, ref)
	}
	for _, s := range exclude {
		ref, err := ParseRef(s)
		if err != nil {
			return Filter{}, err
		}
		f.Exclude = append(f.Exclude, ref)
	}
	return f, nil
}

// Empty reports whether the filter has no rules at all.
func (f Filter) Empty() bool {
	return len(f.Include) == 0 && len(f.Exclude) == 0
}

// Admits reports whether ref survives the filter: not matched by any
// exclude rule, and matched by an include rule when includes are present.
func (f Filter) Admits(ref Ref) bool {
	for _, rule := range f.Exclude {
		if ruleMatches(rule, ref) {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, rule := range f.Include {
		if ruleMatches(rule, ref) {
			return true
		}
	}
	return false
}

// Excludes reports whether ref is matched by an exclude rule. The CLEAN
// wipe uses this directly: an excluded extension is never a wipe target,
// even when it is also absent from the include list.
func (f Filter) Excludes(ref Ref) bool {
	for _, rule := range f.Exclude {
		if ruleMatches(rule, ref) {
			return true
		}
	}
	return false
}

func ruleMatches(rule, ref Ref) bool {
	if rule.ID() != ref.ID() {
		return false
	}
	return rule.Version == VersionLatest || rule.Version == ref.Version
}
