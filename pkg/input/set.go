package input

// ActiveSet is the set of input ids currently held. Membership is what
// matters; insertion order is kept so the resolver can pick the earliest
// held key when no combination applies.
type ActiveSet struct {
	ids []ID
}

// Add inserts id if absent. It reports whether the set changed.
func (s *ActiveSet) Add(id ID) bool {
	if s.Has(id) {
		return false
	}
	s.ids = append(s.ids, id)
	return true
}

// Remove deletes id if present. It reports whether the set changed.
func (s *ActiveSet) Remove(id ID) bool {
	for i, held := range s.ids {
		if held == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the set and reports whether it held anything.
func (s *ActiveSet) Clear() bool {
	changed := len(s.ids) > 0
	s.ids = nil
	return changed
}

// Has reports membership.
func (s *ActiveSet) Has(id ID) bool {
	for _, held := range s.ids {
		if held == id {
			return true
		}
	}
	return false
}

// IDs returns a copy of the held ids in insertion order.
func (s *ActiveSet) IDs() []ID {
	out := make([]ID, len(s.ids))
	copy(out, s.ids)
	return out
}

func (s *ActiveSet) Len() int {
	return len(s.ids)
}
