package hierarchy

// level is the cursor state machine of one hierarchy level.
//
//	no parent             -> none
//	parent, no children   -> none
//	parent, children      -> first child by (order, id)
//	parent, explicit pick -> the pick, until the parent changes or the
//	                         pick leaves the child set
type level struct {
	current  string
	parent   string
	explicit bool
}

// derive recomputes the cursor. children must be sorted by (order, id).
func (l *level) derive(parent string, hasParent bool, children []string) {
	if !hasParent {
		*l = level{}
		return
	}
	if parent != l.parent {
		l.parent = parent
		l.explicit = false
	}
	if l.explicit && contains(children, l.current) {
		return
	}
	l.explicit = false
	if len(children) == 0 {
		l.current = ""
		return
	}
	l.current = children[0]
}

// choose records an explicit selection. An empty id returns the level to
// its default.
func (l *level) choose(id string) {
	l.current = id
	l.explicit = id != ""
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
