package glossary

// Term is one extracted glossary entry.
type Term struct {
	Term        string `json:"term"`
	Translation string `json:"translation"`
	Note        string `json:"note,omitempty"`
}

// Conflict records a term that different samples translated differently.
// Resolution is the caller's business; the pipeline never picks a side.
type Conflict struct {
	Term         string   `json:"term"`
	Translations []string `json:"translations"`
}

// Merged is the consolidated outcome of all samples.
type Merged struct {
	Terms     []Term     `json:"terms"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// Empty reports whether the merge produced nothing at all.
func (m Merged) Empty() bool {
	return len(m.Terms) == 0 && len(m.Conflicts) == 0
}

// Speaker is one diarization hint extracted from sampled chunks.
type Speaker struct {
	Name   string `json:"name"`
	Traits string `json:"traits,omitempty"`
}
