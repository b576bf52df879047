package service

// Actor identifies the caller of a mutating operation for audit records.
type Actor struct {
	ID      string
	Name    string
	IsAdmin bool
}

func (a Actor) label() string {
	if a.Name != "" {
		return a.Name
	}
	if a.ID != "" {
		return a.ID
	}
	return "system"
}
