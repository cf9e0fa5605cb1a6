package entity

type user struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Age  int    `json:"age"`
	Role string `json:"role,omitempty"`
}

func (u user) EntityID() string { return u.ID }

func ids[T Entity](es []T) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.EntityID()
	}
	return out
}
