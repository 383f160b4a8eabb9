package models

// User is the identity a session is scoped to.
type User struct {
	ID          string
	DisplayName string
	Email       string
	PhotoURL    string
}

// Ptr returns a pointer to v. Drafts and patches use it for optional
// fields.
func Ptr[T any](v T) *T {
	return &v
}
