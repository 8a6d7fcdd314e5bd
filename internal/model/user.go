package model

// UserRecord is the JSON payload stored under a users.<pk> key.
//
// Every field is a pointer so a missing or JSON-null field round-trips as
// SQL NULL rather than Go's zero value.
type UserRecord struct {
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	Age       *int    `json:"age"`
	CreatedAt *string `json:"created_at"`
}
