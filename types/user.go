package types

// User specific attributes for evaluating feature flags.
//
// ID is used for bucketing. Attributes are only used for targeting and are
// passed to the evaluator as-is.
type User struct {
	ID         string                 `json:"id"`
	IPAddress  string                 `json:"ip,omitempty"`
	UserAgent  string                 `json:"userAgent,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// NewUser returns a User with the given id and an empty attribute map
func NewUser(id string) User {
	return User{ID: id, Attributes: make(map[string]interface{})}
}
