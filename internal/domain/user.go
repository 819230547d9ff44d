package domain

// User is the stored user record. Password only ever holds a bcrypt hash.
type User struct {
	Username  string  `json:"username"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Email     *string `json:"email,omitempty"`
	Password  string  `json:"password"`
}

// UserUpdate is the partial record received from a client. Nil fields were
// absent from the request and are left untouched in storage.
type UserUpdate struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Email     *string `json:"email"`
	Password  string  `json:"password"`
}

// UserFields is the attribute set written by a keyed partial update.
type UserFields struct {
	FirstName    *string
	LastName     *string
	Email        *string
	PasswordHash string
}

// UpdateResult carries the backend's view of the attributes it changed.
type UpdateResult struct {
	Attributes map[string]any `json:"Attributes"`
}

// Secrets holds the storage credentials resolved once at startup.
type Secrets struct {
	AccessKeyID     string `json:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"AWS_SECRET_ACCESS_KEY"`
}

// Record builds the user record a successful update leaves behind.
func (f UserFields) Record(username string) User {
	return User{
		Username:  username,
		FirstName: f.FirstName,
		LastName:  f.LastName,
		Email:     f.Email,
		Password:  f.PasswordHash,
	}
}
