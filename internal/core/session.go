package core

// Session carries the acting user and the household every operation is
// scoped to. It is resolved once per request and passed explicitly.
type Session struct {
	UserID      int64
	Username    string
	HouseholdID int64
	Role        Role
}

func (s Session) RequireAdmin() error {
	if !s.Role.IsAdmin() {
		return ErrForbidden
	}
	return nil
}
