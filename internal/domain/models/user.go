package models

type User struct {
	Id           int    `json:"id" db:"id"`
	Username     string `json:"username" db:"username"`
	FullName     string `json:"full_name" db:"full_name"`
	EmployeeCode string `json:"employee_code" db:"employee_code"`
	UserType     string `json:"role" db:"role"`
	PassHash     []byte `json:"-" db:"password_hash"`
}

// DisplayName is the full name when known, the username otherwise.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}

	return u.Username
}
