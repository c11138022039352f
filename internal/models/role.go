package models

import "strings"

type Role string

const (
	RoleTeacher Role = "Teacher"
	RoleStudent Role = "Student"
	RoleAdmin   Role = "Admin"
)

// ParseRole accepts any capitalization ("teacher", "STUDENT") and returns the
// canonical value.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "teacher":
		return RoleTeacher, true
	case "student":
		return RoleStudent, true
	case "admin":
		return RoleAdmin, true
	}
	return "", false
}

// IsParticipant reports whether the role can own a conversation.
func (r Role) IsParticipant() bool {
	return r == RoleTeacher || r == RoleStudent
}

func (r Role) String() string { return string(r) }

// Counterpart is the other side of a teacher/student conversation.
func (r Role) Counterpart() Role {
	switch r {
	case RoleTeacher:
		return RoleStudent
	case RoleStudent:
		return RoleTeacher
	}
	return ""
}
