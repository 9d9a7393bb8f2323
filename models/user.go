package models

import (
	"time"
)

type Role string

const (
	RoleMasterAdmin Role = "MASTER_ADMIN"
	RoleAdmin       Role = "ADMIN"
	RoleHR          Role = "HR"
	RoleEmployee    Role = "EMPLOYEE"
)

type User struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	Username     string      `gorm:"uniqueIndex;not null;size:100" json:"username"`
	FullName     string      `gorm:"not null;size:200" json:"full_name"`
	PasswordHash string      `gorm:"not null" json:"-"`
	Role         Role        `gorm:"not null;size:20" json:"role"`
	DepartmentID *uint       `gorm:"index" json:"department_id"`
	Department   *Department `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
	Active       bool        `gorm:"default:true" json:"active"`
}

func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

func (u *User) IsMasterAdmin() bool {
	return u.Role == RoleMasterAdmin
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleMasterAdmin
}

func (u *User) IsHR() bool {
	return u.Role == RoleHR
}

// CanReviewOvertime reports whether the user may approve, adjust or reject OT.
func (u *User) CanReviewOvertime() bool {
	return u.IsAdmin()
}

// CanManagePayroll is reserved for the highest admin role.
func (u *User) CanManagePayroll() bool {
	return u.IsMasterAdmin()
}

func (u *User) CanExport() bool {
	return u.IsAdmin() || u.IsHR()
}
