package dto

import "github.com/noah-isme/doctor-voice-api/internal/models"

// CreateUserRequest provisions an operator account. MR accounts need an
// mr_code so their submissions can be scoped.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	FullName string          `json:"full_name" validate:"required,max=120"`
	Role     models.UserRole `json:"role" validate:"required,oneof=ADMIN REVIEWER EDITOR MR"`
	MRCode   string          `json:"mr_code" validate:"required_if=Role MR,max=32"`
	Password string          `json:"password" validate:"required,min=8"`
	Active   *bool           `json:"active"`
}

// UpdateUserRequest changes an operator's profile, role or status.
type UpdateUserRequest struct {
	FullName string          `json:"full_name" validate:"required,max=120"`
	Role     models.UserRole `json:"role" validate:"required,oneof=ADMIN REVIEWER EDITOR MR"`
	MRCode   string          `json:"mr_code" validate:"required_if=Role MR,max=32"`
	Active   *bool           `json:"active"`
}

// UserListQuery maps operator list query parameters.
type UserListQuery struct {
	Role      string `form:"role"`
	Active    *bool  `form:"active"`
	Search    string `form:"search"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	SortBy    string `form:"sort_by"`
	SortOrder string `form:"sort_order"`
}
