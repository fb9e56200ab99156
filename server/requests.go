package server

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=30,username_chars"`
	Name     string `json:"name" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken     string `json:"refreshToken"`
	LogoutAllDevices bool   `json:"logoutAllDevices"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=128"`
}

type UpdatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=128"`
}

type UpdateProfileRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=50"`
	Username *string `json:"username" validate:"omitempty,min=3,max=30,username_chars"`
}
