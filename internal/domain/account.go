package domain

import "time"

// PendingSignup es un registro sin verificar que espera la confirmación por OTP.
type PendingSignup struct {
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	OtpCodeHash  string    `json:"-"`
	OtpExpiresAt time.Time `json:"otp_expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// Expired indica si la ventana del OTP ya pasó respecto a now.
func (p PendingSignup) Expired(now time.Time) bool {
	return now.After(p.OtpExpiresAt)
}

// Account es una cuenta verificada.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Bio          *string   `json:"bio"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile es la vista pública de una cuenta.
type Profile struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Bio      *string `json:"bio"`
}

func (a Account) Profile() Profile {
	var bio *string
	if a.Bio != nil {
		v := *a.Bio
		bio = &v
	}
	return Profile{
		Username: a.Username,
		Email:    a.Email,
		Bio:      bio,
	}
}
