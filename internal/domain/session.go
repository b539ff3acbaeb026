package domain

import "time"

// Session es el resultado de un login exitoso. No se persiste en el servidor.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	AccountID   string    `json:"-"`
	Username    string    `json:"-"`
}

// ExpiresIn devuelve los segundos restantes respecto a now.
func (s Session) ExpiresIn(now time.Time) int64 {
	d := s.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return int64(d.Seconds())
}
