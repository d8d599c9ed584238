package dto

// RegistrationRequest This is necessary to prevent any Mass Assignment Vulnerability attack
type RegistrationRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	Fingerprint  string `json:"fingerprint"`
	CaptchaToken string `json:"captcha_token"`
}

type RegistrationResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

// CaptchaChallenge is the 400 payload telling the client to retry the same
// registration with a solved CAPTCHA token.
type CaptchaChallenge struct {
	RequireCaptcha bool   `json:"require_captcha"`
	Message        string `json:"message"`
}
