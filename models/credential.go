package models

// Credential is a stored username/password record.
type Credential struct {
	Username     string   `json:"username" yaml:"username"`
	PasswordHash string   `json:"-" yaml:"password_hash"`
	Roles        []string `json:"roles" yaml:"roles"`
}
