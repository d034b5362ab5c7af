package password

import "fmt"

// Check validates a new password and its confirmation, returning every
// problem found. An empty result means the password is acceptable.
func (a *Argon2) Check(password, confirm string) []string {
	var problems []string
	if len(password) < a.config.MinPasswordBytes {
		problems = append(problems, fmt.Sprintf("password must be at least %d characters", a.config.MinPasswordBytes))
	}
	if len(password) > a.config.MaxPasswordBytes {
		problems = append(problems, fmt.Sprintf("password must be at most %d characters", a.config.MaxPasswordBytes))
	}
	if password != confirm {
		problems = append(problems, "passwords do not match")
	}
	return problems
}
