package policy

import (
	"errors"
	"fmt"
	"strings"
)

// Wildcard matches any value in the subject and action dimensions.
const Wildcard = "*"

var ErrInvalidRule = errors.New("policy: invalid rule")

// Rule is one row of the policy table.
type Rule struct {
	Subject string `yaml:"subject"`
	Domain  string `yaml:"domain"`
	Object  string `yaml:"object"`
	Action  string `yaml:"action"`
}

func (r Rule) String() string {
	return strings.Join([]string{r.Subject, r.Domain, r.Object, r.Action}, ", ")
}

// Policy is a rule table plus role inheritance. Inherits maps a role to the
// roles whose permissions it also receives.
type Policy struct {
	Rules    []Rule              `yaml:"rules"`
	Inherits map[string][]string `yaml:"inherits"`
}

func (r Rule) validate() error {
	if strings.TrimSpace(r.Subject) == "" ||
		strings.TrimSpace(r.Domain) == "" ||
		strings.TrimSpace(r.Object) == "" ||
		strings.TrimSpace(r.Action) == "" {
		return fmt.Errorf("%w: empty field in %q", ErrInvalidRule, r.String())
	}
	return nil
}

func matchAction(pattern, action string) bool {
	if pattern == Wildcard {
		return true
	}
	for _, alt := range strings.Split(pattern, "|") {
		alt = strings.TrimSpace(alt)
		if alt == Wildcard || strings.EqualFold(alt, action) {
			return true
		}
	}
	return false
}
