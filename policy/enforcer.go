package policy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Evaluator is the decision capability consumed by the authorization layer.
// Implementations must be safe for concurrent use.
type Evaluator interface {
	Enforce(subject, domain, object, action string) (bool, error)
}

// Options tunes an Enforcer.
type Options struct {
	// DecisionCacheSize bounds the per-request decision cache. Zero disables it.
	DecisionCacheSize int
}

type compiledRule struct {
	rule   Rule
	domain *regexp.Regexp
	object *regexp.Regexp
}

// Enforcer is the default Evaluator over an in-memory Policy.
type Enforcer struct {
	rules     []compiledRule
	ancestors map[string]map[string]struct{}
	decisions *lru.Cache[string, bool]
}

// NewEnforcer validates and compiles p.
func NewEnforcer(p Policy, opts Options) (*Enforcer, error) {
	compiled := make(map[string]*regexp.Regexp)
	compile := func(pattern string) (*regexp.Regexp, error) {
		if re, ok := compiled[pattern]; ok {
			return re, nil
		}
		re, err := CompilePattern(pattern)
		if err != nil {
			return nil, err
		}
		compiled[pattern] = re
		return re, nil
	}

	e := &Enforcer{
		rules:     make([]compiledRule, 0, len(p.Rules)),
		ancestors: expandInheritance(p.Inherits),
	}
	for i, r := range p.Rules {
		r = normalizeRule(r)
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		domain, err := compile(r.Domain)
		if err != nil {
			return nil, fmt.Errorf("rule %d domain: %w", i, err)
		}
		object, err := compile(r.Object)
		if err != nil {
			return nil, fmt.Errorf("rule %d object: %w", i, err)
		}
		e.rules = append(e.rules, compiledRule{rule: r, domain: domain, object: object})
	}

	if opts.DecisionCacheSize > 0 {
		cache, err := lru.New[string, bool](opts.DecisionCacheSize)
		if err != nil {
			return nil, err
		}
		e.decisions = cache
	}

	return e, nil
}

// Enforce reports whether at least one rule matches all four dimensions.
func (e *Enforcer) Enforce(subject, domain, object, action string) (bool, error) {
	if e == nil {
		return false, nil
	}

	var cacheKey string
	if e.decisions != nil {
		cacheKey = subject + "\x00" + domain + "\x00" + object + "\x00" + action
		if allowed, ok := e.decisions.Get(cacheKey); ok {
			return allowed, nil
		}
	}

	allowed := e.evaluate(subject, domain, object, action)
	if e.decisions != nil {
		e.decisions.Add(cacheKey, allowed)
	}
	return allowed, nil
}

// Match returns the first rule matching the request.
func (e *Enforcer) Match(subject, domain, object, action string) (Rule, bool) {
	if e == nil {
		return Rule{}, false
	}
	for _, r := range e.rules {
		if e.matches(r, subject, domain, object, action) {
			return r.rule, true
		}
	}
	return Rule{}, false
}

// Rules returns a copy of the loaded rule table.
func (e *Enforcer) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.rule
	}
	return out
}

func (e *Enforcer) evaluate(subject, domain, object, action string) bool {
	_, ok := e.Match(subject, domain, object, action)
	return ok
}

func (e *Enforcer) matches(r compiledRule, subject, domain, object, action string) bool {
	if !e.matchSubject(r.rule.Subject, subject) {
		return false
	}
	if !matchAction(r.rule.Action, action) {
		return false
	}
	return r.domain.MatchString(domain) && r.object.MatchString(object)
}

func (e *Enforcer) matchSubject(pattern, subject string) bool {
	if pattern == Wildcard || pattern == subject {
		return true
	}
	_, ok := e.ancestors[subject][pattern]
	return ok
}

func normalizeRule(r Rule) Rule {
	return Rule{
		Subject: strings.TrimSpace(r.Subject),
		Domain:  strings.TrimSpace(r.Domain),
		Object:  strings.TrimSpace(r.Object),
		Action:  strings.TrimSpace(r.Action),
	}
}

// expandInheritance computes the transitive closure of role inheritance.
// Cycles are tolerated; a role never lists itself.
func expandInheritance(inherits map[string][]string) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(inherits))

	roles := make([]string, 0, len(inherits))
	for role := range inherits {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	for _, role := range roles {
		seen := map[string]struct{}{}
		stack := append([]string(nil), inherits[role]...)
		for len(stack) > 0 {
			next := strings.TrimSpace(stack[len(stack)-1])
			stack = stack[:len(stack)-1]
			if next == "" || next == role {
				continue
			}
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			stack = append(stack, inherits[next]...)
		}
		out[strings.TrimSpace(role)] = seen
	}
	return out
}
