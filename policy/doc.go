// Package policy evaluates (subject, domain, object, action) requests against
// a read-only rule table.
//
// Domain and object patterns use path-template matching in the keyMatch2
// style:
//
//	/users/*          matches /users/123 and /users/123/avatar
//	/users/:id        matches /users/123 but not /users/123/avatar
//	:tenant.example   matches acme.example
//
// Subjects match exactly, through role inheritance, or with "*". Actions
// match exactly (case-insensitive), with "*", or with "|"-separated
// alternatives such as "GET|HEAD".
//
// Rules are loaded once from CSV or YAML and never mutated afterwards, so an
// Enforcer is safe for concurrent use.
package policy
