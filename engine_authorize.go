package goGate

import (
	"context"

	"github.com/MrEthical07/goGate/internal/flows"
)

// Authorize is the decision point for one request.
//
// An empty or invalid token resolves to the anonymous role rather than an
// error; policy alone decides whether anonymous callers are permitted. The
// returned Decision carries the resolved identity in both outcomes. Only
// policy evaluation failures are returned as errors.
func (e *Engine) Authorize(ctx context.Context, req AccessRequest) (Decision, error) {
	res, err := flows.RunAuthorize(ctx, flows.AuthorizeRequest{
		Token:  req.Token,
		Domain: req.Domain,
		Object: req.Object,
		Action: req.Action,
	}, e.flows.Authorize)
	if err != nil {
		return Decision{Identity: AnonymousIdentity()}, err
	}

	identity := AnonymousIdentity()
	if res.Identity != nil {
		role, err := ParseRole(res.Identity.Role)
		if err != nil {
			return Decision{Identity: AnonymousIdentity()}, ErrTokenInvalid
		}
		identity = Identity{
			SubjectID: res.Identity.SubjectID,
			Role:      role,
			Claims: &Claims{
				SubjectID: res.Identity.SubjectID,
				Role:      role,
				IssuedAt:  res.Identity.IssuedAt,
				ExpiresAt: res.Identity.ExpiresAt,
			},
		}
	}

	return Decision{Permit: res.Permit, Identity: identity}, nil
}
