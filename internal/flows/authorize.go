package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// AccessIdentity is the verified content of an access token.
type AccessIdentity struct {
	SubjectID string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AuthorizeRequest is one (credential, domain, object, action) query.
type AuthorizeRequest struct {
	Token  string
	Domain string
	Object string
	Action string
}

// AuthorizeResult reports the decision and the identity it was taken for.
// Identity is nil when the caller resolved to the anonymous subject.
type AuthorizeResult struct {
	Permit   bool
	Identity *AccessIdentity
}

type AuthorizeMetrics struct {
	Permit    int
	Deny      int
	Anonymous int
	Latency   int
}

type AuthorizeEvents struct {
	Denied       string
	InvalidToken string
}

type AuthorizeErrors struct {
	EngineNotReady   error
	PolicyEvaluation error
}

// AuthorizeDeps captures decision point dependencies.
type AuthorizeDeps struct {
	AnonymousRole string
	Logger        zerolog.Logger

	VerifyAccess func(string) (AccessIdentity, error)
	Enforce      func(subject, domain, object, action string) (bool, error)

	MetricInc     func(int)
	MetricObserve func(int, time.Time)
	EmitAudit     func(context.Context, string, bool, string, string, error, func() map[string]string)

	Metrics AuthorizeMetrics
	Events  AuthorizeEvents
	Errors  AuthorizeErrors
}

// RunAuthorize resolves the caller and evaluates policy for the request.
// Missing and invalid credentials both resolve to the anonymous role; only
// policy decides whether anonymous access is allowed.
func RunAuthorize(ctx context.Context, req AuthorizeRequest, deps AuthorizeDeps) (AuthorizeResult, error) {
	normalizeAuthorizeDeps(&deps)

	if deps.VerifyAccess == nil || deps.Enforce == nil {
		return AuthorizeResult{}, deps.Errors.EngineNotReady
	}

	start := time.Now()
	defer deps.MetricObserve(deps.Metrics.Latency, start)

	var identity *AccessIdentity
	role := deps.AnonymousRole
	if req.Token != "" {
		verified, err := deps.VerifyAccess(req.Token)
		if err != nil {
			deps.Logger.Debug().Str("object", req.Object).Msg("bearer token rejected, continuing as anonymous")
			deps.EmitAudit(ctx, deps.Events.InvalidToken, false, "", "", err, func() map[string]string {
				return requestMetadata(req)
			})
		} else {
			identity = &verified
			role = verified.Role
		}
	}
	if identity == nil {
		deps.MetricInc(deps.Metrics.Anonymous)
	}

	permit, err := deps.Enforce(role, req.Domain, req.Object, req.Action)
	if err != nil {
		deps.Logger.Error().Err(err).Str("role", role).Str("object", req.Object).Msg("policy evaluation failed")
		return AuthorizeResult{}, fmt.Errorf("%w: %v", deps.Errors.PolicyEvaluation, err)
	}

	if !permit {
		subjectID := ""
		if identity != nil {
			subjectID = identity.SubjectID
		}
		deps.MetricInc(deps.Metrics.Deny)
		deps.Logger.Debug().
			Str("subject_id", subjectID).
			Str("role", role).
			Str("domain", req.Domain).
			Str("object", req.Object).
			Str("action", req.Action).
			Str("decision", "deny").
			Msg("authorization decision")
		deps.EmitAudit(ctx, deps.Events.Denied, false, subjectID, role, nil, func() map[string]string {
			return requestMetadata(req)
		})
		return AuthorizeResult{Permit: false, Identity: identity}, nil
	}

	deps.MetricInc(deps.Metrics.Permit)
	return AuthorizeResult{Permit: true, Identity: identity}, nil
}

func requestMetadata(req AuthorizeRequest) map[string]string {
	return map[string]string{
		"domain": req.Domain,
		"object": req.Object,
		"action": req.Action,
	}
}

func normalizeAuthorizeDeps(deps *AuthorizeDeps) {
	if deps.AnonymousRole == "" {
		deps.AnonymousRole = "anon"
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.MetricObserve == nil {
		deps.MetricObserve = func(int, time.Time) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
}
