package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	goGate "github.com/MrEthical07/goGate"
)

// Authorizer is the decision capability the guard consumes. *goGate.Engine
// implements it.
type Authorizer interface {
	Authorize(ctx context.Context, req goGate.AccessRequest) (goGate.Decision, error)
}

// Resolver extracts one request dimension.
type Resolver func(*http.Request) string

type options struct {
	domain   Resolver
	object   Resolver
	action   Resolver
	clientIP Resolver
}

// Option customizes Authorize.
type Option func(*options)

// WithDomainResolver overrides the default host-without-port domain.
func WithDomainResolver(fn Resolver) Option {
	return func(o *options) {
		if fn != nil {
			o.domain = fn
		}
	}
}

// WithObjectResolver overrides the default URL path object.
func WithObjectResolver(fn Resolver) Option {
	return func(o *options) {
		if fn != nil {
			o.object = fn
		}
	}
}

// WithActionResolver overrides the default HTTP method action.
func WithActionResolver(fn Resolver) Option {
	return func(o *options) {
		if fn != nil {
			o.action = fn
		}
	}
}

// WithClientIPResolver overrides how the caller's IP is derived for audit
// events. The default uses RemoteAddr.
func WithClientIPResolver(fn Resolver) Option {
	return func(o *options) {
		if fn != nil {
			o.clientIP = fn
		}
	}
}

// Authorize returns middleware enforcing policy on every request.
//
// Missing or invalid bearer tokens resolve to the anonymous role. A denied
// anonymous caller gets 401, a denied authenticated caller 403. On permit the
// resolved goGate.Identity is attached to the request context.
func Authorize(engine Authorizer, opts ...Option) func(http.Handler) http.Handler {
	o := options{
		domain:   hostWithoutPort,
		object:   urlPath,
		action:   method,
		clientIP: remoteIP,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			ctx := r.Context()
			if ip := o.clientIP(r); ip != "" {
				ctx = goGate.WithClientIP(ctx, ip)
			}

			token, _ := bearerToken(r.Header.Get("Authorization"))
			decision, err := engine.Authorize(ctx, goGate.AccessRequest{
				Token:  token,
				Domain: o.domain(r),
				Object: o.object(r),
				Action: o.action(r),
			})
			if err != nil {
				kind := goGate.KindOf(err)
				http.Error(w, goGate.PublicMessage(err), kind.HTTPStatus())
				return
			}
			if !decision.Permit {
				if decision.Identity.Anonymous() {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx = goGate.WithIdentity(ctx, decision.Identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func hostWithoutPort(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.Trim(host, "[]"))
}

func urlPath(r *http.Request) string {
	if r.URL == nil || r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

func method(r *http.Request) string {
	return r.Method
}

func remoteIP(r *http.Request) string {
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return h
	}
	return r.RemoteAddr
}
