package obs

import "context"

type routePatternKey struct{}

// WithRoutePattern records the matched chi route pattern so metrics label by
// pattern ("/products/{slug}") instead of raw paths.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext returns the recorded route pattern, or "" when the
// request never matched a route.
func RoutePatternFromContext(ctx context.Context) string {
	pattern, _ := ctx.Value(routePatternKey{}).(string)
	return pattern
}
