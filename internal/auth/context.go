package auth

import "context"

type ctxKey string

const frameClaimsKey ctxKey = "frame_claims"

func WithFrameClaims(ctx context.Context, c *FrameClaims) context.Context {
	return context.WithValue(ctx, frameClaimsKey, c)
}

func FrameClaimsFrom(ctx context.Context) (*FrameClaims, bool) {
	c, ok := ctx.Value(frameClaimsKey).(*FrameClaims)
	return c, ok && c != nil
}
