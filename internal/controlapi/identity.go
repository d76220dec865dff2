package controlapi

import (
	"context"

	"github.com/jordanhubbard/refactorctl/internal/authn"
)

func withIdentity(ctx context.Context, id authn.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func identityFrom(ctx context.Context) (authn.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(authn.Identity)
	return id, ok
}
