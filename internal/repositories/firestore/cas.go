package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/vendorhub/marketplace/internal/platform/firestore"
)

// compareAndSetStatus replaces document id with next only while statusOf(stored) == expected.
func compareAndSetStatus[T any](
	ctx context.Context,
	provider *pfirestore.Provider,
	base *pfirestore.BaseRepository[T],
	id string,
	expected string,
	statusOf func(T) string,
	next T,
) error {
	ref, err := base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	payload, err := base.Encode(ctx, next)
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	return provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError(base.Op("get"), err)
		}
		current, err := base.Decode(ctx, snap)
		if err != nil {
			return fmt.Errorf("decode %s: %w", id, err)
		}
		if got := statusOf(current.Data); got != expected {
			return pfirestore.NewConflictError(base.Op("update"),
				fmt.Sprintf("%s status is %s, expected %s", id, got, expected))
		}
		return tx.Set(ref, payload)
	})
}
