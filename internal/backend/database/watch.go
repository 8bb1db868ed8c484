package database

import (
	"context"
	"log/slog"
)

// watchSnapshots turns change signals into full snapshots produced by load.
// It subscribes before the first load so no change between the two is lost.
// Signals arriving while a consumer is slow coalesce into a single reload,
// so a consumer never works through a backlog of outdated snapshots.
func watchSnapshots(ctx context.Context, notifier ChangeNotifier, ownerID string, load func(context.Context) ([]*Entry, error)) (<-chan []*Entry, error) {
	changes, err := notifier.Subscribe(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	snapshot, err := load(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan []*Entry)
	go func() {
		defer close(out)

		for {
			select {
			case out <- snapshot:
			case <-ctx.Done():
				return
			}

			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-changes:
					if !ok {
						return
					}
				}

				next, err := load(ctx)
				if err == nil {
					snapshot = next
					break
				}
				if ctx.Err() != nil {
					return
				}
				// the subscription stays open, the next change retries
				slog.Error("watch: failed to load entries", "owner_id", ownerID, "error", err)
			}
		}
	}()

	return out, nil
}
