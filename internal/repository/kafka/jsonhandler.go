package kafka

import (
	"context"
	"encoding/json"
	"fmt"
)

// JSONHandler decodes each value into a fresh M before calling handle.
// Undecodable values are reported to onBad and skipped so one poison
// message does not wedge the partition.
func JSONHandler[M any](handle func(context.Context, []byte, *M) error, onBad func(error)) Handler {
	return func(ctx context.Context, key, value []byte) error {
		msg := new(M)
		if err := json.Unmarshal(value, msg); err != nil {
			if onBad != nil {
				onBad(fmt.Errorf("decode %T: %w", *msg, err))
			}
			return nil
		}
		return handle(ctx, key, msg)
	}
}
