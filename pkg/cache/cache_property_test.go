package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestTrackingSetCoverage is the "Tracking-set coverage" property from
// spec.md §8: for any namespace, every cache key written through
// PutTracked was a member of tracked(namespace) at the moment of its
// creation, and InvalidateNamespace removes every such key and nothing
// outside the namespace.
func TestTrackingSetCoverage(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("every tracked key is covered by its namespace's invalidation", prop.ForAll(
		func(nsSuffix string, keyCount, otherKeyCount int) bool {
			c, mr := newTestCache(t)
			defer mr.Close()
			ctx := context.Background()

			namespace := "ns:" + nsSuffix
			other := "ns:other:" + nsSuffix

			var keys []string
			for i := 0; i < keyCount%8+1; i++ {
				key := fmt.Sprintf("%s:key:%d", namespace, i)
				if err := c.PutTracked(ctx, namespace, key, i, time.Minute); err != nil {
					return false
				}
				keys = append(keys, key)
			}

			var otherKeys []string
			for i := 0; i < otherKeyCount%8+1; i++ {
				key := fmt.Sprintf("%s:key:%d", other, i)
				if err := c.PutTracked(ctx, other, key, i, time.Minute); err != nil {
					return false
				}
				otherKeys = append(otherKeys, key)
			}

			n, err := c.InvalidateNamespace(ctx, namespace)
			if err != nil || int(n) != len(keys) {
				return false
			}

			for _, key := range keys {
				if mr.Exists(key) {
					return false
				}
			}
			for _, key := range otherKeys {
				if !mr.Exists(key) {
					return false
				}
			}
			return true
		},
		gen.Identifier(),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
