package permission

import (
	"context"

	"golang.org/x/sync/singleflight"

	"laundrydesk.io/internal/auth"
)

// SharedChecker collapses concurrent checks for the same user into one
// round trip to the underlying checker.
type SharedChecker struct {
	next  auth.PermissionChecker
	group singleflight.Group
}

var _ auth.PermissionChecker = (*SharedChecker)(nil)

func NewSharedChecker(next auth.PermissionChecker) *SharedChecker {
	return &SharedChecker{next: next}
}

// Forget detaches any in-flight lookup for userID so the next check reads
// the store again instead of joining a lookup that predates a mutation.
func (c *SharedChecker) Forget(userID string) {
	c.group.Forget(userID)
}

func (c *SharedChecker) HasAdminPermissions(ctx context.Context, userID string) (bool, error) {
	ch := c.group.DoChan(userID, func() (any, error) {
		return c.next.HasAdminPermissions(context.WithoutCancel(ctx), userID)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
