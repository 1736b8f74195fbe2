// Package permission derives UI/API capabilities from the single
// has-admin-permissions check and keeps them per session.
package permission

import (
	"context"

	"laundrydesk.io/internal/auth"
	"laundrydesk.io/internal/obs"
)

// Capabilities is the derived permission snapshot for one identity.
// While Loading every capability is false.
type Capabilities struct {
	HasAdminPermissions bool `json:"has_admin_permissions"`
	CanViewCustomers    bool `json:"can_view_customers"`
	CanViewJobs         bool `json:"can_view_jobs"`
	CanViewMachines     bool `json:"can_view_machines"`
	CanViewPayments     bool `json:"can_view_payments"`
	CanManageUsers      bool `json:"can_manage_users"`
	CanCreateJobs       bool `json:"can_create_jobs"`
	CanModifyMachines   bool `json:"can_modify_machines"`
	CanRecordPayments   bool `json:"can_record_payments"`

	Loading       bool `json:"loading"`
	Authenticated bool `json:"authenticated"`
	// Failed is set when the check errored; all capabilities are then false.
	Failed bool `json:"failed,omitempty"`
}

// Loading is the snapshot used while a check is pending.
func Loading() Capabilities {
	return Capabilities{Loading: true}
}

func derive(admin bool) Capabilities {
	return Capabilities{
		HasAdminPermissions: admin,
		CanViewCustomers:    admin,
		CanViewJobs:         admin,
		CanViewMachines:     admin,
		CanViewPayments:     admin,
		CanManageUsers:      admin,
		CanCreateJobs:       admin,
		CanModifyMachines:   admin,
		CanRecordPayments:   admin,
		Authenticated:       true,
	}
}

// Evaluate asks checker whether id holds admin permissions and derives the
// capability set. It fails closed: any error yields all-false with Failed set.
func Evaluate(ctx context.Context, checker auth.PermissionChecker, id *auth.Identity) Capabilities {
	if id == nil || id.ID == "" {
		return Capabilities{}
	}
	if checker == nil {
		obs.ObservePermissionCheck("error")
		return Capabilities{Authenticated: true, Failed: true}
	}
	admin, err := checker.HasAdminPermissions(ctx, id.ID)
	if err != nil {
		obs.ObservePermissionCheck("error")
		obs.Component("permission").WithError(err).WithField("user_id", id.ID).Error("admin permission check failed")
		return Capabilities{Authenticated: true, Failed: true}
	}
	if admin {
		obs.ObservePermissionCheck("granted")
	} else {
		obs.ObservePermissionCheck("denied")
	}
	return derive(admin)
}
