// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rbac

// -----------------------------------------------------------------------------
// Role Name Constants
// These are the canonical names for system roles stored in the database.
// -----------------------------------------------------------------------------

const (
	// RoleSuperAdmin is held by system operators.
	RoleSuperAdmin = "SUPER_ADMIN"

	// RoleSupportAdmin is held by support operators.
	RoleSupportAdmin = "SUPPORT_ADMIN"

	// RoleCustomer is held by farm account owners.
	RoleCustomer = "CUSTOMER"

	// RoleAccountUser is held by farm account employees.
	RoleAccountUser = "ACCOUNT_USER"

	// RoleVeterinarian is held by cross-tenant veterinarians.
	RoleVeterinarian = "VETERINARIAN"
)

// -----------------------------------------------------------------------------
// Permission Name Constants
// -----------------------------------------------------------------------------

const (
	PermSystemManageTenants = "SYSTEM_MANAGE_TENANTS"
	PermSystemManageRoles   = "SYSTEM_MANAGE_ROLES"
	PermSystemViewAll       = "SYSTEM_VIEW_ALL"
	PermSystemMaintenance   = "SYSTEM_MAINTENANCE"

	PermCustomerReadOwn        = "CUSTOMER_READ_OWN"
	PermCustomerUpdateOwn      = "CUSTOMER_UPDATE_OWN"
	PermAccountManageUsers     = "ACCOUNT_MANAGE_USERS"
	PermAccountManageVetAccess = "ACCOUNT_MANAGE_VET_ACCESS"

	PermLivestockView   = "LIVESTOCK_VIEW"
	PermLivestockCreate = "LIVESTOCK_CREATE"
	PermLivestockEdit   = "LIVESTOCK_EDIT"
	PermLivestockDelete = "LIVESTOCK_DELETE"

	PermMedicalView    = "MEDICAL_VIEW"
	PermMedicalEdit    = "MEDICAL_EDIT"
	PermVaccinationAdd = "VACCINATION_ADD"

	PermBreedingView = "BREEDING_VIEW"
	PermBreedingEdit = "BREEDING_EDIT"

	PermWeightView = "WEIGHT_VIEW"
	PermWeightAdd  = "WEIGHT_ADD"

	PermNotesView   = "NOTES_VIEW"
	PermNotesAdd    = "NOTES_ADD"
	PermNotesDelete = "NOTES_DELETE"

	PermOrderView   = "ORDER_VIEW"
	PermOrderCreate = "ORDER_CREATE"

	PermFeedingView   = "FEEDING_VIEW"
	PermFeedingManage = "FEEDING_MANAGE"
)

// SystemPermissions is the seeded permission catalog.
var SystemPermissions = []Permission{
	{Name: PermSystemManageTenants, Category: CategorySystem, Level: PermissionLevelCritical, Description: "Suspend and reactivate farm accounts"},
	{Name: PermSystemManageRoles, Category: CategorySystem, Level: PermissionLevelCritical, Description: "Create and delete roles"},
	{Name: PermSystemViewAll, Category: CategorySystem, Level: PermissionLevelElevated, Description: "Read any account for support"},
	{Name: PermSystemMaintenance, Category: CategorySystem, Level: PermissionLevelElevated, Description: "Run maintenance jobs"},

	{Name: PermCustomerReadOwn, Category: CategoryAccount, Level: PermissionLevelBasic, Description: "Read own account"},
	{Name: PermCustomerUpdateOwn, Category: CategoryAccount, Level: PermissionLevelStandard, Description: "Update own account"},
	{Name: PermAccountManageUsers, Category: CategoryUser, Level: PermissionLevelElevated, Description: "Manage account employees"},
	{Name: PermAccountManageVetAccess, Category: CategoryAccount, Level: PermissionLevelElevated, Description: "Grant and revoke veterinarian access"},

	{Name: PermLivestockView, Category: CategoryLivestock, Level: PermissionLevelBasic},
	{Name: PermLivestockCreate, Category: CategoryLivestock, Level: PermissionLevelStandard},
	{Name: PermLivestockEdit, Category: CategoryLivestock, Level: PermissionLevelStandard},
	{Name: PermLivestockDelete, Category: CategoryLivestock, Level: PermissionLevelElevated},

	{Name: PermMedicalView, Category: CategoryMedical, Level: PermissionLevelBasic},
	{Name: PermMedicalEdit, Category: CategoryMedical, Level: PermissionLevelElevated},
	{Name: PermVaccinationAdd, Category: CategoryMedical, Level: PermissionLevelStandard},

	{Name: PermBreedingView, Category: CategoryBreeding, Level: PermissionLevelBasic},
	{Name: PermBreedingEdit, Category: CategoryBreeding, Level: PermissionLevelStandard},

	{Name: PermWeightView, Category: CategoryWeight, Level: PermissionLevelBasic},
	{Name: PermWeightAdd, Category: CategoryWeight, Level: PermissionLevelStandard},

	{Name: PermNotesView, Category: CategoryNotes, Level: PermissionLevelBasic},
	{Name: PermNotesAdd, Category: CategoryNotes, Level: PermissionLevelStandard},
	{Name: PermNotesDelete, Category: CategoryNotes, Level: PermissionLevelElevated},

	{Name: PermOrderView, Category: CategoryOrder, Level: PermissionLevelBasic},
	{Name: PermOrderCreate, Category: CategoryOrder, Level: PermissionLevelStandard},

	{Name: PermFeedingView, Category: CategoryFeeding, Level: PermissionLevelBasic},
	{Name: PermFeedingManage, Category: CategoryFeeding, Level: PermissionLevelStandard},
}

// RoleDefinition describes a seeded role by permission names.
type RoleDefinition struct {
	Name        string
	DisplayName string
	Permissions []string
}

// SupportAdminPermissions defines permissions for the SUPPORT_ADMIN role.
var SupportAdminPermissions = []string{
	PermSystemViewAll,
	PermSystemMaintenance,
	PermCustomerReadOwn,
	PermLivestockView,
	PermMedicalView,
	PermBreedingView,
	PermWeightView,
	PermNotesView,
	PermOrderView,
	PermFeedingView,
}

// CustomerPermissions defines permissions for the CUSTOMER role.
var CustomerPermissions = []string{
	PermCustomerReadOwn,
	PermCustomerUpdateOwn,
	PermAccountManageUsers,
	PermAccountManageVetAccess,
	PermLivestockView,
	PermLivestockCreate,
	PermLivestockEdit,
	PermLivestockDelete,
	PermMedicalView,
	PermMedicalEdit,
	PermVaccinationAdd,
	PermBreedingView,
	PermBreedingEdit,
	PermWeightView,
	PermWeightAdd,
	PermNotesView,
	PermNotesAdd,
	PermNotesDelete,
	PermOrderView,
	PermOrderCreate,
	PermFeedingView,
	PermFeedingManage,
}

// AccountUserPermissions defines permissions for the ACCOUNT_USER role.
// Delete and account-administration permissions are granted per user as custom permissions.
var AccountUserPermissions = []string{
	PermCustomerReadOwn,
	PermLivestockView,
	PermLivestockCreate,
	PermLivestockEdit,
	PermMedicalView,
	PermVaccinationAdd,
	PermBreedingView,
	PermWeightView,
	PermWeightAdd,
	PermNotesView,
	PermNotesAdd,
	PermFeedingView,
	PermFeedingManage,
	PermOrderView,
}

// VeterinarianPermissions defines permissions for the VETERINARIAN role.
var VeterinarianPermissions = []string{
	PermLivestockView,
	PermLivestockEdit,
	PermMedicalView,
	PermMedicalEdit,
	PermVaccinationAdd,
	PermBreedingView,
	PermBreedingEdit,
	PermWeightView,
	PermWeightAdd,
	PermNotesView,
	PermNotesAdd,
}

// SystemRoles is the seeded role catalog. SUPER_ADMIN receives every system permission.
func SystemRoles() []RoleDefinition {
	all := make([]string, 0, len(SystemPermissions))
	for _, p := range SystemPermissions {
		all = append(all, p.Name)
	}
	return []RoleDefinition{
		{Name: RoleSuperAdmin, DisplayName: "Super Administrator", Permissions: all},
		{Name: RoleSupportAdmin, DisplayName: "Support Administrator", Permissions: SupportAdminPermissions},
		{Name: RoleCustomer, DisplayName: "Farm Owner", Permissions: CustomerPermissions},
		{Name: RoleAccountUser, DisplayName: "Farm Employee", Permissions: AccountUserPermissions},
		{Name: RoleVeterinarian, DisplayName: "Veterinarian", Permissions: VeterinarianPermissions},
	}
}
