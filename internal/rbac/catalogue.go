package rbac

// Resources
const (
	ResourceDocuments        = "documents"
	ResourceCompanies        = "companies"
	ResourceContacts         = "contacts"
	ResourceTags             = "tags"
	ResourceContractServices = "contract_services"
	ResourceAuditLogs        = "audit_logs"
	ResourceUsers            = "users"
	ResourceRoles            = "roles"
	ResourceTaxCodes         = "tax_codes"
	ResourceStatistics       = "statistics"
)

// Actions
const (
	ActionRead    = "read"
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionApprove = "approve"
	ActionExport  = "export"
	ActionManage  = "manage"
)

// Catalogue is every permission the API checks
var Catalogue = []Permission{
	{ResourceDocuments, ActionRead},
	{ResourceDocuments, ActionCreate},
	{ResourceDocuments, ActionUpdate},
	{ResourceDocuments, ActionDelete},
	{ResourceDocuments, ActionApprove},
	{ResourceDocuments, ActionExport},
	{ResourceCompanies, ActionRead},
	{ResourceCompanies, ActionCreate},
	{ResourceCompanies, ActionUpdate},
	{ResourceCompanies, ActionDelete},
	{ResourceContacts, ActionRead},
	{ResourceContacts, ActionManage},
	{ResourceTags, ActionRead},
	{ResourceTags, ActionManage},
	{ResourceContractServices, ActionRead},
	{ResourceContractServices, ActionManage},
	{ResourceAuditLogs, ActionRead},
	{ResourceUsers, ActionRead},
	{ResourceUsers, ActionManage},
	{ResourceRoles, ActionManage},
	{ResourceTaxCodes, ActionRead},
	{ResourceTaxCodes, ActionManage},
	{ResourceStatistics, ActionRead},
}

// DefaultRole describes a role seeded into every new tenant
type DefaultRole struct {
	Name        string
	Description string
	Permissions []Permission
}

// DefaultRoles are created for each tenant on setup
var DefaultRoles = []DefaultRole{
	{
		Name:        "accountant",
		Description: "Reviews and approves documents, manages contacts and tags",
		Permissions: []Permission{
			{ResourceDocuments, ActionRead}, {ResourceDocuments, ActionCreate}, {ResourceDocuments, ActionUpdate},
			{ResourceDocuments, ActionDelete}, {ResourceDocuments, ActionApprove}, {ResourceDocuments, ActionExport},
			{ResourceCompanies, ActionRead},
			{ResourceContacts, ActionRead}, {ResourceContacts, ActionManage},
			{ResourceTags, ActionRead}, {ResourceTags, ActionManage},
			{ResourceContractServices, ActionRead}, {ResourceContractServices, ActionManage},
			{ResourceTaxCodes, ActionRead},
			{ResourceStatistics, ActionRead},
		},
	},
	{
		Name:        "bookkeeper",
		Description: "Uploads documents and edits drafts",
		Permissions: []Permission{
			{ResourceDocuments, ActionRead}, {ResourceDocuments, ActionCreate}, {ResourceDocuments, ActionUpdate},
			{ResourceCompanies, ActionRead},
			{ResourceContacts, ActionRead},
			{ResourceTags, ActionRead},
			{ResourceContractServices, ActionRead},
			{ResourceTaxCodes, ActionRead},
		},
	},
	{
		Name:        "viewer",
		Description: "Read-only access",
		Permissions: []Permission{
			{ResourceDocuments, ActionRead},
			{ResourceCompanies, ActionRead},
			{ResourceContacts, ActionRead},
			{ResourceTags, ActionRead},
			{ResourceContractServices, ActionRead},
			{ResourceStatistics, ActionRead},
		},
	},
}
