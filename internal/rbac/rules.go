package rbac

const (
	PermAttemptStart  = "attempt:start"
	PermAttemptSave   = "attempt:save"
	PermAttemptFlag   = "attempt:flag"
	PermAttemptReload = "attempt:reload"
	PermAttemptSubmit = "attempt:submit"
	PermAttemptReview = "attempt:review"
	PermExamListOwn   = "exam:list-own"

	PermCollectionWrite = "collection:write"
	PermInstanceWrite   = "instance:write"
	PermReportView      = "report:view"
)

// Default policy. Ownership of individual records is checked by the services.
var RolePermissions = map[string][]string{
	"student": {
		"attempt:*",
		PermExamListOwn,
	},
	"teacher": {
		PermCollectionWrite,
		PermInstanceWrite,
		PermReportView,
	},
	"admin": {
		"*", // everything
	},
}
