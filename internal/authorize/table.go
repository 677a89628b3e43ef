package authorize

import "tramita/internal/domain"

// Action names a user-visible operation on a record. Every action maps to
// exactly one permission code; state legality and tramit authority are
// layered on top of the permission check, never encoded in it.
type Action string

const (
	ActionValidate           Action = "validate"
	ActionCancel             Action = "cancel"
	ActionAnswer             Action = "answer"
	ActionReassign           Action = "reassign"
	ActionClaim              Action = "claim"
	ActionCancelRequest      Action = "cancel_request"
	ActionUpdate             Action = "update"
	ActionToggleUrgency      Action = "toggle_urgency"
	ActionToggleReassignable Action = "toggle_reassignable"
	ActionThemeChange        Action = "theme_change"
	ActionUploadFile         Action = "upload_file"
	ActionDeleteFile         Action = "delete_file"
	ActionAddConversation    Action = "add_conversation"
	ActionDraftAnswer        Action = "draft_answer"
	ActionResendAnswer       Action = "resend_answer"
	ActionMultiRecord        Action = "multirecord"
)

// permissionFor is the static action-to-permission table. Unknown actions are
// rejected before any other gate runs.
var permissionFor = map[Action]string{
	ActionValidate:           "record.validate",
	ActionCancel:             "record.cancel",
	ActionAnswer:             "record.answer",
	ActionReassign:           "record.reassign",
	ActionClaim:              "record.claim",
	ActionCancelRequest:      "record.cancel_request",
	ActionUpdate:             "record.update",
	ActionToggleUrgency:      "record.toggle_urgency",
	ActionToggleReassignable: "record.toggle_reassignable",
	ActionThemeChange:        "record.theme_change",
	ActionUploadFile:         "record.upload_file",
	ActionDeleteFile:         "record.delete_file",
	ActionAddConversation:    "record.add_conversation",
	ActionDraftAnswer:        "record.draft_answer",
	ActionResendAnswer:       "record.resend_answer",
	ActionMultiRecord:        "record.multirecord",
}

// PermissionMayorship is the elevated permission a mayorship record demands
// on top of the acted action's own permission. Holding it also stands in for
// tree ancestry in the authority gate.
const PermissionMayorship = "record.mayorship"

// closedAllowed reports which actions survive a terminal state. Claim reopens
// records (the state gate narrows it to closed); the file upload exception
// keeps the closed file trail complete for audits and applies to closed only,
// not cancelled or not_processed.
func closedAllowed(action Action, state domain.RecordState) bool {
	switch action {
	case ActionClaim:
		return true
	case ActionUploadFile:
		return state == domain.StateClosed
	}
	return false
}
