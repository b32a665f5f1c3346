package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"lingua/pkg/approval"
	"lingua/pkg/models"
	"lingua/pkg/threads"
	"lingua/pkg/utils"
)

// listMessageApprovals handles GET /threads/{threadID}/messages/{id}/approvals.
func listMessageApprovals(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	if _, err := threads.GetOwnedThread(vars["threadID"], user); err != nil {
		writeErr(w, err)
		return
	}
	as, err := approval.ListForMessage(vars["id"], user)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Approvals []models.ToolCallApproval `json:"approvals"`
	}{Approvals: as})
}

// approveApproval handles POST /approvals/{id}/approve. The flashcard is
// created before the approval flips; a side-effect failure leaves the
// approval pending and retryable.
func approveApproval(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	a, err := approval.Approve(mux.Vars(r)["id"], user)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, a)
}

// rejectApproval handles POST /approvals/{id}/reject.
func rejectApproval(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	a, err := approval.Reject(mux.Vars(r)["id"], user)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, a)
}
