package domain

// ApprovalVerdict is the result of a tool-approval decision (spec.md §4.3
// step 5, §9 "Approval correlation").
type ApprovalVerdict string

const (
	// ApprovalApproved permits the tool call to execute.
	ApprovalApproved ApprovalVerdict = "approved"
	// ApprovalDenied blocks the tool call; Reason explains why.
	ApprovalDenied ApprovalVerdict = "denied"
	// ApprovalQuit terminates the chat loop with a user-quit error.
	ApprovalQuit ApprovalVerdict = "quit"
)

// Approval is the value carried on a pending-approval reply channel.
type Approval struct {
	Verdict ApprovalVerdict
	Reason  string // set when Verdict == ApprovalDenied
}

// Approved constructs an Approved Approval.
func Approved() Approval { return Approval{Verdict: ApprovalApproved} }

// Denied constructs a Denied Approval carrying reason.
func Denied(reason string) Approval {
	return Approval{Verdict: ApprovalDenied, Reason: reason}
}

// Quit constructs a Quit Approval.
func Quit() Approval { return Approval{Verdict: ApprovalQuit} }
