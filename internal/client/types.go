package client

import "fmt"

// Source is a repository the service can run sessions against.
type Source struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// ListSourcesResponse is the response from GET /sources.
type ListSourcesResponse struct {
	Sources       []Source `json:"sources"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
}

// SourceContext ties a session to a source and starting branch.
type SourceContext struct {
	Source            string             `json:"source"`
	GithubRepoContext *GithubRepoContext `json:"githubRepoContext,omitempty"`
}

// GithubRepoContext holds GitHub-specific source settings.
type GithubRepoContext struct {
	StartingBranch string `json:"startingBranch"`
}

// Session is a remote agent session.
type Session struct {
	Name           string         `json:"name"`
	ID             string         `json:"id"`
	State          string         `json:"state,omitempty"`
	Title          string         `json:"title"`
	SourceContext  *SourceContext `json:"sourceContext,omitempty"`
	PullRequestURL string         `json:"pullRequestUrl,omitempty"`
}

// StateOrUnknown returns the session state, or "UNKNOWN" if the server omitted it.
func (s Session) StateOrUnknown() string {
	if s.State == "" {
		return "UNKNOWN"
	}
	return s.State
}

// ListSessionsResponse is the response from GET /sessions.
type ListSessionsResponse struct {
	Sessions      []Session `json:"sessions"`
	NextPageToken string    `json:"nextPageToken,omitempty"`
}

// CreateSessionRequest is the request body for POST /sessions.
type CreateSessionRequest struct {
	Prompt         string        `json:"prompt"`
	Title          string        `json:"title"`
	SourceContext  SourceContext `json:"sourceContext"`
	AutomationMode string        `json:"automationMode,omitempty"`
}

// AutomationAutoCreatePR asks the service to open a pull request when done.
const AutomationAutoCreatePR = "AUTO_CREATE_PR"

// Originator values seen on activities.
const (
	OriginatorAgent  = "agent"
	OriginatorUser   = "user"
	OriginatorSystem = "system"
)

// Activity is one entry of a session's append-only activity log.
type Activity struct {
	Name             string            `json:"name"`
	ID               string            `json:"id"`
	Title            string            `json:"title,omitempty"`
	CreateTime       string            `json:"createTime"`
	Originator       string            `json:"originator"`
	AgentMessaged    *AgentMessaged    `json:"agentMessaged,omitempty"`
	UserMessaged     *UserMessaged     `json:"userMessaged,omitempty"`
	ProgressUpdated  *ProgressUpdated  `json:"progressUpdated,omitempty"`
	PlanApproved     *PlanApproved     `json:"planApproved,omitempty"`
	PlanGenerated    *PlanGenerated    `json:"planGenerated,omitempty"`
	SessionCompleted *SessionCompleted `json:"sessionCompleted,omitempty"`
	Artifacts        []Artifact        `json:"artifacts,omitempty"`
}

// Kind identifies which payload of an Activity is meaningful.
type Kind string

const (
	KindAgentMessage     Kind = "agent_message"
	KindUserMessage      Kind = "user_message"
	KindPlanGenerated    Kind = "plan_generated"
	KindPlanApproved     Kind = "plan_approved"
	KindSessionCompleted Kind = "session_completed"
	KindProgressUpdated  Kind = "progress_updated"
	KindArtifacts        Kind = "artifacts"
	KindTitle            Kind = "title"
	KindUnknown          Kind = "unknown"
)

// Kind reports the activity's kind. When the server sets more than one
// payload the first in declaration order of the Kind constants wins.
func (a Activity) Kind() Kind {
	switch {
	case a.AgentMessaged != nil:
		return KindAgentMessage
	case a.UserMessaged != nil:
		return KindUserMessage
	case a.PlanGenerated != nil:
		return KindPlanGenerated
	case a.PlanApproved != nil:
		return KindPlanApproved
	case a.SessionCompleted != nil:
		return KindSessionCompleted
	case a.ProgressUpdated != nil:
		return KindProgressUpdated
	case len(a.Artifacts) > 0:
		return KindArtifacts
	case a.Title != "":
		return KindTitle
	default:
		return KindUnknown
	}
}

// Summary returns a short human-readable description of the activity.
func (a Activity) Summary() string {
	switch a.Kind() {
	case KindAgentMessage:
		return a.AgentMessaged.AgentMessage
	case KindUserMessage:
		return a.UserMessaged.UserMessage
	case KindPlanGenerated:
		return fmt.Sprintf("Plan generated (%d steps)", len(a.PlanGenerated.Plan.Steps))
	case KindPlanApproved:
		return "Plan approved"
	case KindSessionCompleted:
		return "Session completed"
	case KindProgressUpdated:
		p := a.ProgressUpdated
		switch {
		case p.Title != "" && p.Description != "":
			return p.Title + ": " + p.Description
		case p.Title != "":
			return p.Title
		case p.Description != "":
			return p.Description
		default:
			return "No title"
		}
	case KindArtifacts:
		return fmt.Sprintf("%d new artifacts", len(a.Artifacts))
	case KindTitle:
		return a.Title
	default:
		return "(no content)"
	}
}

// AgentMessaged is a message written by the agent.
type AgentMessaged struct {
	AgentMessage string `json:"agentMessage"`
}

// UserMessaged is a message written by the user.
type UserMessaged struct {
	UserMessage string `json:"userMessage"`
}

// ProgressUpdated is a progress note from the agent.
type ProgressUpdated struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// PlanApproved records approval of a plan.
type PlanApproved struct {
	PlanID string `json:"planId,omitempty"`
}

// PlanGenerated carries a plan proposed by the agent.
type PlanGenerated struct {
	Plan Plan `json:"plan"`
}

// Plan is an ordered list of steps.
type Plan struct {
	ID    string `json:"id"`
	Steps []Step `json:"steps"`
}

// Step is a single plan step.
type Step struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// SessionCompleted marks the end of a session.
type SessionCompleted struct{}

// Artifact is output produced by the agent.
type Artifact struct {
	BashOutput *BashOutput `json:"bashOutput,omitempty"`
	ChangeSet  *ChangeSet  `json:"changeSet,omitempty"`
}

// BashOutput is a command and its output.
type BashOutput struct {
	Command string `json:"command"`
	Output  string `json:"output"`
}

// ChangeSet is a proposed code change.
type ChangeSet struct {
	Source                 string   `json:"source"`
	GitPatch               GitPatch `json:"gitPatch"`
	SuggestedCommitMessage string   `json:"suggestedCommitMessage,omitempty"`
}

// GitPatch is a unified diff against a base commit.
type GitPatch struct {
	UnidiffPatch string `json:"unidiffPatch,omitempty"`
	BaseCommitID string `json:"baseCommitId"`
}

// ListActivitiesResponse is one page of GET /sessions/{id}/activities.
// An empty NextPageToken means this is the last page as of now.
type ListActivitiesResponse struct {
	Activities    []Activity `json:"activities"`
	NextPageToken string     `json:"nextPageToken,omitempty"`
}
