package store

import "pathwise/pkg/domain"

// Store defines persistence operations for users, transcripts, plans,
// artifacts, and coach chat.
type Store interface {
	// users
	SaveUser(domain.User) error
	GetUserByID(id string) (domain.User, bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	SetUserDisplayName(id, name string) error

	// transcripts
	SaveTranscript(domain.Transcript) error
	GetTranscriptByUser(userID string) (domain.Transcript, bool, error)
	SetDossier(userID string, d domain.Dossier) error
	SetPaymentVerified(userID string, verified bool) error

	// plans
	CreatePlan(domain.SeriousPlan) (bool, error)
	GetPlan(id string) (domain.SeriousPlan, bool, error)
	GetPlanByUser(userID string) (domain.SeriousPlan, bool, error)
	SetPlanStatus(id string, status domain.PlanStatus) error
	SetPlanSummary(id string, clientName, tone string) error
	SetLetter(planID string, status domain.ArtifactStatus, content string) error
	SetBundlePDF(planID string, status domain.PDFStatus, url string) error

	// artifacts
	CreateArtifacts(artifacts []domain.PlanArtifact) error
	ListArtifacts(planID string) ([]domain.PlanArtifact, error)
	GetArtifactByKey(planID, key string) (domain.PlanArtifact, bool, error)
	MarkArtifacts(planID string, from, to domain.ArtifactStatus) ([]domain.PlanArtifact, error)
	SetArtifactStatus(planID, key string, status domain.ArtifactStatus) error
	SetArtifactResult(planID, key, title, importance, whyImportant, content string) error
	SetArtifactContent(planID, key, content string, status domain.ArtifactStatus) error
	SetArtifactPDF(planID, key string, status domain.PDFStatus, url string) error

	// coach chat
	AppendCoachMessage(msg domain.CoachMessage) error
	ListCoachMessages(planID string, limit int) ([]domain.CoachMessage, error)
}
