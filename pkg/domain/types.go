package domain

import "time"

// PlanStatus tracks the overall lifecycle of a serious plan.
type PlanStatus string

const (
	PlanGenerating PlanStatus = "generating"
	PlanReady      PlanStatus = "ready"
	PlanError      PlanStatus = "error"
)

// ArtifactStatus tracks generation of a single plan artifact. The same values
// are used for the coach-letter sub-status.
type ArtifactStatus string

const (
	ArtifactPending    ArtifactStatus = "pending"
	ArtifactGenerating ArtifactStatus = "generating"
	ArtifactComplete   ArtifactStatus = "complete"
	ArtifactError      ArtifactStatus = "error"
)

// PDFStatus tracks rendering of an artifact or bundle PDF.
type PDFStatus string

const (
	PDFPending   PDFStatus = "pending"
	PDFRendering PDFStatus = "rendering"
	PDFComplete  PDFStatus = "complete"
	PDFError     PDFStatus = "error"
)

// Horizon is the recommended timeframe for acting on the coaching plan.
type Horizon string

const (
	Horizon30Days  Horizon = "30_days"
	Horizon60Days  Horizon = "60_days"
	Horizon90Days  Horizon = "90_days"
	Horizon6Months Horizon = "6_months"
)

// ArtifactType tags what kind of document an artifact is.
type ArtifactType string

const (
	ArtifactGenerated  ArtifactType = "generated"
	ArtifactTranscript ArtifactType = "transcript"
)

// ModuleCount is the number of coaching modules in the guided program.
const ModuleCount = 3

type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"displayName,omitempty"`
	OAuthProvider string    `json:"-"`
	OAuthSubject  string    `json:"-"`
	PromoCode     string    `json:"promoCode,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ChatMessage is one turn in the interview, a coaching module, or coach chat.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModuleLog holds the conversation and completion state of one coaching module.
type ModuleLog struct {
	Messages  []ChatMessage `json:"messages"`
	Completed bool          `json:"completed"`
	Summary   string        `json:"summary,omitempty"`
}

// PlanModule is one of the three coaching modules agreed with the user.
type PlanModule struct {
	Title string `json:"title"`
	Focus string `json:"focus"`
	Why   string `json:"why,omitempty"`
}

// PlanCard is the three-module coaching plan agreed during the interview.
type PlanCard struct {
	Modules []PlanModule `json:"modules"`
}

// Transcript is the per-user interview record: the interview message log, the
// three module logs, the agreed plan card, and the derived dossier.
type Transcript struct {
	ID              string                 `json:"id"`
	UserID          string                 `json:"userId"`
	SessionToken    string                 `json:"-"`
	Interview       []ChatMessage          `json:"interview"`
	Modules         [ModuleCount]ModuleLog `json:"modules"`
	PlanCard        *PlanCard              `json:"planCard,omitempty"`
	Dossier         *Dossier               `json:"-"`
	PaymentVerified bool                   `json:"paymentVerified"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// ModuleAnalysis is the dossier record derived from one completed module.
type ModuleAnalysis struct {
	Module    int       `json:"module"`
	Insights  []string  `json:"insights,omitempty"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"createdAt"`
}

// Dossier is the internal-only structured analysis of a user's conversations.
// It is never echoed verbatim to the end user; only derived material (plan
// artifacts, the coach letter) reaches them.
type Dossier struct {
	ClientName  string           `json:"clientName,omitempty"`
	Situation   string           `json:"situation"`
	Constraints []string         `json:"constraints,omitempty"`
	Motivations []string         `json:"motivations,omitempty"`
	Fears       []string         `json:"fears,omitempty"`
	KeyFacts    []string         `json:"keyFacts,omitempty"`
	Analyses    []ModuleAnalysis `json:"analyses,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// SeriousPlan is the final deliverable bundle for a user. The letter and the
// bulk artifacts are generated independently; overall Status is gated on the
// artifacts only.
type SeriousPlan struct {
	ID               string         `json:"id"`
	UserID           string         `json:"userId"`
	Status           PlanStatus     `json:"status"`
	LetterStatus     ArtifactStatus `json:"letterStatus"`
	LetterContent    string         `json:"letterContent,omitempty"`
	BundlePDFStatus  PDFStatus      `json:"bundlePdfStatus"`
	BundlePDFURL     string         `json:"bundlePdfUrl,omitempty"`
	ClientName       string         `json:"clientName,omitempty"`
	Horizon          Horizon        `json:"horizon"`
	HorizonRationale string         `json:"horizonRationale,omitempty"`
	Tone             string         `json:"tone,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// PlanArtifact is one document within a serious plan bundle.
type PlanArtifact struct {
	ID           string         `json:"id"`
	PlanID       string         `json:"planId"`
	Key          string         `json:"key"`
	Title        string         `json:"title"`
	Type         ArtifactType   `json:"type"`
	Importance   string         `json:"importance,omitempty"`
	WhyImportant string         `json:"whyImportant,omitempty"`
	Status       ArtifactStatus `json:"status"`
	Content      string         `json:"content,omitempty"`
	PDFStatus    PDFStatus      `json:"pdfStatus"`
	PDFURL       string         `json:"pdfUrl,omitempty"`
	DisplayOrder int            `json:"displayOrder"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// CoachMessage is one turn of the post-delivery coach chat, append-only.
type CoachMessage struct {
	ID        string    `json:"id"`
	PlanID    string    `json:"planId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// PlannedArtifact describes one artifact the bulk worker should generate.
type PlannedArtifact struct {
	Key        string `json:"key"`
	Title      string `json:"title"`
	Type       string `json:"type"`
	Importance string `json:"importance"`
}
