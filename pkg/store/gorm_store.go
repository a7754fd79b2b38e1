package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"pathwise/pkg/domain"
)

const migrateLockID int64 = 52915291

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock so
// multiple instances can start concurrently.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{},
			&TranscriptModel{},
			&PlanModel{},
			&ArtifactModel{},
			&CoachMessageModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "promo_code", "updated_at"}),
	}).Create(&model).Error
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SetUserDisplayName records a name captured from conversation.
func (s *GormStore) SetUserDisplayName(id, name string) error {
	return s.db.Model(&UserModel{}).Where("id = ?", id).Updates(map[string]any{
		"display_name": name,
		"updated_at":   time.Now().UTC(),
	}).Error
}

// SaveTranscript inserts or replaces the per-user transcript in one statement.
func (s *GormStore) SaveTranscript(t domain.Transcript) error {
	model, err := transcriptToModel(t)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"session_token", "interview", "modules", "plan_card",
			"payment_verified", "updated_at",
		}),
	}).Create(&model).Error
}

// GetTranscriptByUser returns the single transcript row for a user.
func (s *GormStore) GetTranscriptByUser(userID string) (domain.Transcript, bool, error) {
	var model TranscriptModel
	if err := s.db.Where("user_id = ?", userID).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Transcript{}, false, nil
		}
		return domain.Transcript{}, false, err
	}
	t, err := transcriptFromModel(model)
	if err != nil {
		return domain.Transcript{}, false, err
	}
	return t, true, nil
}

// SetDossier replaces the dossier document wholesale.
func (s *GormStore) SetDossier(userID string, d domain.Dossier) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal dossier: %w", err)
	}
	return s.db.Model(&TranscriptModel{}).Where("user_id = ?", userID).Updates(map[string]any{
		"dossier":    raw,
		"updated_at": time.Now().UTC(),
	}).Error
}

// SetPaymentVerified flips the payment flag on the transcript.
func (s *GormStore) SetPaymentVerified(userID string, verified bool) error {
	return s.db.Model(&TranscriptModel{}).Where("user_id = ?", userID).Updates(map[string]any{
		"payment_verified": verified,
		"updated_at":       time.Now().UTC(),
	}).Error
}

// CreatePlan inserts a plan unless the user already has one. The unique index
// on user_id plus ON CONFLICT DO NOTHING makes initialization race-safe; the
// return value reports whether this call created the row.
func (s *GormStore) CreatePlan(p domain.SeriousPlan) (bool, error) {
	model := planToModel(p)
	res := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&model)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetPlan retrieves a plan by ID.
func (s *GormStore) GetPlan(id string) (domain.SeriousPlan, bool, error) {
	var model PlanModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.SeriousPlan{}, false, nil
		}
		return domain.SeriousPlan{}, false, err
	}
	return planFromModel(model), true, nil
}

// GetPlanByUser retrieves the plan owned by a user.
func (s *GormStore) GetPlanByUser(userID string) (domain.SeriousPlan, bool, error) {
	var model PlanModel
	if err := s.db.Where("user_id = ?", userID).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.SeriousPlan{}, false, nil
		}
		return domain.SeriousPlan{}, false, err
	}
	return planFromModel(model), true, nil
}

// SetPlanStatus updates the overall plan status.
func (s *GormStore) SetPlanStatus(id string, status domain.PlanStatus) error {
	return s.db.Model(&PlanModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	}).Error
}

// SetPlanSummary records metadata returned by the bulk generation pass.
func (s *GormStore) SetPlanSummary(id string, clientName, tone string) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if clientName != "" {
		updates["client_name"] = clientName
	}
	if tone != "" {
		updates["tone"] = tone
	}
	return s.db.Model(&PlanModel{}).Where("id = ?", id).Updates(updates).Error
}

// SetLetter updates the coach-letter sub-status. Content is only overwritten
// when non-empty so a failed attempt keeps prior content.
func (s *GormStore) SetLetter(planID string, status domain.ArtifactStatus, content string) error {
	updates := map[string]any{
		"letter_status": string(status),
		"updated_at":    time.Now().UTC(),
	}
	if content != "" {
		updates["letter_content"] = content
	}
	return s.db.Model(&PlanModel{}).Where("id = ?", planID).Updates(updates).Error
}

// SetBundlePDF updates the bundle PDF sub-status and URL.
func (s *GormStore) SetBundlePDF(planID string, status domain.PDFStatus, url string) error {
	updates := map[string]any{
		"bundle_pdf_status": string(status),
		"updated_at":        time.Now().UTC(),
	}
	if url != "" {
		updates["bundle_pdf_url"] = url
	}
	return s.db.Model(&PlanModel{}).Where("id = ?", planID).Updates(updates).Error
}

// CreateArtifacts bulk-inserts seed artifact rows.
func (s *GormStore) CreateArtifacts(artifacts []domain.PlanArtifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	models := make([]ArtifactModel, 0, len(artifacts))
	for _, a := range artifacts {
		models = append(models, artifactToModel(a))
	}
	return s.db.CreateInBatches(&models, 50).Error
}

// ListArtifacts returns a plan's artifacts in display order.
func (s *GormStore) ListArtifacts(planID string) ([]domain.PlanArtifact, error) {
	var models []ArtifactModel
	if err := s.db.Where("plan_id = ?", planID).
		Order("display_order ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.PlanArtifact, 0, len(models))
	for _, m := range models {
		res = append(res, artifactFromModel(m))
	}
	return res, nil
}

// GetArtifactByKey returns one artifact of a plan.
func (s *GormStore) GetArtifactByKey(planID, key string) (domain.PlanArtifact, bool, error) {
	var model ArtifactModel
	if err := s.db.Where("plan_id = ? AND key = ?", planID, key).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.PlanArtifact{}, false, nil
		}
		return domain.PlanArtifact{}, false, err
	}
	return artifactFromModel(model), true, nil
}

// MarkArtifacts transitions every artifact of a plan in status `from` to
// status `to` and returns the affected rows.
func (s *GormStore) MarkArtifacts(planID string, from, to domain.ArtifactStatus) ([]domain.PlanArtifact, error) {
	var models []ArtifactModel
	if err := s.db.Where("plan_id = ? AND status = ?", planID, string(from)).
		Order("display_order ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	if err := s.db.Model(&ArtifactModel{}).
		Where("plan_id = ? AND status = ?", planID, string(from)).
		Updates(map[string]any{
			"status":     string(to),
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
		return nil, err
	}
	res := make([]domain.PlanArtifact, 0, len(models))
	for _, m := range models {
		m.Status = string(to)
		res = append(res, artifactFromModel(m))
	}
	return res, nil
}

// SetArtifactStatus updates a single artifact's status.
func (s *GormStore) SetArtifactStatus(planID, key string, status domain.ArtifactStatus) error {
	return s.db.Model(&ArtifactModel{}).
		Where("plan_id = ? AND key = ?", planID, key).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		}).Error
}

// SetArtifactResult fills a generated artifact and marks it complete.
func (s *GormStore) SetArtifactResult(planID, key, title, importance, whyImportant, content string) error {
	updates := map[string]any{
		"status":     string(domain.ArtifactComplete),
		"content":    content,
		"updated_at": time.Now().UTC(),
	}
	if title != "" {
		updates["title"] = title
	}
	if importance != "" {
		updates["importance"] = importance
	}
	if whyImportant != "" {
		updates["why_important"] = whyImportant
	}
	return s.db.Model(&ArtifactModel{}).
		Where("plan_id = ? AND key = ?", planID, key).
		Updates(updates).Error
}

// SetArtifactContent overwrites content and status, used for filler text.
func (s *GormStore) SetArtifactContent(planID, key, content string, status domain.ArtifactStatus) error {
	return s.db.Model(&ArtifactModel{}).
		Where("plan_id = ? AND key = ?", planID, key).
		Updates(map[string]any{
			"content":    content,
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		}).Error
}

// SetArtifactPDF updates a single artifact's PDF sub-status and URL.
func (s *GormStore) SetArtifactPDF(planID, key string, status domain.PDFStatus, url string) error {
	updates := map[string]any{
		"pdf_status": string(status),
		"updated_at": time.Now().UTC(),
	}
	if url != "" {
		updates["pdf_url"] = url
	}
	return s.db.Model(&ArtifactModel{}).
		Where("plan_id = ? AND key = ?", planID, key).
		Updates(updates).Error
}

// AppendCoachMessage records a coach chat message.
func (s *GormStore) AppendCoachMessage(msg domain.CoachMessage) error {
	model := coachMessageToModel(msg)
	return s.db.Create(&model).Error
}

// ListCoachMessages returns coach chat messages in chronological order.
func (s *GormStore) ListCoachMessages(planID string, limit int) ([]domain.CoachMessage, error) {
	query := s.db.Where("plan_id = ?", planID).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []CoachMessageModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.CoachMessage, 0, len(models))
	for _, m := range models {
		msgs = append(msgs, coachMessageFromModel(m))
	}
	return msgs, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:            u.ID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		OAuthProvider: u.OAuthProvider,
		OAuthSubject:  u.OAuthSubject,
		PromoCode:     u.PromoCode,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:            m.ID,
		Email:         m.Email,
		DisplayName:   m.DisplayName,
		OAuthProvider: m.OAuthProvider,
		OAuthSubject:  m.OAuthSubject,
		PromoCode:     m.PromoCode,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func transcriptToModel(t domain.Transcript) (TranscriptModel, error) {
	interview, err := json.Marshal(t.Interview)
	if err != nil {
		return TranscriptModel{}, fmt.Errorf("marshal interview: %w", err)
	}
	modules, err := json.Marshal(t.Modules)
	if err != nil {
		return TranscriptModel{}, fmt.Errorf("marshal modules: %w", err)
	}
	model := TranscriptModel{
		ID:              t.ID,
		UserID:          t.UserID,
		SessionToken:    t.SessionToken,
		Interview:       interview,
		Modules:         modules,
		PaymentVerified: t.PaymentVerified,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
	if t.PlanCard != nil {
		raw, err := json.Marshal(t.PlanCard)
		if err != nil {
			return TranscriptModel{}, fmt.Errorf("marshal plan card: %w", err)
		}
		model.PlanCard = raw
	}
	if t.Dossier != nil {
		raw, err := json.Marshal(t.Dossier)
		if err != nil {
			return TranscriptModel{}, fmt.Errorf("marshal dossier: %w", err)
		}
		model.Dossier = raw
	}
	return model, nil
}

func transcriptFromModel(m TranscriptModel) (domain.Transcript, error) {
	t := domain.Transcript{
		ID:              m.ID,
		UserID:          m.UserID,
		SessionToken:    m.SessionToken,
		PaymentVerified: m.PaymentVerified,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if len(m.Interview) > 0 {
		if err := json.Unmarshal(m.Interview, &t.Interview); err != nil {
			return domain.Transcript{}, fmt.Errorf("unmarshal interview: %w", err)
		}
	}
	if len(m.Modules) > 0 {
		if err := json.Unmarshal(m.Modules, &t.Modules); err != nil {
			return domain.Transcript{}, fmt.Errorf("unmarshal modules: %w", err)
		}
	}
	if len(m.PlanCard) > 0 {
		var card domain.PlanCard
		if err := json.Unmarshal(m.PlanCard, &card); err != nil {
			return domain.Transcript{}, fmt.Errorf("unmarshal plan card: %w", err)
		}
		t.PlanCard = &card
	}
	if len(m.Dossier) > 0 {
		var d domain.Dossier
		if err := json.Unmarshal(m.Dossier, &d); err != nil {
			return domain.Transcript{}, fmt.Errorf("unmarshal dossier: %w", err)
		}
		t.Dossier = &d
	}
	return t, nil
}

func planToModel(p domain.SeriousPlan) PlanModel {
	return PlanModel{
		ID:               p.ID,
		UserID:           p.UserID,
		Status:           string(p.Status),
		LetterStatus:     string(p.LetterStatus),
		LetterContent:    p.LetterContent,
		BundlePDFStatus:  string(p.BundlePDFStatus),
		BundlePDFURL:     p.BundlePDFURL,
		ClientName:       p.ClientName,
		Horizon:          string(p.Horizon),
		HorizonRationale: p.HorizonRationale,
		Tone:             p.Tone,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func planFromModel(m PlanModel) domain.SeriousPlan {
	return domain.SeriousPlan{
		ID:               m.ID,
		UserID:           m.UserID,
		Status:           domain.PlanStatus(m.Status),
		LetterStatus:     domain.ArtifactStatus(m.LetterStatus),
		LetterContent:    m.LetterContent,
		BundlePDFStatus:  domain.PDFStatus(m.BundlePDFStatus),
		BundlePDFURL:     m.BundlePDFURL,
		ClientName:       m.ClientName,
		Horizon:          domain.Horizon(m.Horizon),
		HorizonRationale: m.HorizonRationale,
		Tone:             m.Tone,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func artifactToModel(a domain.PlanArtifact) ArtifactModel {
	return ArtifactModel{
		ID:           a.ID,
		PlanID:       a.PlanID,
		Key:          a.Key,
		Title:        a.Title,
		Type:         string(a.Type),
		Importance:   a.Importance,
		WhyImportant: a.WhyImportant,
		Status:       string(a.Status),
		Content:      a.Content,
		PDFStatus:    string(a.PDFStatus),
		PDFURL:       a.PDFURL,
		DisplayOrder: a.DisplayOrder,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func artifactFromModel(m ArtifactModel) domain.PlanArtifact {
	return domain.PlanArtifact{
		ID:           m.ID,
		PlanID:       m.PlanID,
		Key:          m.Key,
		Title:        m.Title,
		Type:         domain.ArtifactType(m.Type),
		Importance:   m.Importance,
		WhyImportant: m.WhyImportant,
		Status:       domain.ArtifactStatus(m.Status),
		Content:      m.Content,
		PDFStatus:    domain.PDFStatus(m.PDFStatus),
		PDFURL:       m.PDFURL,
		DisplayOrder: m.DisplayOrder,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func coachMessageToModel(msg domain.CoachMessage) CoachMessageModel {
	return CoachMessageModel{
		ID:        msg.ID,
		PlanID:    msg.PlanID,
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}

func coachMessageFromModel(m CoachMessageModel) domain.CoachMessage {
	return domain.CoachMessage{
		ID:        m.ID,
		PlanID:    m.PlanID,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
