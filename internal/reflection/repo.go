package reflection

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/mind-weather/internal/common"
	"gorm.io/gorm"
)

// Repo is the relational Store.
type Repo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db, now: time.Now}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *Repo) CreateSession(ctx context.Context, weather MindWeather, startedAt time.Time) (*Session, error) {
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	s := &Session{ID: id, MindWeather: weather, StartedAt: startedAt}
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Repo) GetSession(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *Repo) UpdateSession(ctx context.Context, id string, patch SessionPatch) (*Session, error) {
	s, err := r.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if cols := patch.Columns(); len(cols) > 0 {
		if err := r.db.WithContext(ctx).Model(&Session{}).
			Where("id = ?", id).
			Updates(cols).Error; err != nil {
			return nil, err
		}
	}
	patch.Apply(s)
	return s, nil
}

func (r *Repo) CreateThoughts(ctx context.Context, sessionID string, texts []string) ([]Thought, error) {
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	texts = NormalizeTexts(texts)
	if len(texts) == 0 {
		return []Thought{}, nil
	}

	createdAt := r.now().UTC()
	thoughts := make([]Thought, 0, len(texts))
	for _, text := range texts {
		id, err := common.NewULID()
		if err != nil {
			return nil, err
		}
		thoughts = append(thoughts, Thought{
			ID:          id,
			SessionID:   sessionID,
			ThoughtText: text,
			CreatedAt:   createdAt,
		})
	}
	if err := r.db.WithContext(ctx).Create(&thoughts).Error; err != nil {
		return nil, err
	}
	return thoughts, nil
}

// GetThoughtsBySession orders by created_at, then id; ids are ULIDs so a
// batch sharing one timestamp keeps its insertion order.
func (r *Repo) GetThoughtsBySession(ctx context.Context, sessionID string) ([]Thought, error) {
	var thoughts []Thought
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&thoughts).Error; err != nil {
		return nil, err
	}
	return thoughts, nil
}

func (r *Repo) UpdateThought(ctx context.Context, id string, patch ThoughtPatch) (*Thought, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	var t Thought
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	if cols := patch.Columns(); len(cols) > 0 {
		if err := r.db.WithContext(ctx).Model(&Thought{}).
			Where("id = ?", id).
			Updates(cols).Error; err != nil {
			return nil, err
		}
	}
	patch.Apply(&t)
	return &t, nil
}

func (r *Repo) ClearAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := all.Delete(&Thought{}).Error; err != nil {
			return err
		}
		return all.Delete(&Session{}).Error
	})
}
