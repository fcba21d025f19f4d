package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wricardo/connectn/game/engine"
	"github.com/wricardo/connectn/game/session"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResultRecord is the results table row
type ResultRecord struct {
	ID          string         `gorm:"primaryKey"`
	Roster      []string       `gorm:"serializer:json;type:jsonb"`
	Winner      string         `gorm:"index"`
	WinningRun  []engine.Coord `gorm:"serializer:json;type:jsonb"`
	Draw        bool
	CompletedAt time.Time `gorm:"index"`
	CreatedAt   time.Time
}

// CounterRecord is the per-participant counters row
type CounterRecord struct {
	ParticipantID string `gorm:"primaryKey"`
	Wins          int
	Losses        int
	Ties          int
	GameIDs       []string `gorm:"serializer:json;type:jsonb"`
	UpdatedAt     time.Time
}

func (ResultRecord) TableName() string  { return "results" }
func (CounterRecord) TableName() string { return "counters" }

// SQLStore persists to Postgres through gorm. A nil *SQLStore is a no-op
// store that finds nothing.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLStore connects to dsn and migrates the schema
func OpenSQLStore(dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres store requires a DSN")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := db.AutoMigrate(&ResultRecord{}, &CounterRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return NewSQLStore(db), nil
}

// NewSQLStore wraps an open gorm DB
func NewSQLStore(db *gorm.DB) *SQLStore {
	if db == nil {
		return nil
	}
	return &SQLStore{db: db}
}

func (s *SQLStore) PersistResult(ctx context.Context, result session.Result) error {
	if s == nil {
		return nil
	}
	record := toRecord(result)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error
}

func (s *SQLStore) GetResults(ctx context.Context, ids []string) ([]session.Result, error) {
	if len(ids) == 0 {
		return []session.Result{}, nil
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, ids[0])
	}

	var records []ResultRecord
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]ResultRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	results := make([]session.Result, 0, len(ids))
	for _, id := range ids {
		record, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrResultNotFound, id)
		}
		results = append(results, record.toResult())
	}
	return results, nil
}

// SearchResults filters and orders in the database
func (s *SQLStore) SearchResults(ctx context.Context, params SearchParams) ([]session.Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if s == nil || params.Count == 0 {
		return []session.Result{}, nil
	}

	query := s.db.WithContext(ctx).Model(&ResultRecord{})
	if len(params.Players) > 0 {
		players, err := json.Marshal(params.Players)
		if err != nil {
			return nil, err
		}
		query = query.Where("roster @> ?", string(players))
	}
	order := "completed_at DESC"
	if params.Sort == SortOldest {
		order = "completed_at ASC"
	}

	var records []ResultRecord
	if err := query.Order(order).Limit(params.Count).Find(&records).Error; err != nil {
		return nil, err
	}
	results := make([]session.Result, 0, len(records))
	for _, r := range records {
		results = append(results, r.toResult())
	}
	return results, nil
}

func (s *SQLStore) FetchCounters(ctx context.Context, participantID string) (Counters, error) {
	if s == nil {
		return Counters{}, nil
	}
	var record CounterRecord
	err := s.db.WithContext(ctx).Where("participant_id = ?", participantID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Counters{}, nil
	}
	if err != nil {
		return Counters{}, err
	}
	return Counters{
		Wins:    record.Wins,
		Losses:  record.Losses,
		Ties:    record.Ties,
		GameIDs: record.GameIDs,
	}, nil
}

// UpdateCounters locks the participant's row for the read-modify-write
func (s *SQLStore) UpdateCounters(ctx context.Context, participantID string, delta Delta) error {
	if s == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := CounterRecord{ParticipantID: participantID, GameIDs: []string{}}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}

		var record CounterRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("participant_id = ?", participantID).
			First(&record).Error
		if err != nil {
			return err
		}

		counters := Counters{Wins: record.Wins, Losses: record.Losses, Ties: record.Ties, GameIDs: record.GameIDs}
		if !counters.Apply(delta) {
			return nil
		}
		record.Wins = counters.Wins
		record.Losses = counters.Losses
		record.Ties = counters.Ties
		record.GameIDs = counters.GameIDs
		return tx.Save(&record).Error
	})
}

func (s *SQLStore) Close() error {
	if s == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(r session.Result) ResultRecord {
	return ResultRecord{
		ID:          r.ID,
		Roster:      r.Roster,
		Winner:      r.Winner,
		WinningRun:  r.WinningRun,
		Draw:        r.Draw,
		CompletedAt: r.CompletedAt,
	}
}

func (r ResultRecord) toResult() session.Result {
	return session.Result{
		ID:          r.ID,
		Roster:      r.Roster,
		Winner:      r.Winner,
		WinningRun:  r.WinningRun,
		Draw:        r.Draw,
		CompletedAt: r.CompletedAt.UTC(),
	}
}
