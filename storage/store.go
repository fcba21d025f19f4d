// Package storage persists finished match results and per-participant
// win/loss/tie counters. Several backends implement Store: an in-memory
// map, JSON files, an embedded badger database and Postgres through gorm.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/wricardo/connectn/game/session"
)

const (
	SortNewest     = "newest"
	SortOldest     = "oldest"
	MaxSearchCount = 100
)

var (
	ErrResultNotFound = errors.New("result not found")
	ErrInvalidSearch  = errors.New("invalid search parameters")
)

var validate = validator.New()

// Store is the result store and the counter store in one
type Store interface {
	PersistResult(ctx context.Context, result session.Result) error
	GetResults(ctx context.Context, ids []string) ([]session.Result, error)
	SearchResults(ctx context.Context, params SearchParams) ([]session.Result, error)
	FetchCounters(ctx context.Context, participantID string) (Counters, error)
	UpdateCounters(ctx context.Context, participantID string, delta Delta) error
	Close() error
}

// SearchParams selects results. Every listed player must be in a result's
// roster. An empty Sort means newest first.
type SearchParams struct {
	Count   int      `json:"count" validate:"gte=0,lte=100"`
	Sort    string   `json:"sort,omitempty" validate:"omitempty,oneof=newest oldest"`
	Players []string `json:"players,omitempty" validate:"omitempty,dive,required"`
}

// Validate checks the parameters
func (p SearchParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSearch, err)
	}
	return nil
}

// Counters are a participant's lifetime statistics
type Counters struct {
	Wins    int      `json:"wins"`
	Losses  int      `json:"losses"`
	Ties    int      `json:"ties"`
	GameIDs []string `json:"gameIDs"`
}

// Delta is the change one result makes to a participant's counters
type Delta struct {
	GameID string `json:"gameID"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
	Ties   int    `json:"ties"`
}

// DeltaFor derives the counter change of a result for one roster member
func DeltaFor(result session.Result, participantID string) Delta {
	delta := Delta{GameID: result.ID}
	switch {
	case result.Draw:
		delta.Ties = 1
	case result.Winner == participantID:
		delta.Wins = 1
	default:
		delta.Losses = 1
	}
	return delta
}

// Apply adds delta unless its game was already counted, and reports
// whether the counters changed
func (c *Counters) Apply(delta Delta) bool {
	if slices.Contains(c.GameIDs, delta.GameID) {
		return false
	}
	c.Wins += delta.Wins
	c.Losses += delta.Losses
	c.Ties += delta.Ties
	c.GameIDs = append(c.GameIDs, delta.GameID)
	return true
}

// Open creates the store named by kind: memory, file, badger or postgres.
// location is a directory for file and badger and a DSN for postgres.
func Open(kind, location string, logger *slog.Logger) (Store, error) {
	switch kind {
	case "memory", "":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(location)
	case "badger":
		return OpenBadgerStore(location, logger)
	case "postgres":
		return OpenSQLStore(location)
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}

// filterResults applies params to an unordered set of results
func filterResults(results []session.Result, params SearchParams) []session.Result {
	matched := lo.Filter(results, func(r session.Result, _ int) bool {
		return lo.Every(r.Roster, params.Players)
	})

	sort.SliceStable(matched, func(i, j int) bool {
		if params.Sort == SortOldest {
			return matched[i].CompletedAt.Before(matched[j].CompletedAt)
		}
		return matched[i].CompletedAt.After(matched[j].CompletedAt)
	})

	if len(matched) > params.Count {
		matched = matched[:params.Count]
	}
	return matched
}
