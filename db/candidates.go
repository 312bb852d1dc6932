package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"eventstaff/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// CandidateDirectory читает представление match_candidates.
type CandidateDirectory struct {
	db *sqlx.DB
}

func NewCandidateDirectory(db *sqlx.DB) *CandidateDirectory {
	return &CandidateDirectory{db: db}
}

func (d *CandidateDirectory) ListCandidates(ctx context.Context, q CandidateQuery) ([]models.Candidate, error) {
	var (
		conds []string
		args  []interface{}
	)
	if q.Type != "" && q.Type != models.CandidateBoth {
		args = append(args, string(q.Type))
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if len(q.Categories) > 0 {
		args = append(args, pq.Array(q.Categories))
		conds = append(conds, fmt.Sprintf("categories && $%d", len(args)))
	}

	query := `SELECT id, name, type, lat, lng, categories, service_radius_km, active FROM match_candidates`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"

	rows := []candidateRow{}
	if err := d.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	res := make([]models.Candidate, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.toModel())
	}
	return res, nil
}

// MemoryDirectory каталог в памяти для режима без базы и тестов.
type MemoryDirectory struct {
	mu         sync.RWMutex
	candidates map[string]models.Candidate
}

func NewMemoryDirectory(candidates ...models.Candidate) *MemoryDirectory {
	d := &MemoryDirectory{candidates: make(map[string]models.Candidate)}
	for _, c := range candidates {
		d.Put(c)
	}
	return d
}

// Put добавляет или заменяет кандидата с тем же ID и типом.
func (d *MemoryDirectory) Put(c models.Candidate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.candidates[string(c.Type)+"/"+c.ID] = c
}

func (d *MemoryDirectory) ListCandidates(ctx context.Context, q CandidateQuery) ([]models.Candidate, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	res := []models.Candidate{}
	for _, c := range d.candidates {
		if q.Type != "" && q.Type != models.CandidateBoth && c.Type != q.Type {
			continue
		}
		if len(q.Categories) > 0 && !overlaps(c.Categories, q.Categories) {
			continue
		}
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
