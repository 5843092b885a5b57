// Package redisjobs is a Redis-backed core.JobStore, used when the agent
// runs as multiple replicas behind a shared scheduler (spec §4.13).
package redisjobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "replenisher:jobs:"
	indexKey   = "replenisher:jobs:index"
	jobTTL     = 7 * 24 * time.Hour
)

// Store implements core.JobStore on top of a redis.Client. Jobs are stored
// as individual JSON values with a side-set index for List/MarkOrphansFailed.
type Store struct {
	rdb *redis.Client
}

// New wraps an existing Redis client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func key(id uuid.UUID) string { return keyPrefix + id.String() }

func (s *Store) Create(ctx context.Context, job core.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("redisjobs: marshal: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key(job.ID), payload, jobTTL)
	pipe.SAdd(ctx, indexKey, job.ID.String())
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redisjobs: create: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (core.Job, bool, error) {
	raw, err := s.rdb.Get(ctx, key(id)).Bytes()
	if err == redis.Nil {
		return core.Job{}, false, nil
	}
	if err != nil {
		return core.Job{}, false, fmt.Errorf("redisjobs: get: %w", err)
	}
	var job core.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return core.Job{}, false, fmt.Errorf("redisjobs: unmarshal: %w", err)
	}
	return job, true, nil
}

func (s *Store) Update(ctx context.Context, job core.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("redisjobs: marshal: %w", err)
	}
	if err := s.rdb.Set(ctx, key(job.ID), payload, jobTTL).Err(); err != nil {
		return fmt.Errorf("redisjobs: update: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]core.Job, error) {
	ids, err := s.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redisjobs: list index: %w", err)
	}
	out := make([]core.Job, 0, len(ids))
	for _, idStr := range ids {
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		job, ok, err := s.Get(ctx, id)
		if err != nil || !ok {
			s.rdb.SRem(ctx, indexKey, idStr)
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

func (s *Store) MarkOrphansFailed(ctx context.Context) error {
	jobs, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if job.Status != core.JobRunning {
			continue
		}
		job.Status = core.JobFailed
		job.Error = "interrupted by restart"
		if err := s.Update(ctx, job); err != nil {
			return err
		}
	}
	return nil
}
