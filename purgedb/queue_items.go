// Copyright (C) 2026 Servebolt AS
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package purgedb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrItemNotFound is returned when an id does not resolve within the
// queried queue.
var ErrItemNotFound = errors.New("queue item not found")

const queueItemColumns = `id, queue, parent_id, parent_queue_name, payload, attempts, force_retry, reserved_at, completed_at, failed_at, created_at, updated_at`

func scanQueueItem(row pgx.Row) (QueueItem, error) {
	var i QueueItem
	err := row.Scan(
		&i.ID,
		&i.Queue,
		&i.ParentID,
		&i.ParentQueue,
		&i.Payload,
		&i.Attempts,
		&i.ForceRetry,
		&i.ReservedAt,
		&i.CompletedAt,
		&i.FailedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

// InsertQueueItem inserts a new item and returns the persisted row.
func (s *Store) InsertQueueItem(ctx context.Context, params InsertQueueItemParams) (QueueItem, error) {
	sql := numberPlaceholders(`INSERT INTO purge_queue_items
  (queue, parent_id, parent_queue_name, payload, attempts, force_retry, created_at, updated_at)
VALUES (?, ?, ?, ?, 0, false, now(), now())
RETURNING ` + queueItemColumns)
	item, err := scanQueueItem(s.db.QueryRow(ctx, sql,
		params.Queue, params.ParentID, params.ParentQueue, params.Payload))
	if err != nil {
		return QueueItem{}, fmt.Errorf("insert queue item: %w", err)
	}
	return item, nil
}

// GetQueueItem fetches one item by id, scoped to a queue.
func (s *Store) GetQueueItem(ctx context.Context, id int64, queue string) (QueueItem, error) {
	sql := numberPlaceholders(`SELECT ` + queueItemColumns + ` FROM purge_queue_items WHERE id = ? AND queue = ?`)
	item, err := scanQueueItem(s.db.QueryRow(ctx, sql, id, queue))
	if errors.Is(err, pgx.ErrNoRows) {
		return QueueItem{}, ErrItemNotFound
	}
	if err != nil {
		return QueueItem{}, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

// SelectQueueItems runs an ItemQuery and returns the matching rows.
func (s *Store) SelectQueueItems(ctx context.Context, q *ItemQuery) ([]QueueItem, error) {
	where, args := q.whereClause()
	sql := `SELECT ` + queueItemColumns + ` FROM purge_queue_items`
	if where != "" {
		sql += ` WHERE ` + where
	}
	sql += q.tail()
	rows, err := s.db.Query(ctx, numberPlaceholders(sql), args...)
	if err != nil {
		return nil, fmt.Errorf("select queue items: %w", err)
	}
	defer rows.Close()

	var items []QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountQueueItems runs an ItemQuery as COUNT(*).
func (s *Store) CountQueueItems(ctx context.Context, q *ItemQuery) (int64, error) {
	where, args := q.whereClause()
	sql := `SELECT COUNT(*) FROM purge_queue_items`
	if where != "" {
		sql += ` WHERE ` + where
	}
	var n int64
	if err := s.db.QueryRow(ctx, numberPlaceholders(sql), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queue items: %w", err)
	}
	return n, nil
}

// ClaimQueueItemParams identifies one item to claim.
type ClaimQueueItemParams struct {
	ID          int64
	Queue       string
	DoAttempt   bool
	MaxAttempts int32
}

// ClaimQueueItem reserves one item with a single conditional update. The
// claim succeeds only if the row is still unreserved and claimable at
// update time, which is what makes concurrent claimers safe without any
// external locking. A lost race returns ok=false, not an error.
func (s *Store) ClaimQueueItem(ctx context.Context, params ClaimQueueItemParams) (QueueItem, bool, error) {
	sql := numberPlaceholders(`UPDATE purge_queue_items
SET reserved_at = now(),
    attempts = attempts + CASE WHEN ?::bool THEN 1 ELSE 0 END,
    updated_at = now()
WHERE id = ? AND queue = ?
  AND reserved_at IS NULL
  AND completed_at IS NULL
  AND failed_at IS NULL
  AND (attempts < ? OR force_retry)
RETURNING ` + queueItemColumns)
	item, err := scanQueueItem(s.db.QueryRow(ctx, sql,
		params.DoAttempt, params.ID, params.Queue, params.MaxAttempts))
	if errors.Is(err, pgx.ErrNoRows) {
		return QueueItem{}, false, nil
	}
	if err != nil {
		return QueueItem{}, false, fmt.Errorf("claim queue item: %w", err)
	}
	return item, true, nil
}

// ClaimBatchParams controls a batched claim pass.
type ClaimBatchParams struct {
	Queue       string
	Limit       int32
	DoAttempt   bool
	MaxAttempts int32
}

// ClaimQueueItems claims up to Limit claimable items, newest first. It
// selects candidates and then claims each with the conditional update;
// candidates lost to a concurrent claimer are skipped, so two overlapping
// drains never hold the same item.
func (s *Store) ClaimQueueItems(ctx context.Context, params ClaimBatchParams) ([]QueueItem, error) {
	var claimed []QueueItem
	err := s.execTx(ctx, func(tx *Store) error {
		candidates, err := NewItemQuery(
			InQueue(params.Queue),
			IsClaimable(params.MaxAttempts),
		).OrderBy("id", true).Limit(params.Limit).Rows(ctx, tx)
		if err != nil {
			return err
		}
		for _, cand := range candidates {
			item, ok, err := tx.ClaimQueueItem(ctx, ClaimQueueItemParams{
				ID:          cand.ID,
				Queue:       params.Queue,
				DoAttempt:   params.DoAttempt,
				MaxAttempts: params.MaxAttempts,
			})
			if err != nil {
				return err
			}
			if ok {
				claimed = append(claimed, item)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ReleaseQueueItem drops the reservation on an item. Releasing an item
// that is not reserved is a no-op returning false.
func (s *Store) ReleaseQueueItem(ctx context.Context, id int64, queue string) (bool, error) {
	sql := numberPlaceholders(`UPDATE purge_queue_items
SET reserved_at = NULL, updated_at = now()
WHERE id = ? AND queue = ? AND reserved_at IS NOT NULL AND completed_at IS NULL AND failed_at IS NULL`)
	tag, err := s.db.Exec(ctx, sql, id, queue)
	if err != nil {
		return false, fmt.Errorf("release queue item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CompleteQueueItem marks an item done. Completion implies reservation, so
// an unreserved item gets its reservation timestamp set in the same write.
func (s *Store) CompleteQueueItem(ctx context.Context, id int64, queue string) (bool, error) {
	sql := numberPlaceholders(`UPDATE purge_queue_items
SET reserved_at = COALESCE(reserved_at, now()), completed_at = now(), updated_at = now()
WHERE id = ? AND queue = ? AND completed_at IS NULL AND failed_at IS NULL`)
	tag, err := s.db.Exec(ctx, sql, id, queue)
	if err != nil {
		return false, fmt.Errorf("complete queue item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FailQueueItem flags an item as terminally failed and drops its
// reservation.
func (s *Store) FailQueueItem(ctx context.Context, id int64, queue string) (bool, error) {
	sql := numberPlaceholders(`UPDATE purge_queue_items
SET failed_at = now(), reserved_at = NULL, updated_at = now()
WHERE id = ? AND queue = ? AND completed_at IS NULL AND failed_at IS NULL`)
	tag, err := s.db.Exec(ctx, sql, id, queue)
	if err != nil {
		return false, fmt.Errorf("fail queue item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordAttempt increments the attempt counter on an item.
func (s *Store) RecordAttempt(ctx context.Context, id int64, queue string) (bool, error) {
	sql := numberPlaceholders(`UPDATE purge_queue_items
SET attempts = attempts + 1, updated_at = now()
WHERE id = ? AND queue = ?`)
	tag, err := s.db.Exec(ctx, sql, id, queue)
	if err != nil {
		return false, fmt.Errorf("record attempt: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetForceRetry sets or clears the manual retry override.
func (s *Store) SetForceRetry(ctx context.Context, id int64, queue string, force bool) (bool, error) {
	sql := numberPlaceholders(`UPDATE purge_queue_items
SET force_retry = ?, updated_at = now()
WHERE id = ? AND queue = ?`)
	tag, err := s.db.Exec(ctx, sql, force, id, queue)
	if err != nil {
		return false, fmt.Errorf("set force retry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FailExhausted flags every unreserved active item at or over the attempt
// ceiling, unless force_retry is set. Returns the number flagged.
func (s *Store) FailExhausted(ctx context.Context, queue string, maxAttempts int32) (int64, error) {
	sql := numberPlaceholders(`UPDATE purge_queue_items
SET failed_at = now(), updated_at = now()
WHERE queue = ?
  AND completed_at IS NULL
  AND failed_at IS NULL
  AND reserved_at IS NULL
  AND attempts >= ?
  AND NOT force_retry`)
	tag, err := s.db.Exec(ctx, sql, queue, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("fail exhausted items: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReleaseStaleReservations releases active items whose lease is older than
// the cutoff. This is the recovery path for workers that died mid-batch.
func (s *Store) ReleaseStaleReservations(ctx context.Context, queue string, olderThan time.Time) (int64, error) {
	sql := numberPlaceholders(`UPDATE purge_queue_items
SET reserved_at = NULL, updated_at = now()
WHERE queue = ? AND reserved_at < ? AND completed_at IS NULL AND failed_at IS NULL`)
	tag, err := s.db.Exec(ctx, sql, queue, olderThan)
	if err != nil {
		return 0, fmt.Errorf("release stale reservations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteQueueItems removes the given ids from a queue.
func (s *Store) DeleteQueueItems(ctx context.Context, queue string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	sql := numberPlaceholders(`DELETE FROM purge_queue_items WHERE queue = ? AND id = ANY(?)`)
	tag, err := s.db.Exec(ctx, sql, queue, ids)
	if err != nil {
		return 0, fmt.Errorf("delete queue items: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteWhere removes every row matching the query.
func (s *Store) DeleteWhere(ctx context.Context, q *ItemQuery) (int64, error) {
	where, args := q.whereClause()
	sql := `DELETE FROM purge_queue_items`
	if where != "" {
		sql += ` WHERE ` + where
	}
	tag, err := s.db.Exec(ctx, numberPlaceholders(sql), args...)
	if err != nil {
		return 0, fmt.Errorf("delete queue items by query: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteTerminalOlderThan garbage-collects completed and failed rows whose
// terminal timestamp is before the cutoff.
func (s *Store) DeleteTerminalOlderThan(ctx context.Context, queue string, before time.Time) (int64, error) {
	q := NewItemQuery(
		InQueue(queue),
		Group(CompletedBefore(before), Or(FailedBefore(before))),
	)
	return s.DeleteWhere(ctx, q)
}
