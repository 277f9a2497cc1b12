// Package storage keeps the authoritative per-board column order in Redis
// and relays accepted moves between service instances. Complaint records
// themselves live behind the CRUD service; only placement is kept here.
package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/brunogblum/sindicoOnline-sub001/domain"
)

const orderKeyPrefix = "board:order:"

// OrderStore persists the ordered card ids of every board column.
type OrderStore struct {
	rc *redis.Client
}

// NewOrderStore creates a store on the given Redis client.
func NewOrderStore(rc *redis.Client) *OrderStore {
	if rc == nil {
		panic("storage.NewOrderStore: redis client is nil")
	}
	return &OrderStore{rc: rc}
}

// ApplyMove removes the card from every column of the board and inserts it
// into the destination at the requested index, clamped to the column
// bounds. It returns the index actually assigned, which is what the
// broadcast to participants carries.
func (s *OrderStore) ApplyMove(ctx context.Context, boardID, cardID string, to domain.Status, index int) (int, error) {
	if !domain.KnownStatus(to) {
		return 0, errors.New("unknown destination column")
	}
	order, err := s.load(ctx, boardID)
	if err != nil {
		return 0, err
	}
	for col, ids := range order {
		order[col] = remove(ids, cardID)
	}

	col := order[to]
	if index < 0 {
		index = 0
	}
	if index > len(col) {
		index = len(col)
	}
	col = append(col, "")
	copy(col[index+1:], col[index:])
	col[index] = cardID
	order[to] = col

	if err := s.save(ctx, boardID, order); err != nil {
		return 0, err
	}
	return index, nil
}

// Order returns the current column order of the board.
func (s *OrderStore) Order(ctx context.Context, boardID string) (map[domain.Status][]string, error) {
	return s.load(ctx, boardID)
}

func (s *OrderStore) load(ctx context.Context, boardID string) (map[domain.Status][]string, error) {
	order := make(map[domain.Status][]string, len(domain.Columns()))
	for _, col := range domain.Columns() {
		order[col] = []string{}
	}
	data, err := s.rc.Get(ctx, orderKey(boardID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return order, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderStore) save(ctx context.Context, boardID string, order map[domain.Status][]string) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.rc.Set(ctx, orderKey(boardID), data, 0).Err()
}

func orderKey(boardID string) string {
	return orderKeyPrefix + boardID
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
