package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"proxycrawler/internal/domain"
	"proxycrawler/internal/support"
)

const upsertLockStripes = 64

var ErrProxyNotFound = errors.New("proxy not found")

type UpsertResult int

const (
	Unchanged UpsertResult = iota
	Inserted
	Updated
)

func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// ProxyStore keeps one row per ip:port.
type ProxyStore struct {
	db    *gorm.DB
	locks [upsertLockStripes]sync.Mutex
}

func NewProxyStore(db *gorm.DB) *ProxyStore {
	return &ProxyStore{db: db}
}

func (s *ProxyStore) lock(key string) func() {
	mu := &s.locks[support.HashString(key)%upsertLockStripes]
	mu.Lock()
	return mu.Unlock
}

// Upsert inserts the candidate or refreshes the endpoint data of the row that
// already holds its ip:port. id and added_at of an existing row never change.
func (s *ProxyStore) Upsert(ctx context.Context, candidate domain.Candidate) (UpsertResult, error) {
	record := domain.NewStoredProxy(candidate)

	unlock := s.lock(record.GetFullProxy())
	defer unlock()

	result := Unchanged
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, found, err := findByEndpoint(tx, record.IP, record.Port)
		if err != nil {
			return err
		}

		if !found {
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "ip"}, {Name: "port"}},
				DoNothing: true,
			}).Create(&record)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				result = Inserted
				return nil
			}

			// another writer inserted the row first
			existing, found, err = findByEndpoint(tx, record.IP, record.Port)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("row for %s vanished after conflict", record.GetFullProxy())
			}
		}

		updates := changedFields(existing, record)
		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(&domain.StoredProxy{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return err
		}
		result = Updated
		return nil
	})
	if err != nil {
		return Unchanged, fmt.Errorf("upsert %s: %w", record.GetFullProxy(), err)
	}

	return result, nil
}

func findByEndpoint(tx *gorm.DB, ip string, port int) (domain.StoredProxy, bool, error) {
	var existing domain.StoredProxy
	err := tx.Where("ip = ? AND port = ?", ip, port).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return existing, false, nil
	}
	if err != nil {
		return existing, false, err
	}
	return existing, true, nil
}

func changedFields(existing, incoming domain.StoredProxy) map[string]any {
	updates := make(map[string]any)

	if !existing.Proxy.Equal(incoming.Proxy) {
		updates["proxy"] = incoming.Proxy
	}
	if !existing.Protocols.Equal(incoming.Protocols) {
		updates["protocols"] = incoming.Protocols
	}
	if existing.IsValid != incoming.IsValid {
		updates["is_valid"] = incoming.IsValid
	}
	if incoming.Country != "" && existing.Country != incoming.Country {
		updates["country"] = incoming.Country
	}

	return updates
}

// Fetch returns up to limit rows in insertion order; limit <= 0 returns all.
func (s *ProxyStore) Fetch(ctx context.Context, limit int) ([]domain.StoredProxy, error) {
	query := s.db.WithContext(ctx).Order("added_at ASC").Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var proxies []domain.StoredProxy
	if err := query.Find(&proxies).Error; err != nil {
		return nil, fmt.Errorf("fetch proxies: %w", err)
	}
	return proxies, nil
}

// UpdateValidity writes only the is_valid flag of the record.
func (s *ProxyStore) UpdateValidity(ctx context.Context, record domain.StoredProxy) error {
	res := s.db.WithContext(ctx).
		Model(&domain.StoredProxy{}).
		Where("id = ?", record.ID).
		Update("is_valid", record.IsValid)
	if res.Error != nil {
		return fmt.Errorf("update validity of %s: %w", record.ID, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&domain.StoredProxy{}).Where("id = ?", record.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("update validity of %s: %w", record.ID, err)
	}
	if count == 0 {
		return fmt.Errorf("update validity of %s: %w", record.ID, ErrProxyNotFound)
	}
	return nil
}

func (s *ProxyStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&domain.StoredProxy{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count proxies: %w", err)
	}
	return count, nil
}
