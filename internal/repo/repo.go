package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("duplicated key")
	ErrMissingWhere = errors.New("missing conditions")
)

// Repository is the storage contract for one entity type. Lookups take
// structural conditions so callers never build raw queries.
type Repository[T any] interface {
	WithTx(tx *gorm.DB) Repository[T]
	Create(ctx context.Context, record *T) error
	Find(ctx context.Context, conds ...Cond) ([]*T, error)
	// FindOrdered is Find sorted by orderBy (a column list such as
	// "created_at DESC, id DESC") and capped at limit rows when limit > 0.
	FindOrdered(ctx context.Context, orderBy string, limit int, conds ...Cond) ([]*T, error)
	First(ctx context.Context, conds ...Cond) (*T, error)
	Count(ctx context.Context, conds ...Cond) (int64, error)
	// Updates applies columns to every matching row and reports how many rows
	// changed. It returns ErrNotFound when nothing matched, which makes
	// conditional updates usable as compare-and-set.
	Updates(ctx context.Context, columns map[string]any, conds ...Cond) (int64, error)
	Delete(ctx context.Context, conds ...Cond) (int64, error)
}

type repository[T any] struct {
	db *gorm.DB
}

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

func (r *repository[T]) scoped(ctx context.Context, conds []Cond) *gorm.DB {
	tx := r.db.WithContext(ctx).Model(new(T))
	if len(conds) > 0 {
		tx = tx.Clauses(whereClause(conds))
	}
	return tx
}

func (r *repository[T]) WithTx(tx *gorm.DB) Repository[T] {
	return New[T](tx)
}

func (r *repository[T]) Create(ctx context.Context, record *T) error {
	return translateError(r.db.WithContext(ctx).Create(record).Error)
}

func (r *repository[T]) Find(ctx context.Context, conds ...Cond) ([]*T, error) {
	var records []*T
	err := r.scoped(ctx, conds).Find(&records).Error
	return records, translateError(err)
}

func (r *repository[T]) FindOrdered(ctx context.Context, orderBy string, limit int, conds ...Cond) ([]*T, error) {
	var records []*T
	tx := r.scoped(ctx, conds).Order(orderBy)
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	err := tx.Find(&records).Error
	return records, translateError(err)
}

func (r *repository[T]) First(ctx context.Context, conds ...Cond) (*T, error) {
	var record T
	if err := r.scoped(ctx, conds).First(&record).Error; err != nil {
		return nil, translateError(err)
	}
	return &record, nil
}

func (r *repository[T]) Count(ctx context.Context, conds ...Cond) (int64, error) {
	var count int64
	err := r.scoped(ctx, conds).Count(&count).Error
	return count, translateError(err)
}

func (r *repository[T]) Updates(ctx context.Context, columns map[string]any, conds ...Cond) (int64, error) {
	if len(conds) == 0 {
		return 0, ErrMissingWhere
	}
	ret := r.scoped(ctx, conds).Updates(columns)
	if ret.Error != nil {
		return 0, translateError(ret.Error)
	}
	if ret.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	return ret.RowsAffected, nil
}

func (r *repository[T]) Delete(ctx context.Context, conds ...Cond) (int64, error) {
	if len(conds) == 0 {
		return 0, ErrMissingWhere
	}
	ret := r.db.WithContext(ctx).Clauses(whereClause(conds)).Delete(new(T))
	return ret.RowsAffected, translateError(ret.Error)
}

func New[T any](db *gorm.DB) Repository[T] {
	return &repository[T]{db: db}
}
