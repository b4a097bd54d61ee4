package repos

import "gorm.io/gorm"

type GormWrapper interface {
	Error() error
	Create(interface{}) GormWrapper
	Model(interface{}) GormWrapper
	Where(interface{}, ...interface{}) GormWrapper
	Order(interface{}) GormWrapper
	Limit(int) GormWrapper
	Pluck(string, interface{}) GormWrapper
	First(interface{}, ...interface{}) GormWrapper
	Find(interface{}, ...interface{}) GormWrapper
	Updates(interface{}) GormWrapper
	Delete(interface{}, ...interface{}) GormWrapper
	Unscoped() GormWrapper
	RowsAffected() int64
	Close() error
}

type wrapper struct {
	db *gorm.DB
}

func Wrap(db *gorm.DB) GormWrapper {
	return &wrapper{
		db: db,
	}
}

func (w *wrapper) Error() error {
	return w.db.Error
}

func (w *wrapper) Create(value interface{}) GormWrapper {
	return Wrap(w.db.Create(value))
}

func (w *wrapper) Model(value interface{}) GormWrapper {
	return Wrap(w.db.Model(value))
}

func (w *wrapper) Where(query interface{}, args ...interface{}) GormWrapper {
	return Wrap(w.db.Where(query, args...))
}

func (w *wrapper) Order(value interface{}) GormWrapper {
	return Wrap(w.db.Order(value))
}

func (w *wrapper) Limit(limit int) GormWrapper {
	return Wrap(w.db.Limit(limit))
}

func (w *wrapper) Pluck(column string, dest interface{}) GormWrapper {
	return Wrap(w.db.Pluck(column, dest))
}

func (w *wrapper) First(dest interface{}, conds ...interface{}) GormWrapper {
	return Wrap(w.db.First(dest, conds...))
}

func (w *wrapper) Find(dest interface{}, conds ...interface{}) GormWrapper {
	return Wrap(w.db.Find(dest, conds...))
}

func (w *wrapper) Updates(values interface{}) GormWrapper {
	return Wrap(w.db.Updates(values))
}

func (w *wrapper) Delete(value interface{}, conds ...interface{}) GormWrapper {
	return Wrap(w.db.Delete(value, conds...))
}

func (w *wrapper) Unscoped() GormWrapper {
	return Wrap(w.db.Unscoped())
}

func (w *wrapper) RowsAffected() int64 {
	return w.db.RowsAffected
}

func (w *wrapper) Close() error {
	sqlDB, err := w.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
