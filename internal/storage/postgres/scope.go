package postgres

import "gorm.io/gorm"

// UserScope returns a GORM scope that filters by user_id.
// Must be applied to every query in every repository method so that one
// user's rows are never visible to another.
func UserScope(userID string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	}
}
