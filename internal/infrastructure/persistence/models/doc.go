// Package models contains the gorm persistence models of the migrator and
// their conversions to domain types.
package models
