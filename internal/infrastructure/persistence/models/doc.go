// Package models contains GORM persistence models for the sales history tables.
// They are read-only from this service's point of view; the transactional
// system that owns them writes orders, and forecasting only aggregates them.
// Domain types in internal/domain/forecast carry no GORM tags.
package models
