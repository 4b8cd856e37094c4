// Package model defines shared data types used across updatewatch.
//
// Conventions:
//   - Timestamps: time.Time in UTC
//   - IDs: uuid.UUID for stored notifications
package model
