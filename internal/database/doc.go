// Package database provides connection pool management for the optional
// PostgreSQL database that stores notifications.
package database
