// Package store declares the task history repository fed by the progress hub.
package store
