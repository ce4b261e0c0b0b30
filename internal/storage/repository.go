package storage

import (
	"context"

	"github.com/Togather-Foundation/historia/internal/domain/history"
)

// Repository groups data access by domain.
type Repository interface {
	History() history.Repository
	Ping(ctx context.Context) error
}
