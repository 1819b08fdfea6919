package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/enrollment-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil)
	ctx := context.Background()

	var dest map[string]string
	assert.ErrorIs(t, repo.Get(ctx, "enrollment:student:1", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "enrollment:student:1", map[string]string{"id": "1"}, time.Minute))
	assert.NoError(t, repo.Delete(ctx, "enrollment:student:1"))
	assert.NoError(t, repo.DeleteByPattern(ctx, "enrollment:*"))
}
