package memory

import (
	"testing"

	"cdpcrawler/internal/repository"
	"cdpcrawler/internal/repository/repotest"
)

func TestRepository(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.Repository {
		return New()
	})
}
