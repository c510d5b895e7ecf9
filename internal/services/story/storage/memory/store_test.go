package memory

import (
	"testing"

	"github.com/louisbranch/storyloom/internal/services/story/storage"
	"github.com/louisbranch/storyloom/internal/services/story/storage/storagetest"
)

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New()
	})
}
