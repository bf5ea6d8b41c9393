package memory_test

import (
	"context"
	"testing"

	"github.com/aretw0/switchyard/pkg/adapters/memory"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_Contract(t *testing.T) {
	repo := memory.NewRepository[domain.RunState]()
	ports.RunRepositoryContract[domain.RunState](t, repo, func(seed string) domain.RunState {
		return domain.RunState{RunID: seed, Pipeline: "contract", Status: domain.StatusInitialized}
	})
}

func TestMemoryRepository_Isolation(t *testing.T) {
	repo := memory.NewRepository[domain.RunState]()
	ctx := context.Background()

	state := domain.RunState{RunID: "r1", Labels: map[string]string{"k": "v"}}
	require.NoError(t, repo.Save(ctx, "r1", state))
	state.Labels["k"] = "mutated"

	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Labels["k"])

	got.Labels["k"] = "mutated again"
	again, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Labels["k"])
}
