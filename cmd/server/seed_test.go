package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository/memory"
)

func TestLoadSeedExample(t *testing.T) {
	store := memory.New()
	require.NoError(t, loadSeed(store, filepath.Join("..", "..", "configs", "seed.example.yaml")))
	ctx := context.Background()

	captain, err := store.GetUser(ctx, "cap-aurora")
	require.NoError(t, err)
	assert.Equal(t, repository.RoleCaptain, captain.Role)

	req, err := store.GetRequisition(ctx, "req-pump-seal")
	require.NoError(t, err)
	assert.True(t, req.HasSafetyCriticalItem())
	assert.Equal(t, repository.RequisitionDraft, req.Status)

	budget, err := store.GetVesselBudget(ctx, "v-aurora", time.Now().UTC().Format("2006-01"))
	require.NoError(t, err)
	require.NotNil(t, budget)
	require.NotNil(t, budget.ParentBudgetID)
	assert.Equal(t, "fleet-north", *budget.ParentBudgetID)
}

func TestLoadSeedRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users: [ {id: "), 0o600))
	assert.Error(t, loadSeed(memory.New(), path))
}

func TestValidateRulesFileDefaults(t *testing.T) {
	n, err := validateRulesFile(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
