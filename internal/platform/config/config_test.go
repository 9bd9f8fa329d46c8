package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "be-proc-requisitions", cfg.Service.Name)
	assert.Equal(t, 24*time.Hour, cfg.Escalation.DefaultWindow)
	assert.Equal(t, 4*time.Hour, cfg.Escalation.ExpeditedWindow)
	assert.Equal(t, "file", cfg.Rules.Source)
	assert.Empty(t, cfg.NATS.URL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ESCALATION_DEFAULT_WINDOW", "12h")
	t.Setenv("ESCALATION_EXPEDITED_WINDOW", "2h")
	t.Setenv("RULES_SOURCE", "database")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 12*time.Hour, cfg.Escalation.DefaultWindow)
	assert.Equal(t, "database", cfg.Rules.Source)
	assert.Equal(t, "postgres://postgres:@db.internal:5432/procurement?sslmode=disable", cfg.Database.DSN())
}

func TestValidate(t *testing.T) {
	type testCase struct {
		name    string
		env     map[string]string
		wantErr string
	}

	tests := []testCase{
		{name: "unknown rule source", env: map[string]string{"RULES_SOURCE": "ldap"}, wantErr: "RULES_SOURCE"},
		{name: "expedited longer than default", env: map[string]string{"ESCALATION_EXPEDITED_WINDOW": "48h"}, wantErr: "EXPEDITED"},
		{name: "emergency longer than expedited", env: map[string]string{"ESCALATION_EMERGENCY_WINDOW": "5h"}, wantErr: "EMERGENCY"},
		{name: "zero batch", env: map[string]string{"ESCALATION_BATCH_SIZE": "0"}, wantErr: "BATCH_SIZE"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
