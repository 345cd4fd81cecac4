//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresStore_Integration(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("t0_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(ctx)
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := Open(ctx, connStr)
	require.NoError(t, err)
	defer s.Close()

	pg, ok := s.(*Postgres)
	require.True(t, ok)

	inferenceID := uuid.Must(uuid.NewV7())
	require.NoError(t, pg.WriteChatInference(ctx, ChatInference{
		ID:           inferenceID,
		FunctionName: "generate_haiku",
		VariantName:  "gemini",
		EpisodeID:    uuid.Must(uuid.NewV7()),
		Input:        `{"messages":[]}`,
		Output:       `[]`,
	}))
	require.NoError(t, pg.WriteModelInference(ctx, ModelInference{
		ID:                uuid.Must(uuid.NewV7()),
		InferenceID:       inferenceID,
		ModelName:         "gemini_flash_lite",
		ModelProviderName: "google_ai_studio_gemini",
		InputTokens:       3,
		OutputTokens:      4,
	}))

	var tokens int
	err = pg.Pool.QueryRow(ctx,
		`SELECT output_tokens FROM model_inference WHERE inference_id = $1`, inferenceID.String(),
	).Scan(&tokens)
	require.NoError(t, err)
	require.Equal(t, 4, tokens)
}
