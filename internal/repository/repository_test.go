package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/algorithm"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/database"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/history"
)

var (
	sharedDB     *sqlx.DB
	sharedDBOnce sync.Once
	sharedDBErr  error
)

// testDB starts one postgres container per test run and applies Schema.
func testDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode (requires Docker)")
	}
	sharedDBOnce.Do(func() { sharedDB, sharedDBErr = startPostgres() })
	if sharedDBErr != nil {
		t.Fatalf("failed to start postgres: %v", sharedDBErr)
	}
	return sharedDB
}

func startPostgres() (*sqlx.DB, error) {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "grid_risk",
				"POSTGRES_USER":     "grid",
				"POSTGRES_PASSWORD": "grid",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, err
	}
	host, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(ctx, fmt.Sprintf("postgres://grid:grid@%s:%s/grid_risk?sslmode=disable", host, port.Port()))
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return nil, err
	}
	return db, nil
}

func TestAlgorithmStoreBootstrapsRepository(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `TRUNCATE algorithm_versions`)
	require.NoError(t, err)

	store := NewAlgorithmStore(db)
	repo, err := algorithm.Open(ctx, store, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, algorithm.DefaultVersionID, repo.Current().Version)

	next := algorithm.DefaultVersion()
	next.Version = "1.1.0"
	next.Weights.Age, next.Weights.Condition = 0.30, 0.15
	_, err = repo.Publish(ctx, next)
	require.NoError(t, err)

	err = store.Append(ctx, next)
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	reopened, err := algorithm.Open(ctx, store, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", reopened.Current().Version)
	got, err := reopened.Get("1.1.0")
	require.NoError(t, err)
	assert.InDelta(t, 0.30, got.Weights.Age, 1e-9)
	assert.Len(t, reopened.List(), 2)
}

func TestHistoryStoreSeriesKeepsLatestPerPeriod(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	store := NewHistoryStore(db)

	id := fmt.Sprintf("eq-%d", time.Now().UnixNano())
	at := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	point := func(period string, value float64, recorded time.Time) domain.HistoricalDataPoint {
		return domain.HistoricalDataPoint{
			EntityID: id, EntityKind: domain.EntityEquipment, Metric: domain.MetricRiskScore,
			Period: period, Value: value, AlgorithmVersion: "1.0.0", RecordedAt: recorded,
		}
	}
	require.NoError(t, store.Append(ctx,
		point("2025-02", 40, at.AddDate(0, -1, 0)),
		point("2025-03", 45, at),
		point("2025-03", 47, at.Add(time.Hour)),
	))

	series, err := store.Series(ctx, history.SeriesKey{EntityID: id, EntityKind: domain.EntityEquipment, Metric: domain.MetricRiskScore, AlgorithmVersion: "1.0.0"})
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "2025-02", series[0].Period)
	assert.Equal(t, 47.0, series[1].Value)
	assert.Equal(t, domain.EntityEquipment, series[1].EntityKind)

	other, err := store.Series(ctx, history.SeriesKey{EntityID: id, EntityKind: domain.EntityEquipment, Metric: domain.MetricRiskScore, AlgorithmVersion: "1.3.0"})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestHistoryStoreAssessmentsByVersion(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	store := NewHistoryStore(db)

	id := fmt.Sprintf("eq-%d", time.Now().UnixNano())
	at := time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC)
	for i, v := range []string{"1.2.0", "1.3.0"} {
		require.NoError(t, store.AppendAssessment(ctx, domain.RiskAssessment{
			EquipmentID: id, AlgorithmVersion: v, RiskScore: 50 + float64(i),
			RiskRating: domain.RatingMedium, ComputedAt: at.Add(time.Duration(i) * time.Hour),
		}))
	}

	old, err := store.Assessments(ctx, id, "1.2.0")
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, 50.0, old[0].RiskScore)

	all, err := store.Assessments(ctx, id, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1.3.0", all[1].AlgorithmVersion)
}
