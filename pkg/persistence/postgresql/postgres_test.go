package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/casthq/caster/pkg/models"
	"github.com/casthq/caster/pkg/persistence"
	"github.com/casthq/caster/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"execution_logs", "executions", "integrations", "templates", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("caster_test"),
			postgres.WithUsername("caster"),
			postgres.WithPassword("caster"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func createTestTemplate(ctx context.Context, t *testing.T, p *postgresql.Persistence, status models.TemplateStatus) *models.Template {
	t.Helper()

	now := time.Now().UTC()
	template := &models.Template{
		ID:             uuid.New().String(),
		LogicalID:      uuid.New().String(),
		Version:        1,
		OrganizationID: "org-1",
		Name:           "Welcome Campaign",
		Body:           "Hello {{name}}, your code is {{code}}",
		Variables:      []string{"name", "code"},
		Filter: &models.FilterDefinition{
			Logic: models.FilterLogicAnd,
			Conditions: []models.Condition{
				{Column: "age", Operator: models.OperatorGte, Value: float64(18)},
			},
		},
		Status:    status,
		CreatedBy: "tester",
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := p.Templates().Create(ctx, template)
	require.NoError(t, err)

	return template
}

func createTestExecution(ctx context.Context, t *testing.T, p *postgresql.Persistence, templateID string) *models.Execution {
	t.Helper()

	execution := &models.Execution{
		ID:              uuid.New().String(),
		OrganizationID:  "org-1",
		TemplateID:      templateID,
		ChannelType:     models.ChannelTypeEmail,
		RecipientColumn: "email",
		FilePath:        "/tmp/upload.csv",
		Status:          models.ExecutionStatusQueued,
		TriggeredBy:     "tester",
		CreatedAt:       time.Now().UTC(),
	}

	err := p.Executions().Create(ctx, execution)
	require.NoError(t, err)

	return execution
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	// Verify tables were created
	var exists bool

	for _, table := range []string{"templates", "integrations", "executions", "execution_logs"} {
		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table+" table should exist")
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestTemplateRepository_SaveAndRetrieve(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	created := createTestTemplate(ctx, t, p, models.TemplateStatusDraft)

	retrieved, err := p.Templates().GetByID(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, created.LogicalID, retrieved.LogicalID)
	assert.Equal(t, created.Body, retrieved.Body)
	assert.Equal(t, []string{"name", "code"}, retrieved.Variables)
	require.NotNil(t, retrieved.Filter)
	assert.Equal(t, models.FilterLogicAnd, retrieved.Filter.Logic)
	require.Len(t, retrieved.Filter.Conditions, 1)
	assert.Equal(t, "age", retrieved.Filter.Conditions[0].Column)
	assert.Equal(t, models.TemplateStatusDraft, retrieved.Status)
}

func TestTemplateRepository_PublishLifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	template := createTestTemplate(ctx, t, p, models.TemplateStatusDraft)

	err := p.Templates().Publish(ctx, template.ID)
	require.NoError(t, err)

	published, err := p.Templates().GetPublished(ctx, template.OrganizationID, template.LogicalID)
	require.NoError(t, err)
	assert.Equal(t, template.ID, published.ID)
	assert.Equal(t, models.TemplateStatusPublished, published.Status)

	// A published version cannot be published again
	err = p.Templates().Publish(ctx, template.ID)
	assert.ErrorIs(t, err, persistence.ErrTemplateImmutable)
}

func TestTemplateRepository_LatestVersion(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	template := createTestTemplate(ctx, t, p, models.TemplateStatusDraft)

	version, err := p.Templates().LatestVersion(ctx, template.OrganizationID, template.LogicalID)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	version, err = p.Templates().LatestVersion(ctx, template.OrganizationID, uuid.New().String())
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}

func TestTemplateRepository_SoftDelete(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	template := createTestTemplate(ctx, t, p, models.TemplateStatusDraft)

	err := p.Templates().SoftDelete(ctx, template.ID)
	require.NoError(t, err)

	_, err = p.Templates().GetByID(ctx, template.ID)
	assert.ErrorIs(t, err, persistence.ErrTemplateNotFound)
}

func TestExecutionRepository_Lifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	template := createTestTemplate(ctx, t, p, models.TemplateStatusPublished)
	execution := createTestExecution(ctx, t, p, template.ID)

	claimed, err := p.Executions().TryMarkRunning(ctx, execution.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, claimed)

	// Second pickup attempt must lose the claim
	claimed, err = p.Executions().TryMarkRunning(ctx, execution.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, claimed)

	execution.Status = models.ExecutionStatusRunning
	execution.TotalCount = 100
	execution.ProcessedCount = 50
	execution.SuccessCount = 48
	execution.FailureCount = 2

	err = p.Executions().CheckpointCounters(ctx, execution)
	require.NoError(t, err)

	status, err := p.Executions().Status(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, status)

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusCompleted
	execution.ProcessedCount = 100
	execution.SuccessCount = 97
	execution.FailureCount = 3
	execution.CompletedAt = &now
	execution.DurationSec = 42

	err = p.Executions().Finish(ctx, execution)
	require.NoError(t, err)

	retrieved, err := p.Executions().GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, retrieved.Status)
	assert.Equal(t, 100, retrieved.ProcessedCount)
	assert.Equal(t, 97, retrieved.SuccessCount)
	assert.Equal(t, 3, retrieved.FailureCount)
	assert.Equal(t, 42, retrieved.DurationSec)
	assert.NotNil(t, retrieved.CompletedAt)
}

func TestExecutionRepository_Cancel(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	template := createTestTemplate(ctx, t, p, models.TemplateStatusPublished)
	execution := createTestExecution(ctx, t, p, template.ID)

	cancelled, err := p.Executions().Cancel(ctx, execution.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	status, err := p.Executions().Status(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, status)

	// Terminal runs cannot be cancelled again
	cancelled, err = p.Executions().Cancel(ctx, execution.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestIntegrationRepository_CreateAndDeactivate(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	integration := &models.Integration{
		ID:                   uuid.New().String(),
		OrganizationID:       "org-1",
		ChannelType:          models.ChannelTypeWhatsApp,
		ProviderName:         "twilio",
		EncryptedCredentials: "gAAAAABtest",
		SenderIdentifier:     "+15551230000",
		RateLimitPerMinute:   60,
		IsActive:             true,
		CreatedAt:            time.Now().UTC(),
	}

	err := p.Integrations().Create(ctx, integration)
	require.NoError(t, err)

	retrieved, err := p.Integrations().GetActive(ctx, integration.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelTypeWhatsApp, retrieved.ChannelType)
	assert.Equal(t, "gAAAAABtest", retrieved.EncryptedCredentials)
	assert.Equal(t, 60, retrieved.RateLimitPerMinute)

	err = p.Integrations().Deactivate(ctx, integration.ID)
	require.NoError(t, err)

	_, err = p.Integrations().GetActive(ctx, integration.ID)
	assert.ErrorIs(t, err, persistence.ErrIntegrationNotFound)
}

func TestOutcomeRepository_CreateBatchAndList(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	template := createTestTemplate(ctx, t, p, models.TemplateStatusPublished)
	execution := createTestExecution(ctx, t, p, template.ID)

	sentAt := time.Now().UTC()
	outcomes := make([]*models.RowOutcome, 0, 3)

	for i, status := range []models.DeliveryStatus{
		models.DeliveryStatusDelivered,
		models.DeliveryStatusFailed,
		models.DeliveryStatusDelivered,
	} {
		outcome := &models.RowOutcome{
			ID:             uuid.New().String(),
			ExecutionID:    execution.ID,
			ChannelType:    models.ChannelTypeEmail,
			RecipientValue: "user@example.com",
			DeliveryStatus: status,
			CreatedAt:      time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}
		if status == models.DeliveryStatusDelivered {
			outcome.RenderedMessage = "Hello Amy, your code is 42"
			outcome.SentAt = &sentAt
		} else {
			outcome.ProviderResponse = "550 mailbox unavailable"
			outcome.RetryCount = 2
			outcome.IsRetried = true
		}

		outcomes = append(outcomes, outcome)
	}

	err := p.Outcomes().CreateBatch(ctx, outcomes)
	require.NoError(t, err)

	listed, total, err := p.Outcomes().ListByExecution(ctx, execution.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, listed, 2)

	listed, total, err = p.Outcomes().ListByExecution(ctx, execution.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, listed, 3)

	var failed *models.RowOutcome

	for _, outcome := range listed {
		if outcome.DeliveryStatus == models.DeliveryStatusFailed {
			failed = outcome
		}
	}

	require.NotNil(t, failed)
	assert.Equal(t, "550 mailbox unavailable", failed.ProviderResponse)
	assert.Equal(t, 2, failed.RetryCount)
	assert.True(t, failed.IsRetried)
	assert.Empty(t, failed.RenderedMessage)
}
