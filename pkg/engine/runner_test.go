package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casthq/caster/pkg/channels"
	"github.com/casthq/caster/pkg/crypto"
	"github.com/casthq/caster/pkg/eventbus"
	"github.com/casthq/caster/pkg/events"
	"github.com/casthq/caster/pkg/models"
	"github.com/casthq/caster/pkg/persistence/memory"
	"github.com/casthq/caster/pkg/progress"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]events.EventType, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.GetType())
	}

	return types
}

type runnerFixture struct {
	runner      *Runner
	persistence *memory.Persistence
	channel     *scriptedChannel
	publisher   *recordingPublisher
	execution   *models.Execution
	filePath    string
}

// newRunnerFixture seeds a published template, an active integration and
// a queued execution over a generated CSV file.
func newRunnerFixture(t *testing.T, rows int, tplFilter *models.FilterDefinition) *runnerFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	persist := memory.NewPersistence()
	ctx := context.Background()

	filePath := writeCSV(t, rows)

	tpl := &models.Template{
		ID:             uuid.New().String(),
		LogicalID:      "welcome",
		Version:        1,
		OrganizationID: "org-1",
		Name:           "Welcome",
		Body:           "Hello {{name}}",
		Variables:      []string{"name"},
		Filter:         tplFilter,
		Status:         models.TemplateStatusPublished,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, persist.Templates().Create(ctx, tpl))

	integration := &models.Integration{
		ID:                 uuid.New().String(),
		OrganizationID:     "org-1",
		ChannelType:        models.ChannelTypeEmail,
		ProviderName:       "smtp",
		RateLimitPerMinute: 60000,
		IsActive:           true,
		CreatedAt:          time.Now().UTC(),
	}
	require.NoError(t, persist.Integrations().Create(ctx, integration))

	execution := &models.Execution{
		ID:              uuid.New().String(),
		OrganizationID:  "org-1",
		TemplateID:      tpl.ID,
		IntegrationID:   integration.ID,
		ChannelType:     models.ChannelTypeEmail,
		RecipientColumn: "email",
		FilePath:        filePath,
		Status:          models.ExecutionStatusQueued,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, persist.Executions().Create(ctx, execution))

	channel := &scriptedChannel{script: []channels.Outcome{{Success: true, ProviderMessageID: "msg"}}}

	registry := channels.NewRegistry(logger, &crypto.Vault{})
	registry.Register(models.ChannelTypeEmail, func(*models.Integration, *crypto.Vault, *slog.Logger) (channels.Channel, error) {
		return channel, nil
	})

	publisher := &recordingPublisher{}

	runner := NewRunner(logger, persist, registry, progress.NewBroadcaster(logger), nil, publisher, "worker-1")
	runner.sleep = func(time.Duration) {}

	return &runnerFixture{
		runner:      runner,
		persistence: persist,
		channel:     channel,
		publisher:   publisher,
		execution:   execution,
		filePath:    filePath,
	}
}

// writeCSV generates a dataset with an email, name and age column. Ages
// cycle 10..59 so age filters select a predictable subset.
func writeCSV(t *testing.T, rows int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "recipients.csv")

	f, err := os.Create(path)
	require.NoError(t, err)

	_, err = f.WriteString("email,name,age\n")
	require.NoError(t, err)

	for i := 0; i < rows; i++ {
		_, err = fmt.Fprintf(f, "user%d@example.com,User %d,%d\n", i, i, 10+i%50)
		require.NoError(t, err)
	}

	require.NoError(t, f.Close())

	return path
}

func TestRunnerCompletesHappyPath(t *testing.T) {
	fixture := newRunnerFixture(t, 25, nil)

	err := fixture.runner.Run(context.Background(), fixture.execution.ID)
	require.NoError(t, err)

	stored, err := fixture.persistence.Executions().GetByID(context.Background(), fixture.execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, 25, stored.TotalCount)
	assert.Equal(t, 25, stored.ProcessedCount)
	assert.Equal(t, 25, stored.SuccessCount)
	assert.Equal(t, 0, stored.FailureCount)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.CompletedAt)

	_, total, err := fixture.persistence.Outcomes().ListByExecution(context.Background(), fixture.execution.ID, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, 25, total)

	_, err = os.Stat(fixture.filePath)
	assert.True(t, os.IsNotExist(err), "source file should be removed")

	assert.Contains(t, fixture.publisher.types(), events.ExecutionStartedEvent)
	assert.Contains(t, fixture.publisher.types(), events.ExecutionCompletedEvent)
}

func TestRunnerFilterFixesTotalCount(t *testing.T) {
	filter := &models.FilterDefinition{
		Logic: models.FilterLogicAnd,
		Conditions: []models.Condition{
			{Column: "age", Operator: models.OperatorGte, Value: 50},
		},
	}

	// Ages cycle 10..59, so 10 of 50 rows have age >= 50.
	fixture := newRunnerFixture(t, 50, filter)

	err := fixture.runner.Run(context.Background(), fixture.execution.ID)
	require.NoError(t, err)

	stored, err := fixture.persistence.Executions().GetByID(context.Background(), fixture.execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, 10, stored.TotalCount)
	assert.Equal(t, 10, stored.ProcessedCount)
}

func TestRunnerEmptyWorkingSetCompletesImmediately(t *testing.T) {
	filter := &models.FilterDefinition{
		Logic: models.FilterLogicAnd,
		Conditions: []models.Condition{
			{Column: "age", Operator: models.OperatorGt, Value: 1000},
		},
	}

	fixture := newRunnerFixture(t, 20, filter)

	err := fixture.runner.Run(context.Background(), fixture.execution.ID)
	require.NoError(t, err)

	stored, err := fixture.persistence.Executions().GetByID(context.Background(), fixture.execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, 0, stored.TotalCount)
	assert.Equal(t, 0, fixture.channel.callCount())
}

func TestRunnerHeaderOnlyDatasetCompletesImmediately(t *testing.T) {
	fixture := newRunnerFixture(t, 0, nil)

	err := fixture.runner.Run(context.Background(), fixture.execution.ID)
	require.NoError(t, err)

	stored, err := fixture.persistence.Executions().GetByID(context.Background(), fixture.execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, 0, stored.TotalCount)
	assert.Equal(t, 0, fixture.channel.callCount())

	_, err = os.Stat(fixture.filePath)
	assert.True(t, os.IsNotExist(err), "source file should be removed")
}

func TestRunnerFailsOnMissingRecipientColumn(t *testing.T) {
	fixture := newRunnerFixture(t, 5, nil)
	fixture.execution.RecipientColumn = "phone"

	require.NoError(t, fixture.persistence.Executions().Create(context.Background(), fixture.execution))

	err := fixture.runner.Run(context.Background(), fixture.execution.ID)
	require.Error(t, err)

	stored, getErr := fixture.persistence.Executions().GetByID(context.Background(), fixture.execution.ID)
	require.NoError(t, getErr)

	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Contains(t, stored.FailureReason, "not compatible")
	assert.Equal(t, 0, fixture.channel.callCount())

	_, statErr := os.Stat(fixture.filePath)
	assert.True(t, os.IsNotExist(statErr), "source file should be removed on failure too")

	assert.Contains(t, fixture.publisher.types(), events.ExecutionFailedEvent)
}

func TestRunnerFailsOverRowCeiling(t *testing.T) {
	fixture := newRunnerFixture(t, maxRowsAllowed+1, nil)

	err := fixture.runner.Run(context.Background(), fixture.execution.ID)
	require.Error(t, err)

	stored, getErr := fixture.persistence.Executions().GetByID(context.Background(), fixture.execution.ID)
	require.NoError(t, getErr)

	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Contains(t, stored.FailureReason, "maximum allowed")
}

func TestRunnerSkipsNonQueuedExecution(t *testing.T) {
	fixture := newRunnerFixture(t, 5, nil)

	_, err := fixture.persistence.Executions().Cancel(context.Background(), fixture.execution.ID)
	require.NoError(t, err)

	err = fixture.runner.Run(context.Background(), fixture.execution.ID)
	require.NoError(t, err)

	stored, err := fixture.persistence.Executions().GetByID(context.Background(), fixture.execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCancelled, stored.Status)
	assert.Equal(t, 0, fixture.channel.callCount())
}

func TestRunnerObservesCancellationAtRowBoundary(t *testing.T) {
	fixture := newRunnerFixture(t, 200, nil)

	// Cancel externally once a few rows made it through the channel.
	cancelOnce := sync.OnceFunc(func() {
		_, err := fixture.persistence.Executions().Cancel(context.Background(), fixture.execution.ID)
		assert.NoError(t, err)
	})

	wrapped := &cancellingChannel{inner: fixture.channel, after: 5, trigger: cancelOnce}

	registry := channels.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)), &crypto.Vault{})
	registry.Register(models.ChannelTypeEmail, func(*models.Integration, *crypto.Vault, *slog.Logger) (channels.Channel, error) {
		return wrapped, nil
	})
	fixture.runner.registry = registry

	err := fixture.runner.Run(context.Background(), fixture.execution.ID)
	require.NoError(t, err)

	stored, err := fixture.persistence.Executions().GetByID(context.Background(), fixture.execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCancelled, stored.Status)
	assert.Less(t, stored.ProcessedCount, 200, "cancellation should stop the row loop early")
	assert.GreaterOrEqual(t, stored.ProcessedCount, 5)

	// Every processed row still got exactly one outcome.
	_, total, err := fixture.persistence.Outcomes().ListByExecution(context.Background(), fixture.execution.ID, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, stored.ProcessedCount, total)
}

// cancellingChannel triggers an external cancel after a fixed number of
// sends, then keeps delegating.
type cancellingChannel struct {
	inner   *scriptedChannel
	after   int
	trigger func()
}

func (c *cancellingChannel) Send(ctx context.Context, recipient, message string) channels.Outcome {
	outcome := c.inner.Send(ctx, recipient, message)

	if c.inner.callCount() >= c.after {
		c.trigger()
	}

	return outcome
}
