package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/persistence/file"
	"github.com/dukex/autoflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTemplateService(t *testing.T) (*Templates, persistence.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	return NewTemplates(p, NewDefinitions(p), testLogger()), p
}

func TestTemplates_Instantiate(t *testing.T) {
	t.Parallel()

	service, p := newTemplateService(t)

	template := testutil.CreateTestTemplate(func(tpl *models.WorkflowTemplate) {
		tpl.Actions = models.Actions{
			testutil.Conditional("check",
				[]models.Condition{{Field: "amount", Operator: models.OperatorGreaterThan, Value: 100.0}},
				models.Actions{testutil.Handler("email", models.ActionTypeSendEmail, map[string]any{"to": "x"})},
				models.Actions{testutil.Handler("notify", models.ActionTypeSendNotification, nil)},
			),
		}
	})
	require.NoError(t, service.Seed(t.Context(), []*models.WorkflowTemplate{template}))

	definition, err := service.Instantiate(t.Context(), template.ID, "owner-1", InstantiateInput{
		Name:           "My reminder",
		OrganizationID: "org-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "My reminder", definition.Name)
	assert.Equal(t, template.Description, definition.Description)
	assert.Equal(t, "org-1", definition.OrganizationID)
	assert.Equal(t, models.DefinitionStatusDraft, definition.Status)
	assert.Equal(t, template.ID, definition.Metadata[models.MetadataSourceTemplateID])
	assert.Equal(t, template.TriggerConfig, definition.TriggerConfig)
	require.Len(t, definition.Actions, 1)

	// the copy is independent of the template
	branch := definition.Actions[0].(*models.ConditionalAction)
	branch.ThenActions[0].(*models.HandlerAction).Config["to"] = "changed"

	stored, err := p.Templates().GetByID(t.Context(), template.ID)
	require.NoError(t, err)
	storedBranch := stored.Actions[0].(*models.ConditionalAction)
	assert.Equal(t, "x", storedBranch.ThenActions[0].(*models.HandlerAction).Config["to"])
	assert.Equal(t, int64(1), stored.UsageCount)
}

func TestTemplates_Instantiate_Concurrent(t *testing.T) {
	t.Parallel()

	service, p := newTemplateService(t)
	template := testutil.CreateTestTemplate()
	require.NoError(t, service.Seed(t.Context(), []*models.WorkflowTemplate{template}))

	const n = 16

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]struct{}{}
	)

	for range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			definition, err := service.Instantiate(t.Context(), template.ID, "owner-1", InstantiateInput{})
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			ids[definition.ID] = struct{}{}
			mu.Unlock()
		}()
	}

	wg.Wait()

	assert.Len(t, ids, n)

	stored, err := p.Templates().GetByID(t.Context(), template.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), stored.UsageCount)

	drafts, err := p.Definitions().List(t.Context(), persistence.ListDefinitionsOptions{
		OwnerID: "owner-1",
		Status:  models.DefinitionStatusDraft,
		Limit:   100,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(n), drafts.TotalCount)
}

// usageFailingPersistence fails every template usage increment.
type usageFailingPersistence struct {
	persistence.Persistence
}

func (u *usageFailingPersistence) Templates() persistence.TemplateRepository {
	return &usageFailingTemplates{TemplateRepository: u.Persistence.Templates()}
}

type usageFailingTemplates struct {
	persistence.TemplateRepository
}

func (u *usageFailingTemplates) IncrementUsage(context.Context, string) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestTemplates_Instantiate_UsageFailureRemovesDraft(t *testing.T) {
	t.Parallel()

	p := &usageFailingPersistence{Persistence: file.NewPersistence(t.TempDir())}
	service := NewTemplates(p, NewDefinitions(p), testLogger())

	template := testutil.CreateTestTemplate()
	require.NoError(t, service.Seed(t.Context(), []*models.WorkflowTemplate{template}))

	_, err := service.Instantiate(t.Context(), template.ID, "owner-1", InstantiateInput{Name: "Reminder"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	drafts, err := p.Definitions().List(t.Context(), persistence.ListDefinitionsOptions{OwnerID: "owner-1"})
	require.NoError(t, err)
	assert.Empty(t, drafts.Definitions)

	stored, err := p.Templates().GetByID(t.Context(), template.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.UsageCount)
}

func TestTemplates_Instantiate_NotFound(t *testing.T) {
	t.Parallel()

	service, _ := newTemplateService(t)

	_, err := service.Instantiate(t.Context(), "missing", "owner-1", InstantiateInput{})
	assert.True(t, persistence.IsTemplateNotFound(err))
	assert.True(t, IsNotFoundError(err))
}

func TestTemplates_Seed(t *testing.T) {
	t.Parallel()

	service, p := newTemplateService(t)
	template := testutil.CreateTestTemplate()
	require.NoError(t, service.Seed(t.Context(), []*models.WorkflowTemplate{template}))

	_, err := service.Instantiate(t.Context(), template.ID, "owner-1", InstantiateInput{})
	require.NoError(t, err)

	reseed := testutil.CreateTestTemplate(func(tpl *models.WorkflowTemplate) {
		tpl.ID = template.ID
		tpl.Name = "Renamed"
	})
	require.NoError(t, service.Seed(t.Context(), []*models.WorkflowTemplate{reseed}))

	stored, err := p.Templates().GetByID(t.Context(), template.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, int64(1), stored.UsageCount)

	invalid := testutil.CreateTestTemplate(func(tpl *models.WorkflowTemplate) {
		tpl.TriggerConfig = models.TriggerConfig{Kind: models.TriggerKindEvent, EventType: "nope"}
	})
	err = service.Seed(t.Context(), []*models.WorkflowTemplate{invalid})
	require.ErrorIs(t, err, ErrUnknownEventType)
}

func TestTemplates_List(t *testing.T) {
	t.Parallel()

	service, _ := newTemplateService(t)

	popular := testutil.CreateTestTemplate(func(tpl *models.WorkflowTemplate) { tpl.Name = "Popular" })
	private := testutil.CreateTestTemplate(func(tpl *models.WorkflowTemplate) {
		tpl.Name = "Private"
		tpl.IsPublic = false
		tpl.Category = "hr"
	})
	require.NoError(t, service.Seed(t.Context(), []*models.WorkflowTemplate{popular, private}))

	for range 3 {
		_, err := service.Instantiate(t.Context(), popular.ID, "owner-1", InstantiateInput{})
		require.NoError(t, err)
	}

	all, err := service.List(t.Context(), ListTemplatesRequest{})
	require.NoError(t, err)
	require.Len(t, all.Templates, 2)
	assert.Equal(t, "Popular", all.Templates[0].Name)

	public := true
	filtered, err := service.List(t.Context(), ListTemplatesRequest{IsPublic: &public})
	require.NoError(t, err)
	require.Len(t, filtered.Templates, 1)
	assert.Equal(t, popular.ID, filtered.Templates[0].ID)

	hr, err := service.List(t.Context(), ListTemplatesRequest{Category: "hr"})
	require.NoError(t, err)
	require.Len(t, hr.Templates, 1)
	assert.Equal(t, "Private", hr.Templates[0].Name)
}
