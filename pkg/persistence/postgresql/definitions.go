package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

const definitionColumns = `
	id
  , owner_id
  , organization_id
  , name
  , description
  , trigger_config
  , actions
  , conditions
  , status
  , metadata
  , created_at
  , updated_at
`

// DefinitionRepository handles definition-related database operations.
type DefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDefinitionRepository creates a new definition repository.
func NewDefinitionRepository(db *sql.DB, logger *slog.Logger) *DefinitionRepository {
	return &DefinitionRepository{db: db, logger: logger}
}

// Save upserts a definition.
func (r *DefinitionRepository) Save(ctx context.Context, definition *models.WorkflowDefinition) error {
	triggerJSON, err := json.Marshal(definition.TriggerConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	actionsJSON, err := marshalOr(definition.Actions, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	conditionsJSON, err := marshalOr(definition.Conditions, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	metadataJSON, err := marshalNullable(definition.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO workflow_definitions (` + definitionColumns + `, trigger_kind)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id
		  , organization_id = EXCLUDED.organization_id
		  , name = EXCLUDED.name
		  , description = EXCLUDED.description
		  , trigger_config = EXCLUDED.trigger_config
		  , trigger_kind = EXCLUDED.trigger_kind
		  , actions = EXCLUDED.actions
		  , conditions = EXCLUDED.conditions
		  , status = EXCLUDED.status
		  , metadata = EXCLUDED.metadata
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		definition.ID,
		definition.OwnerID,
		nullString(definition.OrganizationID),
		definition.Name,
		definition.Description,
		triggerJSON,
		actionsJSON,
		conditionsJSON,
		string(definition.Status),
		metadataJSON,
		definition.CreatedAt,
		definition.UpdatedAt,
		string(definition.TriggerConfig.Kind),
	)
	if err != nil {
		return persistence.NewDefinitionError("Save", definition.ID, err)
	}

	return nil
}

func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE id = $1`

	definition, err := scanDefinition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewDefinitionError("GetByID", id, persistence.ErrDefinitionNotFound)
		}

		return nil, persistence.NewDefinitionError("GetByID", id, err)
	}

	return definition, nil
}

func (r *DefinitionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflow_definitions WHERE id = $1`, id)
	if err != nil {
		return persistence.NewDefinitionError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewDefinitionError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewDefinitionError("Delete", id, persistence.ErrDefinitionNotFound)
	}

	return nil
}

// List returns filtered definitions ordered by creation time, newest first.
func (r *DefinitionRepository) List(ctx context.Context, opts persistence.ListDefinitionsOptions) (*persistence.DefinitionListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.Offset < 0 {
		opts.Offset = 0
	}

	where := newWhere()
	where.add("owner_id = ?", opts.OwnerID, opts.OwnerID != "")
	where.add("organization_id = ?", opts.OrganizationID, opts.OrganizationID != "")
	where.add("status = ?", string(opts.Status), opts.Status != "")

	if search := strings.TrimSpace(opts.SearchText); search != "" {
		where.add("(name ILIKE ? ESCAPE '\\' OR description ILIKE ? ESCAPE '\\')", "%"+escapeLike(search)+"%", true)
	}

	var total int64

	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflow_definitions`+where.sql(), where.args...).Scan(&total)
	if err != nil {
		return nil, persistence.NewDefinitionError("List", "*", err)
	}

	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions` + where.sql() +
		` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(opts.Limit) + ` OFFSET ` + strconv.Itoa(opts.Offset)

	definitions, err := r.query(ctx, query, where.args...)
	if err != nil {
		return nil, persistence.NewDefinitionError("List", "*", err)
	}

	return &persistence.DefinitionListResult{
		Definitions: definitions,
		TotalCount:  total,
		HasNextPage: int64(opts.Offset+len(definitions)) < total,
	}, nil
}

func (r *DefinitionRepository) FindActiveByTrigger(ctx context.Context, filter persistence.TriggerFilter) ([]*models.WorkflowDefinition, error) {
	where := newWhere()
	where.add("status = ?", string(models.DefinitionStatusActive), true)
	where.add("trigger_kind = ?", string(filter.Kind), true)
	where.add("id = ?", filter.WorkflowID, filter.WorkflowID != "")

	switch filter.Kind {
	case models.TriggerKindEvent:
		where.add("trigger_config->>'event_type' = ?", filter.EventType, true)
	case models.TriggerKindWebhook:
		where.add("trigger_config->>'webhook_id' = ?", filter.WebhookID, true)
	case models.TriggerKindSchedule:
		where.add("trigger_config->>'expression' = ?", filter.Expression, filter.Expression != "")
	}

	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions` + where.sql() + ` ORDER BY created_at ASC`

	definitions, err := r.query(ctx, query, where.args...)
	if err != nil {
		return nil, persistence.NewDefinitionError("FindActiveByTrigger", string(filter.Kind), err)
	}

	return definitions, nil
}

func (r *DefinitionRepository) query(ctx context.Context, query string, args ...any) ([]*models.WorkflowDefinition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query definitions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	definitions := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		definition, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}

		definitions = append(definitions, definition)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating definitions: %w", err)
	}

	return definitions, nil
}

func scanDefinition(row scanner) (*models.WorkflowDefinition, error) {
	var (
		definition     models.WorkflowDefinition
		organizationID sql.NullString
		status         string
		triggerJSON    []byte
		actionsJSON    []byte
		conditionsJSON []byte
		metadataJSON   []byte
	)

	err := row.Scan(
		&definition.ID,
		&definition.OwnerID,
		&organizationID,
		&definition.Name,
		&definition.Description,
		&triggerJSON,
		&actionsJSON,
		&conditionsJSON,
		&status,
		&metadataJSON,
		&definition.CreatedAt,
		&definition.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	definition.OrganizationID = organizationID.String
	definition.Status = models.DefinitionStatus(status)

	if err := json.Unmarshal(triggerJSON, &definition.TriggerConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
	}

	if err := json.Unmarshal(actionsJSON, &definition.Actions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
	}

	if err := json.Unmarshal(conditionsJSON, &definition.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}

	if err := unmarshalNullable(metadataJSON, &definition.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &definition, nil
}
