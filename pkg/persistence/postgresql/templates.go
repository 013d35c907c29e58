package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

const templateColumns = `
	id
  , name
  , description
  , category
  , is_public
  , is_official
  , trigger_config
  , actions
  , conditions
  , usage_count
  , metadata
  , created_at
  , updated_at
`

// TemplateRepository handles template-related database operations.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

// Save upserts a template. The stored usage count never goes backwards.
func (r *TemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	triggerJSON, err := json.Marshal(template.TriggerConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	actionsJSON, err := marshalOr(template.Actions, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	conditionsJSON, err := marshalOr(template.Conditions, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	metadataJSON, err := marshalNullable(template.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO workflow_templates (` + templateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , description = EXCLUDED.description
		  , category = EXCLUDED.category
		  , is_public = EXCLUDED.is_public
		  , is_official = EXCLUDED.is_official
		  , trigger_config = EXCLUDED.trigger_config
		  , actions = EXCLUDED.actions
		  , conditions = EXCLUDED.conditions
		  , usage_count = GREATEST(workflow_templates.usage_count, EXCLUDED.usage_count)
		  , metadata = EXCLUDED.metadata
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		template.ID,
		template.Name,
		template.Description,
		template.Category,
		template.IsPublic,
		template.IsOfficial,
		triggerJSON,
		actionsJSON,
		conditionsJSON,
		template.UsageCount,
		metadataJSON,
		template.CreatedAt,
		template.UpdatedAt,
	)
	if err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM workflow_templates WHERE id = $1`

	template, err := scanTemplate(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	return template, nil
}

func (r *TemplateRepository) List(ctx context.Context, opts persistence.ListTemplatesOptions) (*persistence.TemplateListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.Offset < 0 {
		opts.Offset = 0
	}

	where := newWhere()
	where.add("category = ?", opts.Category, opts.Category != "")

	if opts.IsPublic != nil {
		where.add("is_public = ?", *opts.IsPublic, true)
	}

	if opts.IsOfficial != nil {
		where.add("is_official = ?", *opts.IsOfficial, true)
	}

	var total int64

	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflow_templates`+where.sql(), where.args...).Scan(&total)
	if err != nil {
		return nil, persistence.NewTemplateError("List", "*", err)
	}

	query := `SELECT ` + templateColumns + ` FROM workflow_templates` + where.sql() +
		` ORDER BY usage_count DESC, name ASC LIMIT ` + strconv.Itoa(opts.Limit) + ` OFFSET ` + strconv.Itoa(opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return nil, persistence.NewTemplateError("List", "*", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	templates := make([]*models.WorkflowTemplate, 0)

	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, persistence.NewTemplateError("List", "*", err)
		}

		templates = append(templates, template)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewTemplateError("List", "*", err)
	}

	return &persistence.TemplateListResult{
		Templates:   templates,
		TotalCount:  total,
		HasNextPage: int64(opts.Offset+len(templates)) < total,
	}, nil
}

// IncrementUsage performs the increment in a single statement.
func (r *TemplateRepository) IncrementUsage(ctx context.Context, id string) (int64, error) {
	var usage int64

	err := r.db.QueryRowContext(ctx, `
		UPDATE workflow_templates
		SET usage_count = usage_count + 1
		WHERE id = $1
		RETURNING usage_count
	`, id).Scan(&usage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, persistence.NewTemplateError("IncrementUsage", id, persistence.ErrTemplateNotFound)
		}

		return 0, persistence.NewTemplateError("IncrementUsage", id, err)
	}

	return usage, nil
}

func scanTemplate(row scanner) (*models.WorkflowTemplate, error) {
	var (
		template       models.WorkflowTemplate
		triggerJSON    []byte
		actionsJSON    []byte
		conditionsJSON []byte
		metadataJSON   []byte
	)

	err := row.Scan(
		&template.ID,
		&template.Name,
		&template.Description,
		&template.Category,
		&template.IsPublic,
		&template.IsOfficial,
		&triggerJSON,
		&actionsJSON,
		&conditionsJSON,
		&template.UsageCount,
		&metadataJSON,
		&template.CreatedAt,
		&template.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(triggerJSON, &template.TriggerConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
	}

	if err := json.Unmarshal(actionsJSON, &template.Actions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
	}

	if err := json.Unmarshal(conditionsJSON, &template.Conditions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}

	if err := unmarshalNullable(metadataJSON, &template.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &template, nil
}
