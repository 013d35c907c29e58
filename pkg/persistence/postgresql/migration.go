package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflow_definitions (
				id VARCHAR(255) PRIMARY KEY,
				owner_id VARCHAR(255) NOT NULL,
				organization_id VARCHAR(255),
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_kind VARCHAR(32) NOT NULL CHECK (trigger_kind IN ('event', 'schedule', 'webhook', 'manual')),
				trigger_config JSONB NOT NULL,
				actions JSONB NOT NULL DEFAULT '[]',
				conditions JSONB NOT NULL DEFAULT '[]',
				status VARCHAR(32) NOT NULL CHECK (status IN ('draft', 'active', 'inactive', 'archived')),
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_definitions_owner ON workflow_definitions(owner_id, created_at DESC);
			CREATE INDEX idx_workflow_definitions_trigger ON workflow_definitions(trigger_kind, status);
			CREATE INDEX idx_workflow_definitions_event_type ON workflow_definitions((trigger_config->>'event_type'));
			CREATE INDEX idx_workflow_definitions_webhook_id ON workflow_definitions((trigger_config->>'webhook_id'));

			CREATE TABLE workflow_executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				owner_id VARCHAR(255) NOT NULL,
				triggered_by VARCHAR(32) NOT NULL,
				trigger_data JSONB,
				status VARCHAR(32) NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'failed', 'cancelled')),
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				error TEXT,
				error_details JSONB,
				execution_log JSONB NOT NULL DEFAULT '[]',
				results JSONB NOT NULL DEFAULT '{}',
				dedup_key VARCHAR(255) UNIQUE,
				version BIGINT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_executions_owner ON workflow_executions(owner_id, created_at DESC);
			CREATE INDEX idx_workflow_executions_workflow ON workflow_executions(workflow_id);
			CREATE INDEX idx_workflow_executions_status ON workflow_executions(status);
		`,
		2: `
			CREATE TABLE workflow_templates (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				category VARCHAR(100) NOT NULL DEFAULT '',
				is_public BOOLEAN NOT NULL DEFAULT false,
				is_official BOOLEAN NOT NULL DEFAULT false,
				trigger_config JSONB NOT NULL,
				actions JSONB NOT NULL DEFAULT '[]',
				conditions JSONB NOT NULL DEFAULT '[]',
				usage_count BIGINT NOT NULL DEFAULT 0,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_templates_usage ON workflow_templates(usage_count DESC);
			CREATE INDEX idx_workflow_templates_category ON workflow_templates(category);

			CREATE TABLE workflow_continuations (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				owner_id VARCHAR(255) NOT NULL,
				resume_at TIMESTAMP WITH TIME ZONE NOT NULL,
				next_index INTEGER NOT NULL,
				cursor JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_continuations_resume_at ON workflow_continuations(resume_at);
			CREATE INDEX idx_workflow_continuations_execution ON workflow_continuations(execution_id);
		`,
	}
}
