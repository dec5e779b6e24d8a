package postgresql

// migrations returns the ordered schema migrations for the PostgreSQL
// backend.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS templates (
				id UUID PRIMARY KEY,
				logical_id TEXT NOT NULL,
				version INTEGER NOT NULL,
				organization_id TEXT NOT NULL,
				dataset_id TEXT,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL,
				variables JSONB NOT NULL DEFAULT '[]',
				filter JSONB,
				status TEXT NOT NULL DEFAULT 'draft',
				created_by TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				deleted_at TIMESTAMP WITH TIME ZONE,
				CONSTRAINT uq_template_version UNIQUE (organization_id, logical_id, version)
			);

			CREATE INDEX IF NOT EXISTS idx_templates_logical_org
				ON templates (logical_id, organization_id);

			CREATE TABLE IF NOT EXISTS integrations (
				id UUID PRIMARY KEY,
				organization_id TEXT NOT NULL,
				channel_type TEXT NOT NULL,
				provider_name TEXT NOT NULL,
				encrypted_credentials TEXT NOT NULL DEFAULT '',
				sender_identifier TEXT NOT NULL DEFAULT '',
				rate_limit_per_minute INTEGER NOT NULL DEFAULT 100,
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				deleted_at TIMESTAMP WITH TIME ZONE,
				CONSTRAINT uq_org_channel_provider UNIQUE (organization_id, channel_type, provider_name)
			);

			CREATE TABLE IF NOT EXISTS executions (
				id UUID PRIMARY KEY,
				organization_id TEXT NOT NULL,
				template_id UUID NOT NULL REFERENCES templates (id) ON DELETE CASCADE,
				integration_id UUID REFERENCES integrations (id),
				channel_type TEXT NOT NULL,
				recipient_column TEXT NOT NULL,
				file_path TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'queued',
				total_count INTEGER NOT NULL DEFAULT 0,
				processed_count INTEGER NOT NULL DEFAULT 0,
				success_count INTEGER NOT NULL DEFAULT 0,
				failure_count INTEGER NOT NULL DEFAULT 0,
				failure_reason TEXT,
				triggered_by TEXT,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				execution_duration_seconds INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_executions_org_status
				ON executions (organization_id, status);

			CREATE INDEX IF NOT EXISTS idx_executions_created_at
				ON executions (created_at);

			CREATE TABLE IF NOT EXISTS execution_logs (
				id UUID PRIMARY KEY,
				execution_id UUID NOT NULL REFERENCES executions (id) ON DELETE CASCADE,
				channel_type TEXT NOT NULL,
				recipient_value TEXT NOT NULL,
				rendered_message TEXT,
				delivery_status TEXT NOT NULL,
				provider_message_id TEXT,
				provider_response TEXT,
				retry_count INTEGER NOT NULL DEFAULT 0,
				is_retried BOOLEAN NOT NULL DEFAULT FALSE,
				sent_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_logs_execution_created
				ON execution_logs (execution_id, created_at);
		`,
	}
}
