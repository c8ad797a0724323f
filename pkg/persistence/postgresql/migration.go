package postgresql

// migrations returns the versioned schema scripts for the engine's tables.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS organizations (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				booking_link TEXT NOT NULL DEFAULT '',
				google_review_link TEXT NOT NULL DEFAULT '',
				custom_tokens JSONB NOT NULL DEFAULT '{}',
				creation_scanned_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT 'epoch',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS clients (
				id TEXT PRIMARY KEY,
				org_id TEXT NOT NULL,
				first_name TEXT NOT NULL DEFAULT '',
				last_name TEXT NOT NULL DEFAULT '',
				email TEXT NOT NULL DEFAULT '',
				phones JSONB NOT NULL DEFAULT '[]',
				status TEXT NOT NULL DEFAULT 'active',
				tags JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_clients_org ON clients (org_id);

			CREATE TABLE IF NOT EXISTS appointments (
				id TEXT PRIMARY KEY,
				org_id TEXT NOT NULL,
				client_id TEXT NOT NULL,
				type TEXT NOT NULL DEFAULT '',
				starts_at TIMESTAMP WITH TIME ZONE NOT NULL,
				status TEXT NOT NULL DEFAULT 'scheduled',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_appointments_created
				ON appointments (org_id, status, created_at);
			CREATE INDEX IF NOT EXISTS idx_appointments_starts
				ON appointments (org_id, status, starts_at);
			CREATE INDEX IF NOT EXISTS idx_appointments_client
				ON appointments (org_id, client_id);

			CREATE TABLE IF NOT EXISTS workflows (
				id TEXT PRIMARY KEY,
				org_id TEXT NOT NULL,
				name TEXT NOT NULL,
				trigger TEXT NOT NULL,
				steps JSONB NOT NULL DEFAULT '[]',
				enabled BOOLEAN NOT NULL DEFAULT FALSE,
				prevent_duplicates BOOLEAN NOT NULL DEFAULT FALSE,
				duplicate_prevention_days INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_workflows_trigger
				ON workflows (org_id, enabled, trigger);

			CREATE TABLE IF NOT EXISTS enrollments (
				id TEXT PRIMARY KEY,
				org_id TEXT NOT NULL,
				workflow_id TEXT NOT NULL,
				client_id TEXT NOT NULL,
				reason TEXT NOT NULL DEFAULT '',
				current_step_id TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'active',
				next_execution_at TIMESTAMP WITH TIME ZONE,
				metadata JSONB NOT NULL DEFAULT '{}',
				enrolled_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				completed_at TIMESTAMP WITH TIME ZONE
			);
			CREATE INDEX IF NOT EXISTS idx_enrollments_window
				ON enrollments (workflow_id, client_id, enrolled_at);
			CREATE INDEX IF NOT EXISTS idx_enrollments_org
				ON enrollments (org_id);

			CREATE TABLE IF NOT EXISTS scheduled_actions (
				id TEXT PRIMARY KEY,
				org_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				args JSONB NOT NULL DEFAULT '{}',
				scheduled_for TIMESTAMP WITH TIME ZONE NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				attempts INTEGER NOT NULL DEFAULT 0,
				max_attempts INTEGER NOT NULL DEFAULT 3,
				last_error TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_scheduled_actions_due
				ON scheduled_actions (status, scheduled_for);

			CREATE TABLE IF NOT EXISTS execution_logs (
				id TEXT PRIMARY KEY,
				org_id TEXT NOT NULL,
				workflow_id TEXT NOT NULL DEFAULT '',
				enrollment_id TEXT NOT NULL DEFAULT '',
				client_id TEXT NOT NULL DEFAULT '',
				step_id TEXT NOT NULL DEFAULT '',
				action TEXT NOT NULL,
				outcome TEXT NOT NULL,
				message TEXT NOT NULL DEFAULT '',
				metadata JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_execution_logs_enrollment
				ON execution_logs (enrollment_id);
			CREATE INDEX IF NOT EXISTS idx_execution_logs_org
				ON execution_logs (org_id, created_at);

			CREATE TABLE IF NOT EXISTS messages (
				id TEXT PRIMARY KEY,
				org_id TEXT NOT NULL,
				client_id TEXT NOT NULL,
				enrollment_id TEXT NOT NULL DEFAULT '',
				channel TEXT NOT NULL,
				to_addr TEXT NOT NULL,
				subject TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL,
				delivery_ref TEXT NOT NULL DEFAULT '',
				sent_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_messages_client
				ON messages (org_id, client_id);

			CREATE TABLE IF NOT EXISTS publish_schedules (
				id TEXT PRIMARY KEY,
				org_id TEXT NOT NULL,
				cron_expression TEXT NOT NULL,
				platform TEXT NOT NULL,
				template TEXT NOT NULL DEFAULT '',
				next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_publish_schedules_due
				ON publish_schedules (active, next_due_at);
		`,
	}
}
