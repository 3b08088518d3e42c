package postgres

import "github.com/evalflow/evalflow/internal/storage/migrations"

const schemaV1 = `
CREATE TABLE IF NOT EXISTS surveys (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dimensions (
    id TEXT PRIMARY KEY,
    survey_id TEXT NOT NULL REFERENCES surveys(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_dimensions_survey ON dimensions(survey_id, position);

CREATE TABLE IF NOT EXISTS questions (
    id TEXT PRIMARY KEY,
    dimension_id TEXT NOT NULL REFERENCES dimensions(id) ON DELETE CASCADE,
    text TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_questions_dimension ON questions(dimension_id);

CREATE TABLE IF NOT EXISTS companies (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL CHECK (role IN ('superadmin', 'administrador', 'usuario'))
);

CREATE TABLE IF NOT EXISTS company_members (
    company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    PRIMARY KEY (company_id, user_id)
);

CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    survey_id TEXT NOT NULL REFERENCES surveys(id),
    company_id TEXT NOT NULL REFERENCES companies(id),
    owner_id TEXT NOT NULL,
    deadline TIMESTAMPTZ NOT NULL,
    state TEXT NOT NULL DEFAULT 'activa'
        CHECK (state IN ('activa', 'en_progreso', 'completada', 'vencida', 'cancelada')),
    total_dimensions INTEGER NOT NULL DEFAULT 0,
    assigned_dimensions INTEGER NOT NULL DEFAULT 0,
    completed_dimensions INTEGER NOT NULL DEFAULT 0,
    progress DOUBLE PRECISION NOT NULL DEFAULT 0,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CHECK (completed_dimensions <= assigned_dimensions AND assigned_dimensions <= total_dimensions)
);

CREATE INDEX IF NOT EXISTS idx_evaluations_company ON evaluations(company_id);

CREATE TABLE IF NOT EXISTS assignments (
    id TEXT PRIMARY KEY,
    evaluation_id TEXT NOT NULL REFERENCES evaluations(id),
    dimension_id TEXT REFERENCES dimensions(id),
    assignee_id TEXT NOT NULL,
    assigned_by TEXT NOT NULL,
    deadline TIMESTAMPTZ NOT NULL,
    total_questions INTEGER NOT NULL DEFAULT 0,
    answered_questions INTEGER NOT NULL DEFAULT 0,
    progress DOUBLE PRECISION NOT NULL DEFAULT 0,
    requires_review BOOLEAN NOT NULL DEFAULT FALSE,
    state TEXT NOT NULL DEFAULT 'pendiente'
        CHECK (state IN ('pendiente', 'en_progreso', 'completado', 'pendiente_revision', 'rechazado')),
    review_phase TEXT NOT NULL DEFAULT '',
    submitted_for_review_at TIMESTAMPTZ,
    reviewed_by TEXT,
    reviewed_at TIMESTAMPTZ,
    review_comments TEXT,
    notes TEXT NOT NULL DEFAULT '',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CHECK (answered_questions >= 0 AND answered_questions <= total_questions)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_active_dimension
    ON assignments(evaluation_id, dimension_id)
    WHERE active AND dimension_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_assignments_evaluation ON assignments(evaluation_id) WHERE active;
CREATE INDEX IF NOT EXISTS idx_assignments_assignee ON assignments(assignee_id) WHERE active;

CREATE TABLE IF NOT EXISTS answers (
    assignment_id TEXT NOT NULL REFERENCES assignments(id) ON DELETE CASCADE,
    question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
    value TEXT NOT NULL,
    answered_by TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (assignment_id, question_id)
);

CREATE TABLE IF NOT EXISTS assignment_events (
    id BIGSERIAL PRIMARY KEY,
    assignment_id TEXT NOT NULL REFERENCES assignments(id) ON DELETE CASCADE,
    evaluation_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    actor TEXT NOT NULL,
    old_value TEXT,
    new_value TEXT,
    comment TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_assignment_events_assignment ON assignment_events(assignment_id, id);
`

const schemaV2 = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_active_survey
    ON assignments(evaluation_id, assignee_id)
    WHERE active AND dimension_id IS NULL;
`

func schemaMigrations() *migrations.Manager {
	return migrations.NewManager(
		migrations.Migration{
			Version:     1,
			Description: "evaluations, assignments, answers and audit trail",
			Up:          schemaV1,
		},
		migrations.Migration{
			Version:     2,
			Description: "unique active whole-survey assignment per user",
			Up:          schemaV2,
		},
	)
}
