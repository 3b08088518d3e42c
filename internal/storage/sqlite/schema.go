package sqlite

import "github.com/evalflow/evalflow/internal/storage/migrations"

// Times are stored as fixed-width UTC text so ORDER BY on them is chronological.
const schemaV1 = `
-- Survey templates (read-only for the workflow engine)
CREATE TABLE IF NOT EXISTS surveys (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS dimensions (
    id TEXT PRIMARY KEY,
    survey_id TEXT NOT NULL,
    name TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (survey_id) REFERENCES surveys(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_dimensions_survey ON dimensions(survey_id, position);

CREATE TABLE IF NOT EXISTS questions (
    id TEXT PRIMARY KEY,
    dimension_id TEXT NOT NULL,
    text TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (dimension_id) REFERENCES dimensions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_questions_dimension ON questions(dimension_id);

-- Identity directory
CREATE TABLE IF NOT EXISTS companies (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT NOT NULL DEFAULT '',
    role TEXT NOT NULL CHECK(role IN ('superadmin', 'administrador', 'usuario'))
);

CREATE TABLE IF NOT EXISTS company_members (
    company_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    PRIMARY KEY (company_id, user_id),
    FOREIGN KEY (company_id) REFERENCES companies(id) ON DELETE CASCADE,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

-- Evaluations: counters and state are written only by the aggregator
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    survey_id TEXT NOT NULL,
    company_id TEXT NOT NULL,
    owner_id TEXT NOT NULL,
    deadline TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'activa'
        CHECK(state IN ('activa', 'en_progreso', 'completada', 'vencida', 'cancelada')),
    total_dimensions INTEGER NOT NULL DEFAULT 0,
    assigned_dimensions INTEGER NOT NULL DEFAULT 0,
    completed_dimensions INTEGER NOT NULL DEFAULT 0,
    progress REAL NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    CHECK(completed_dimensions <= assigned_dimensions AND assigned_dimensions <= total_dimensions),
    FOREIGN KEY (survey_id) REFERENCES surveys(id),
    FOREIGN KEY (company_id) REFERENCES companies(id)
);

CREATE INDEX IF NOT EXISTS idx_evaluations_company ON evaluations(company_id);

CREATE TABLE IF NOT EXISTS assignments (
    id TEXT PRIMARY KEY,
    evaluation_id TEXT NOT NULL,
    dimension_id TEXT,
    assignee_id TEXT NOT NULL,
    assigned_by TEXT NOT NULL,
    deadline TEXT NOT NULL,
    total_questions INTEGER NOT NULL DEFAULT 0,
    answered_questions INTEGER NOT NULL DEFAULT 0,
    progress REAL NOT NULL DEFAULT 0,
    requires_review INTEGER NOT NULL DEFAULT 0,
    state TEXT NOT NULL DEFAULT 'pendiente'
        CHECK(state IN ('pendiente', 'en_progreso', 'completado', 'pendiente_revision', 'rechazado')),
    review_phase TEXT NOT NULL DEFAULT '',
    submitted_for_review_at TEXT,
    reviewed_by TEXT,
    reviewed_at TEXT,
    review_comments TEXT,
    notes TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    CHECK(answered_questions >= 0 AND answered_questions <= total_questions),
    FOREIGN KEY (evaluation_id) REFERENCES evaluations(id),
    FOREIGN KEY (dimension_id) REFERENCES dimensions(id)
);

-- One active assignment per dimension within an evaluation
CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_active_dimension
    ON assignments(evaluation_id, dimension_id)
    WHERE active = 1 AND dimension_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_assignments_evaluation ON assignments(evaluation_id, active);
CREATE INDEX IF NOT EXISTS idx_assignments_assignee ON assignments(assignee_id, active);

-- Answers (question/answer collaborator)
CREATE TABLE IF NOT EXISTS answers (
    assignment_id TEXT NOT NULL,
    question_id TEXT NOT NULL,
    value TEXT NOT NULL,
    answered_by TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (assignment_id, question_id),
    FOREIGN KEY (assignment_id) REFERENCES assignments(id) ON DELETE CASCADE,
    FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE
);

-- Assignment audit trail
CREATE TABLE IF NOT EXISTS assignment_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    assignment_id TEXT NOT NULL,
    evaluation_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    actor TEXT NOT NULL,
    old_value TEXT,
    new_value TEXT,
    comment TEXT,
    created_at TEXT NOT NULL,
    FOREIGN KEY (assignment_id) REFERENCES assignments(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_assignment_events_assignment ON assignment_events(assignment_id, id);
`

const schemaV2 = `
-- One active whole-survey assignment per user within an evaluation
CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_active_survey
    ON assignments(evaluation_id, assignee_id)
    WHERE active = 1 AND dimension_id IS NULL;
`

func schemaMigrations() *migrations.Manager {
	return migrations.NewManager(
		migrations.Migration{
			Version:     1,
			Description: "evaluations, assignments, answers and audit trail",
			Up:          schemaV1,
			Down: `
				DROP TABLE IF EXISTS assignment_events;
				DROP TABLE IF EXISTS answers;
				DROP TABLE IF EXISTS assignments;
				DROP TABLE IF EXISTS evaluations;
				DROP TABLE IF EXISTS company_members;
				DROP TABLE IF EXISTS users;
				DROP TABLE IF EXISTS companies;
				DROP TABLE IF EXISTS questions;
				DROP TABLE IF EXISTS dimensions;
				DROP TABLE IF EXISTS surveys;
			`,
		},
		migrations.Migration{
			Version:     2,
			Description: "unique active whole-survey assignment per user",
			Up:          schemaV2,
			Down:        `DROP INDEX IF EXISTS idx_assignments_active_survey;`,
		},
	)
}
