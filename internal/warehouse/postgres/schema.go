package postgres

// Star-schema DDL. Surrogate keys are identity columns; business keys carry
// UNIQUE constraints so the upsert conflict targets exist. dim_time.date is
// TEXT in YYYY-MM-DD form, identical across backends so date keys and range
// filters compare the same everywhere.
func schemaDDL(dedupe bool) []string {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS dim_department (
    department_id   BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    department_code TEXT NOT NULL UNIQUE
);`,
		`CREATE TABLE IF NOT EXISTS dim_instructor (
    instructor_id     BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    instructor_number TEXT NOT NULL UNIQUE
);`,
		`CREATE TABLE IF NOT EXISTS dim_student (
    student_id        BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    student_number    TEXT NOT NULL UNIQUE,
    first_name        TEXT,
    last_name         TEXT,
    email             TEXT,
    date_of_birth     TIMESTAMPTZ,
    gender            TEXT,
    enrollment_date   TIMESTAMPTZ,
    graduation_date   TIMESTAMPTZ,
    status            TEXT,
    major             TEXT,
    gpa               DOUBLE PRECISION,
    credits_completed DOUBLE PRECISION,
    department_code   TEXT
);`,
		`CREATE TABLE IF NOT EXISTS dim_course (
    course_id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    course_code        TEXT NOT NULL UNIQUE,
    course_name        TEXT,
    course_description TEXT,
    credits            DOUBLE PRECISION,
    level              TEXT,
    department_code    TEXT,
    instructor_number  TEXT
);`,
		`CREATE TABLE IF NOT EXISTS dim_time (
    time_id       BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    date          TEXT NOT NULL UNIQUE,
    year          INTEGER NOT NULL,
    quarter       INTEGER NOT NULL,
    month         INTEGER NOT NULL,
    day           INTEGER NOT NULL,
    day_of_week   INTEGER NOT NULL,
    is_weekend    BOOLEAN NOT NULL,
    semester      TEXT NOT NULL,
    academic_year TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS performance_fact (
    performance_id        BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    student_id            BIGINT NOT NULL REFERENCES dim_student (student_id),
    course_id             BIGINT NOT NULL REFERENCES dim_course (course_id),
    instructor_id         BIGINT REFERENCES dim_instructor (instructor_id),
    time_id               BIGINT NOT NULL REFERENCES dim_time (time_id),
    grade_points          DOUBLE PRECISION NOT NULL,
    letter_grade          TEXT NOT NULL,
    credits_earned        DOUBLE PRECISION,
    attendance_percentage DOUBLE PRECISION,
    assignment_score      DOUBLE PRECISION,
    exam_score            DOUBLE PRECISION,
    final_score           DOUBLE PRECISION,
    is_pass               BOOLEAN NOT NULL,
    row_hash              TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS enrollment_fact (
    enrollment_id   BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    student_id      BIGINT NOT NULL REFERENCES dim_student (student_id),
    course_id       BIGINT NOT NULL REFERENCES dim_course (course_id),
    time_id         BIGINT NOT NULL REFERENCES dim_time (time_id),
    enrollment_date TEXT,
    is_completed    BOOLEAN NOT NULL,
    is_dropped      BOOLEAN NOT NULL,
    row_hash        TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS attendance_fact (
    attendance_id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    student_id            BIGINT NOT NULL REFERENCES dim_student (student_id),
    course_id             BIGINT NOT NULL REFERENCES dim_course (course_id),
    time_id               BIGINT NOT NULL REFERENCES dim_time (time_id),
    attendance_percentage DOUBLE PRECISION NOT NULL,
    row_hash              TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS feedback_fact (
    feedback_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    student_id  BIGINT NOT NULL REFERENCES dim_student (student_id),
    course_id   BIGINT NOT NULL REFERENCES dim_course (course_id),
    time_id     BIGINT NOT NULL REFERENCES dim_time (time_id),
    rating      DOUBLE PRECISION NOT NULL,
    comments    TEXT,
    row_hash    TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_performance_fact_student ON performance_fact (student_id);`,
		`CREATE INDEX IF NOT EXISTS idx_performance_fact_course ON performance_fact (course_id);`,
		`CREATE INDEX IF NOT EXISTS idx_performance_fact_time ON performance_fact (time_id);`,
		`CREATE INDEX IF NOT EXISTS idx_enrollment_fact_student ON enrollment_fact (student_id);`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_fact_student ON attendance_fact (student_id);`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_fact_course ON feedback_fact (course_id);`,
	}
	if dedupe {
		ddl = append(ddl,
			`CREATE UNIQUE INDEX IF NOT EXISTS uq_performance_fact_row_hash ON performance_fact (row_hash);`,
			`CREATE UNIQUE INDEX IF NOT EXISTS uq_enrollment_fact_row_hash ON enrollment_fact (row_hash);`,
			`CREATE UNIQUE INDEX IF NOT EXISTS uq_attendance_fact_row_hash ON attendance_fact (row_hash);`,
			`CREATE UNIQUE INDEX IF NOT EXISTS uq_feedback_fact_row_hash ON feedback_fact (row_hash);`,
		)
	}
	return ddl
}
