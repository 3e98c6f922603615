package sqlite

// Star-schema DDL. Surrogate keys use INTEGER PRIMARY KEY rowid aliasing.
// Timestamps and dates are TEXT; booleans are INTEGER 0/1.
func schemaDDL(dedupe bool) []string {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS dim_department (
    department_id   INTEGER PRIMARY KEY,
    department_code TEXT NOT NULL UNIQUE
);`,
		`CREATE TABLE IF NOT EXISTS dim_instructor (
    instructor_id     INTEGER PRIMARY KEY,
    instructor_number TEXT NOT NULL UNIQUE
);`,
		`CREATE TABLE IF NOT EXISTS dim_student (
    student_id        INTEGER PRIMARY KEY,
    student_number    TEXT NOT NULL UNIQUE,
    first_name        TEXT,
    last_name         TEXT,
    email             TEXT,
    date_of_birth     TEXT,
    gender            TEXT,
    enrollment_date   TEXT,
    graduation_date   TEXT,
    status            TEXT,
    major             TEXT,
    gpa               REAL,
    credits_completed REAL,
    department_code   TEXT
);`,
		`CREATE TABLE IF NOT EXISTS dim_course (
    course_id          INTEGER PRIMARY KEY,
    course_code        TEXT NOT NULL UNIQUE,
    course_name        TEXT,
    course_description TEXT,
    credits            REAL,
    level              TEXT,
    department_code    TEXT,
    instructor_number  TEXT
);`,
		`CREATE TABLE IF NOT EXISTS dim_time (
    time_id       INTEGER PRIMARY KEY,
    date          TEXT NOT NULL UNIQUE,
    year          INTEGER NOT NULL,
    quarter       INTEGER NOT NULL,
    month         INTEGER NOT NULL,
    day           INTEGER NOT NULL,
    day_of_week   INTEGER NOT NULL,
    is_weekend    INTEGER NOT NULL,
    semester      TEXT NOT NULL,
    academic_year TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS performance_fact (
    performance_id        INTEGER PRIMARY KEY,
    student_id            INTEGER NOT NULL REFERENCES dim_student (student_id),
    course_id             INTEGER NOT NULL REFERENCES dim_course (course_id),
    instructor_id         INTEGER REFERENCES dim_instructor (instructor_id),
    time_id               INTEGER NOT NULL REFERENCES dim_time (time_id),
    grade_points          REAL NOT NULL,
    letter_grade          TEXT NOT NULL,
    credits_earned        REAL,
    attendance_percentage REAL,
    assignment_score      REAL,
    exam_score            REAL,
    final_score           REAL,
    is_pass               INTEGER NOT NULL,
    row_hash              TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS enrollment_fact (
    enrollment_id   INTEGER PRIMARY KEY,
    student_id      INTEGER NOT NULL REFERENCES dim_student (student_id),
    course_id       INTEGER NOT NULL REFERENCES dim_course (course_id),
    time_id         INTEGER NOT NULL REFERENCES dim_time (time_id),
    enrollment_date TEXT,
    is_completed    INTEGER NOT NULL,
    is_dropped      INTEGER NOT NULL,
    row_hash        TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS attendance_fact (
    attendance_id         INTEGER PRIMARY KEY,
    student_id            INTEGER NOT NULL REFERENCES dim_student (student_id),
    course_id             INTEGER NOT NULL REFERENCES dim_course (course_id),
    time_id               INTEGER NOT NULL REFERENCES dim_time (time_id),
    attendance_percentage REAL NOT NULL,
    row_hash              TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS feedback_fact (
    feedback_id INTEGER PRIMARY KEY,
    student_id  INTEGER NOT NULL REFERENCES dim_student (student_id),
    course_id   INTEGER NOT NULL REFERENCES dim_course (course_id),
    time_id     INTEGER NOT NULL REFERENCES dim_time (time_id),
    rating      REAL NOT NULL,
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
