package mssql

// Star-schema DDL. SQL Server has no CREATE TABLE IF NOT EXISTS, so every
// statement guards itself with an OBJECT_ID check. dim_time.date stays
// NVARCHAR YYYY-MM-DD so date keys compare identically across backends.
func schemaDDL(dedupe bool) []string {
	ddl := []string{
		`IF OBJECT_ID(N'dim_department', N'U') IS NULL
CREATE TABLE dim_department (
    department_id   BIGINT IDENTITY(1,1) PRIMARY KEY,
    department_code NVARCHAR(64) NOT NULL UNIQUE
);`,
		`IF OBJECT_ID(N'dim_instructor', N'U') IS NULL
CREATE TABLE dim_instructor (
    instructor_id     BIGINT IDENTITY(1,1) PRIMARY KEY,
    instructor_number NVARCHAR(64) NOT NULL UNIQUE
);`,
		`IF OBJECT_ID(N'dim_student', N'U') IS NULL
CREATE TABLE dim_student (
    student_id        BIGINT IDENTITY(1,1) PRIMARY KEY,
    student_number    NVARCHAR(64) NOT NULL UNIQUE,
    first_name        NVARCHAR(255),
    last_name         NVARCHAR(255),
    email             NVARCHAR(255),
    date_of_birth     DATETIME2,
    gender            NVARCHAR(32),
    enrollment_date   DATETIME2,
    graduation_date   DATETIME2,
    status            NVARCHAR(32),
    major             NVARCHAR(255),
    gpa               FLOAT,
    credits_completed FLOAT,
    department_code   NVARCHAR(64)
);`,
		`IF OBJECT_ID(N'dim_course', N'U') IS NULL
CREATE TABLE dim_course (
    course_id          BIGINT IDENTITY(1,1) PRIMARY KEY,
    course_code        NVARCHAR(64) NOT NULL UNIQUE,
    course_name        NVARCHAR(255),
    course_description NVARCHAR(MAX),
    credits            FLOAT,
    level              NVARCHAR(32),
    department_code    NVARCHAR(64),
    instructor_number  NVARCHAR(64)
);`,
		`IF OBJECT_ID(N'dim_time', N'U') IS NULL
CREATE TABLE dim_time (
    time_id       BIGINT IDENTITY(1,1) PRIMARY KEY,
    date          NVARCHAR(10) NOT NULL UNIQUE,
    year          INT NOT NULL,
    quarter       INT NOT NULL,
    month         INT NOT NULL,
    day           INT NOT NULL,
    day_of_week   INT NOT NULL,
    is_weekend    BIT NOT NULL,
    semester      NVARCHAR(16) NOT NULL,
    academic_year NVARCHAR(16) NOT NULL
);`,
		`IF OBJECT_ID(N'performance_fact', N'U') IS NULL
CREATE TABLE performance_fact (
    performance_id        BIGINT IDENTITY(1,1) PRIMARY KEY,
    student_id            BIGINT NOT NULL REFERENCES dim_student (student_id),
    course_id             BIGINT NOT NULL REFERENCES dim_course (course_id),
    instructor_id         BIGINT REFERENCES dim_instructor (instructor_id),
    time_id               BIGINT NOT NULL REFERENCES dim_time (time_id),
    grade_points          FLOAT NOT NULL,
    letter_grade          NVARCHAR(4) NOT NULL,
    credits_earned        FLOAT,
    attendance_percentage FLOAT,
    assignment_score      FLOAT,
    exam_score            FLOAT,
    final_score           FLOAT,
    is_pass               BIT NOT NULL,
    row_hash              NVARCHAR(64) NOT NULL
);`,
		`IF OBJECT_ID(N'enrollment_fact', N'U') IS NULL
CREATE TABLE enrollment_fact (
    enrollment_id   BIGINT IDENTITY(1,1) PRIMARY KEY,
    student_id      BIGINT NOT NULL REFERENCES dim_student (student_id),
    course_id       BIGINT NOT NULL REFERENCES dim_course (course_id),
    time_id         BIGINT NOT NULL REFERENCES dim_time (time_id),
    enrollment_date NVARCHAR(10),
    is_completed    BIT NOT NULL,
    is_dropped      BIT NOT NULL,
    row_hash        NVARCHAR(64) NOT NULL
);`,
		`IF OBJECT_ID(N'attendance_fact', N'U') IS NULL
CREATE TABLE attendance_fact (
    attendance_id         BIGINT IDENTITY(1,1) PRIMARY KEY,
    student_id            BIGINT NOT NULL REFERENCES dim_student (student_id),
    course_id             BIGINT NOT NULL REFERENCES dim_course (course_id),
    time_id               BIGINT NOT NULL REFERENCES dim_time (time_id),
    attendance_percentage FLOAT NOT NULL,
    row_hash              NVARCHAR(64) NOT NULL
);`,
		`IF OBJECT_ID(N'feedback_fact', N'U') IS NULL
CREATE TABLE feedback_fact (
    feedback_id BIGINT IDENTITY(1,1) PRIMARY KEY,
    student_id  BIGINT NOT NULL REFERENCES dim_student (student_id),
    course_id   BIGINT NOT NULL REFERENCES dim_course (course_id),
    time_id     BIGINT NOT NULL REFERENCES dim_time (time_id),
    rating      FLOAT NOT NULL,
    comments    NVARCHAR(MAX),
    row_hash    NVARCHAR(64) NOT NULL
);`,
		`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'idx_performance_fact_student')
CREATE INDEX idx_performance_fact_student ON performance_fact (student_id);`,
		`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'idx_performance_fact_course')
CREATE INDEX idx_performance_fact_course ON performance_fact (course_id);`,
		`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'idx_performance_fact_time')
CREATE INDEX idx_performance_fact_time ON performance_fact (time_id);`,
		`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'idx_enrollment_fact_student')
CREATE INDEX idx_enrollment_fact_student ON enrollment_fact (student_id);`,
		`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'idx_attendance_fact_student')
CREATE INDEX idx_attendance_fact_student ON attendance_fact (student_id);`,
		`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'idx_feedback_fact_course')
CREATE INDEX idx_feedback_fact_course ON feedback_fact (course_id);`,
	}
	if dedupe {
		ddl = append(ddl,
			`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'uq_performance_fact_row_hash')
CREATE UNIQUE INDEX uq_performance_fact_row_hash ON performance_fact (row_hash);`,
			`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'uq_enrollment_fact_row_hash')
CREATE UNIQUE INDEX uq_enrollment_fact_row_hash ON enrollment_fact (row_hash);`,
			`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'uq_attendance_fact_row_hash')
CREATE UNIQUE INDEX uq_attendance_fact_row_hash ON attendance_fact (row_hash);`,
			`IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'uq_feedback_fact_row_hash')
CREATE UNIQUE INDEX uq_feedback_fact_row_hash ON feedback_fact (row_hash);`,
		)
	}
	return ddl
}
