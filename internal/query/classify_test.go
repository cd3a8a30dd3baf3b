// ABOUTME: Tests for statement classification
// ABOUTME: Table of write verbs, read statements, casing, and leading comments

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsWrite(t *testing.T) {
	tests := []struct {
		stmt string
		want bool
	}{
		{"INSERT INTO users VALUES (1)", true},
		{"  update users SET name = 'x'", true},
		{"\n\tDelete FROM users", true},
		{"REPLACE INTO users VALUES (1)", true},
		{"create table t (id INTEGER)", true},
		{"ALTER TABLE t ADD COLUMN x TEXT", true},
		{"DROP TABLE t", true},
		{"TRUNCATE t", true},
		{"PRAGMA user_version = 3", true},
		{"-- bump price\nUPDATE products SET price = 1", true},
		{"/* admin */ DELETE FROM favorites", true},
		{"SELECT * FROM users", false},
		{"  select 1", false},
		{"WITH x AS (SELECT 1) SELECT * FROM x", false},
		{"EXPLAIN QUERY PLAN SELECT 1", false},
		{"inserted_at", false},
		{"", false},
		{"-- only a comment", false},
		{"/* unterminated", false},
	}

	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWrite(tt.stmt))
		})
	}
}
