package dbtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithSearchPath(t *testing.T) {
	cases := []struct {
		dsn  string
		want string
	}{
		{"postgres://u:p@localhost:5432/vouch", "postgres://u:p@localhost:5432/vouch?search_path=test_x"},
		{"postgres://u:p@localhost/vouch?sslmode=disable", "postgres://u:p@localhost/vouch?sslmode=disable&search_path=test_x"},
		{"host=localhost dbname=vouch sslmode=disable", "host=localhost dbname=vouch sslmode=disable search_path=test_x"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, withSearchPath(tc.dsn, "test_x"), tc.dsn)
	}
}

func TestOpenMigratesSchema(t *testing.T) {
	db := Open(t)
	assert.True(t, db.Migrator().HasTable("users"))
	assert.True(t, db.Migrator().HasTable("interaction_passes"))
}
