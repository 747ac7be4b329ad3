// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

package store

import (
	"errors"
	"regexp"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/lobby/pkg/errutil"
)

type fakeMigrate struct {
	upErr          error
	downErr        error
	version        uint
	dirty          bool
	versionErr     error
	forceErr       error
	forced         []int
	closeSourceErr error
	closeDBErr     error
}

func (f *fakeMigrate) Up() error                    { return f.upErr }
func (f *fakeMigrate) Down() error                  { return f.downErr }
func (f *fakeMigrate) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }
func (f *fakeMigrate) Close() (error, error)        { return f.closeSourceErr, f.closeDBErr }

func (f *fakeMigrate) Force(v int) error {
	f.forced = append(f.forced, v)
	return f.forceErr
}

func TestNewMigrator_InvalidURL(t *testing.T) {
	_, err := NewMigrator("badscheme://localhost:5432/lobby")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@db:5432/lobby":   "pgx5://u:p@db:5432/lobby",
		"postgresql://u:p@db:5432/lobby": "pgx5://u:p@db:5432/lobby",
		"pgx5://db/lobby":                "pgx5://db/lobby",
	}
	for in, want := range tests {
		assert.Equal(t, want, migrateURL(in), in)
	}
}

func TestMigrator_UpDown(t *testing.T) {
	tests := []struct {
		name     string
		fake     *fakeMigrate
		run      func(*Migrator) error
		wantCode string
	}{
		{"up applies", &fakeMigrate{}, (*Migrator).Up, ""},
		{"up with nothing pending", &fakeMigrate{upErr: migrate.ErrNoChange}, (*Migrator).Up, ""},
		{"up fails", &fakeMigrate{upErr: errors.New("database locked")}, (*Migrator).Up, "MIGRATION_UP_FAILED"},
		{"down rolls back", &fakeMigrate{}, (*Migrator).Down, ""},
		{"down with nothing applied", &fakeMigrate{downErr: migrate.ErrNoChange}, (*Migrator).Down, ""},
		{"down fails", &fakeMigrate{downErr: errors.New("locked")}, (*Migrator).Down, "MIGRATION_DOWN_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(&Migrator{m: tt.fake})
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestMigrator_Version(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		v, dirty, err := (&Migrator{m: &fakeMigrate{version: 1, dirty: true}}).Version()
		require.NoError(t, err)
		assert.Equal(t, uint(1), v)
		assert.True(t, dirty)
	})

	t.Run("fresh database", func(t *testing.T) {
		v, dirty, err := (&Migrator{m: &fakeMigrate{versionErr: migrate.ErrNilVersion}}).Version()
		require.NoError(t, err)
		assert.Zero(t, v)
		assert.False(t, dirty)
	})

	t.Run("failure", func(t *testing.T) {
		_, _, err := (&Migrator{m: &fakeMigrate{versionErr: errors.New("connection lost")}}).Version()
		errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
	})
}

func TestMigrator_Force(t *testing.T) {
	t.Run("negative version never reaches the driver", func(t *testing.T) {
		fake := &fakeMigrate{}
		err := (&Migrator{m: fake}).Force(-1)
		errutil.AssertErrorCode(t, err, "INVALID_VERSION")
		assert.Empty(t, fake.forced)
	})

	t.Run("forwards version", func(t *testing.T) {
		fake := &fakeMigrate{}
		require.NoError(t, (&Migrator{m: fake}).Force(1))
		assert.Equal(t, []int{1}, fake.forced)
	})

	t.Run("driver failure", func(t *testing.T) {
		err := (&Migrator{m: &fakeMigrate{forceErr: errors.New("nope")}}).Force(1)
		errutil.AssertErrorCode(t, err, "MIGRATION_FORCE_FAILED")
		errutil.AssertErrorContext(t, err, "version", 1)
	})
}

func TestMigrator_Pending(t *testing.T) {
	pending, err := (&Migrator{m: &fakeMigrate{versionErr: migrate.ErrNilVersion}}).Pending()
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, pending)

	pending, err = (&Migrator{m: &fakeMigrate{version: 1}}).Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMigrator_Close(t *testing.T) {
	tests := []struct {
		name      string
		fake      *fakeMigrate
		component string
	}{
		{"clean", &fakeMigrate{}, ""},
		{"source", &fakeMigrate{closeSourceErr: errors.New("source close failed")}, "source"},
		{"database", &fakeMigrate{closeDBErr: errors.New("db close failed")}, "database"},
		{"both", &fakeMigrate{closeSourceErr: errors.New("source close failed"), closeDBErr: errors.New("db close failed")}, "both"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Migrator{m: tt.fake}).Close()
			if tt.component == "" {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, "MIGRATION_CLOSE_FAILED")
			errutil.AssertErrorContext(t, err, "component", tt.component)
		})
	}

	t.Run("both errors survive", func(t *testing.T) {
		err := (&Migrator{m: tests[3].fake}).Close()
		assert.Contains(t, err.Error(), "source close failed")
		assert.Contains(t, err.Error(), "db close failed")
	})
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	names := make(map[string]bool)
	for _, entry := range entries {
		assert.Regexp(t, pattern, entry.Name())
		names[entry.Name()] = true
	}
	assert.True(t, names["000001_create_users.up.sql"])
	assert.True(t, names["000001_create_users.down.sql"])

	versions, err := embeddedVersions()
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, versions)

	name, err := MigrationName(1)
	require.NoError(t, err)
	assert.Equal(t, "000001_create_users", name)

	name, err = MigrationName(99)
	require.NoError(t, err)
	assert.Empty(t, name)
}
