package repository_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JaimeStill/tally/pkg/repository"
)

var (
	errNotFound  = errors.New("not found")
	errDuplicate = errors.New("duplicate")
)

func TestMapErrorNil(t *testing.T) {
	got := repository.MapError(nil, errNotFound, errDuplicate)
	if got != nil {
		t.Errorf("MapError(nil) = %v, want nil", got)
	}
}

func TestMapErrorNotFound(t *testing.T) {
	got := repository.MapError(sql.ErrNoRows, errNotFound, errDuplicate)
	if !errors.Is(got, errNotFound) {
		t.Errorf("MapError(ErrNoRows) = %v, want %v", got, errNotFound)
	}
}

func TestMapErrorDuplicate(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505"}
	got := repository.MapError(pgErr, errNotFound, errDuplicate)
	if !errors.Is(got, errDuplicate) {
		t.Errorf("MapError(PgError 23505) = %v, want %v", got, errDuplicate)
	}
}

func TestMapErrorPassthrough(t *testing.T) {
	original := errors.New("some other error")
	got := repository.MapError(original, errNotFound, errDuplicate)
	if got != original {
		t.Errorf("MapError(other) = %v, want %v", got, original)
	}
}

func TestMapErrorPgNonDuplicate(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23503"}
	got := repository.MapError(pgErr, errNotFound, errDuplicate)
	if got != pgErr {
		t.Errorf("MapError(PgError 23503) should pass through, got %v", got)
	}
}

func TestConstraintHelpers(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		duplicate bool
		foreign   bool
		check     bool
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, true, false, false},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, false, true, false},
		{"check violation", &pgconn.PgError{Code: "23514"}, false, false, true},
		{"wrapped unique violation", fmt.Errorf("insert mapping: %w", &pgconn.PgError{Code: "23505"}), true, false, false},
		{"plain error", errors.New("boom"), false, false, false},
		{"nil", nil, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := repository.IsDuplicate(tt.err); got != tt.duplicate {
				t.Errorf("IsDuplicate = %v, want %v", got, tt.duplicate)
			}
			if got := repository.IsForeignKey(tt.err); got != tt.foreign {
				t.Errorf("IsForeignKey = %v, want %v", got, tt.foreign)
			}
			if got := repository.IsCheckViolation(tt.err); got != tt.check {
				t.Errorf("IsCheckViolation = %v, want %v", got, tt.check)
			}
		})
	}
}
