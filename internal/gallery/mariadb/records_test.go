package mariadb

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestIsDuplicateEntry(t *testing.T) {
	dup := &mysql.MySQLError{Number: errDuplicateEntry, Message: "Duplicate entry 'a' for key 'uq_gallery_identity'"}
	other := &mysql.MySQLError{Number: 1146, Message: "Table doesn't exist"}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"duplicate", dup, true},
		{"wrapped duplicate", fmt.Errorf("exec: %w", dup), true},
		{"other server error", other, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDuplicateEntry(tt.err); got != tt.want {
				t.Errorf("isDuplicateEntry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewPoolRequiresDSN(t *testing.T) {
	if _, err := NewPool(""); err == nil {
		t.Error("expected error for empty DSN")
	}
	if _, err := NewPool("not a dsn"); err == nil {
		t.Error("expected error for malformed DSN")
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_\`); got != `50\%\_\\` {
		t.Errorf("escapeLike = %q", got)
	}
}
