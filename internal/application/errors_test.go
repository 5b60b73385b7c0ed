package application

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError(t *testing.T) {
	t.Parallel()

	t.Run("messages list fields in order", func(t *testing.T) {
		cases := []struct {
			name string
			err  *ValidationError
			want string
		}{
			{name: "nil", err: nil, want: ""},
			{name: "empty", err: &ValidationError{}, want: "validation failed"},
			{
				name: "shift fields",
				err:  &ValidationError{FieldErrors: map[string]string{"start_time": "bad", "date": "bad", "location": "unknown"}},
				want: "validation failed: date, location, start_time",
			},
		}
		for _, tc := range cases {
			if got := tc.err.Error(); got != tc.want {
				t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
			}
		}
	})

	t.Run("add and merge collect field errors", func(t *testing.T) {
		vErr := &ValidationError{}
		if vErr.HasErrors() {
			t.Fatalf("expected no errors on a fresh value")
		}
		vErr.add("email", "email is required")
		vErr.merge(fieldError("roles", "unknown role \"dj\""))
		vErr.merge(nil)

		if !vErr.HasErrors() || len(vErr.FieldErrors) != 2 {
			t.Fatalf("expected two field errors, got %v", vErr.FieldErrors)
		}
		if vErr.FieldErrors["roles"] != "unknown role \"dj\"" {
			t.Fatalf("expected merged roles error, got %q", vErr.FieldErrors["roles"])
		}
	})

	t.Run("wrapped validation errors stay detectable", func(t *testing.T) {
		wrapped := fmt.Errorf("bulk copy: %w", fieldError("target", "must differ from source"))
		var vErr *ValidationError
		if !errors.As(wrapped, &vErr) || vErr.FieldErrors["target"] == "" {
			t.Fatalf("expected errors.As to find the validation error in %v", wrapped)
		}
		if kind := ErrorKind(wrapped); kind != "validation" {
			t.Fatalf("expected validation kind, got %q", kind)
		}
	})
}
