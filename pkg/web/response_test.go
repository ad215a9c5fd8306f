package web

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestGetErrorMsg(t *testing.T) {
	t.Parallel()

	type request struct {
		Email    string `validate:"required,email"`
		Password string `validate:"min=6"`
		To       string `validate:"uuid"`
	}

	testCases := []struct {
		name string
		req  request
		want string
	}{
		{
			name: "Required",
			req:  request{Password: "secret", To: "2d3c1f6e-2a3b-4c5d-8e9f-0a1b2c3d4e5f"},
			want: "Email field is required",
		},
		{
			name: "Email",
			req:  request{Email: "nope", Password: "secret", To: "2d3c1f6e-2a3b-4c5d-8e9f-0a1b2c3d4e5f"},
			want: "Email must be a valid email",
		},
		{
			name: "Min",
			req:  request{Email: "a@b.com", Password: "abc", To: "2d3c1f6e-2a3b-4c5d-8e9f-0a1b2c3d4e5f"},
			want: "Password must be at least 6 characters long",
		},
		{
			name: "UUID",
			req:  request{Email: "a@b.com", Password: "secret", To: "42"},
			want: "To must be a valid account id",
		},
	}

	v := validator.New()

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := v.Struct(tc.req)

			var ve validator.ValidationErrors
			if !errors.As(err, &ve) {
				t.Fatalf("v.Struct(%+v) returned %v, want validation errors", tc.req, err)
			}

			if got := GetErrorMsg(ve); got != tc.want {
				t.Errorf("GetErrorMsg() = %q, want %q", got, tc.want)
			}
		})
	}
}
