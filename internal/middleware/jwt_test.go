package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/auth-session-api/internal/auth"
	"github.com/iliyamo/auth-session-api/internal/config"
)

func testIssuer() *auth.Issuer {
	return auth.NewIssuer(config.JWTConfig{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		AccessTTL:     time.Hour,
	})
}

func TestParseBearer(t *testing.T) {
	tests := []struct {
		header string
		want   string
		err    error
	}{
		{"", "", auth.ErrAuthHeaderMissing},
		{"Bearer abc", "abc", nil},
		{"bearer abc", "abc", nil},
		{"BEARER abc", "abc", nil},
		{"Bearer", "", auth.ErrMalformedBearer},
		{"Bearer ", "", auth.ErrMalformedBearer},
		{"Basic abc", "", auth.ErrMalformedBearer},
		{"Bearerabc", "", auth.ErrMalformedBearer},
		{"Bearer  abc", "", auth.ErrMalformedBearer},
		{" Bearer abc", "", auth.ErrMalformedBearer},
		{"Bearer abc extra", "abc", nil},
	}
	for _, tt := range tests {
		got, err := parseBearer(tt.header)
		if tt.err != nil {
			assert.ErrorIs(t, err, tt.err, "parseBearer(%q)", tt.header)
			continue
		}
		require.NoError(t, err, "parseBearer(%q)", tt.header)
		assert.Equal(t, tt.want, got)
	}
}

// run sends one request through RequireToken(kind) and returns the error the
// chain produced and the payload seen by the handler.
func run(t *testing.T, kind auth.Kind, header string) (auth.Payload, bool, error) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	var (
		seen   auth.Payload
		called bool
	)
	h := RequireToken(testIssuer(), kind)(func(c echo.Context) error {
		called = true
		p, ok := PayloadFrom(c)
		require.True(t, ok)
		fromCtx, ok := PayloadFromContext(c.Request().Context())
		require.True(t, ok)
		assert.Equal(t, p, fromCtx)
		seen = p
		return nil
	})
	err := h(c)
	return seen, called, err
}

func TestRequireToken(t *testing.T) {
	iss := testIssuer()
	access, err := iss.IssueAccess(auth.Payload{Email: "a@x.com"})
	require.NoError(t, err)
	refresh, err := iss.IssueRefresh(auth.Payload{Email: "a@x.com"})
	require.NoError(t, err)
	expired, err := iss.IssueAccessTTL(auth.Payload{Email: "a@x.com"}, -time.Minute)
	require.NoError(t, err)

	t.Run("access accepted", func(t *testing.T) {
		p, called, err := run(t, auth.KindAccess, "Bearer "+access)
		require.NoError(t, err)
		assert.True(t, called)
		assert.Equal(t, "a@x.com", p.Email)
	})
	t.Run("refresh accepted on refresh gate", func(t *testing.T) {
		_, called, err := run(t, auth.KindRefresh, "bearer "+refresh)
		require.NoError(t, err)
		assert.True(t, called)
	})
	t.Run("refresh rejected on access gate", func(t *testing.T) {
		_, called, err := run(t, auth.KindAccess, "Bearer "+refresh)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
		assert.False(t, called)
	})
	t.Run("access rejected on refresh gate", func(t *testing.T) {
		_, _, err := run(t, auth.KindRefresh, "Bearer "+access)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})
	t.Run("expired", func(t *testing.T) {
		_, _, err := run(t, auth.KindAccess, "Bearer "+expired)
		assert.Equal(t, auth.ErrInvalidToken, err)
	})
	t.Run("missing header", func(t *testing.T) {
		_, called, err := run(t, auth.KindAccess, "")
		assert.ErrorIs(t, err, auth.ErrAuthHeaderMissing)
		assert.False(t, called)
	})
	t.Run("trailing fields ignored", func(t *testing.T) {
		p, called, err := run(t, auth.KindAccess, "Bearer "+access+" extra")
		require.NoError(t, err)
		assert.True(t, called)
		assert.Equal(t, "a@x.com", p.Email)
	})
	t.Run("double space", func(t *testing.T) {
		_, called, err := run(t, auth.KindAccess, "Bearer  "+access)
		assert.ErrorIs(t, err, auth.ErrMalformedBearer)
		assert.False(t, called)
	})
	t.Run("malformed", func(t *testing.T) {
		_, _, err := run(t, auth.KindAccess, "Token "+access)
		assert.ErrorIs(t, err, auth.ErrMalformedBearer)
	})
}

func TestPayloadFrom_Absent(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_, ok := PayloadFrom(c)
	assert.False(t, ok)
	_, ok = PayloadFromContext(c.Request().Context())
	assert.False(t, ok)
}
