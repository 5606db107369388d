package auth

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/auth-session-api/internal/model"
	"github.com/iliyamo/auth-session-api/internal/queue"
)

func TestService_RegisterThenLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, Registration{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)
	assert.NotEmpty(t, reg.AccessToken)
	assert.NotEmpty(t, reg.RefreshToken)

	pair, err := f.svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	got, err := f.svc.Issuer().VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Empty(t, got.Password)

	got, err = f.svc.Issuer().VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)

	var userID uint64
	require.NoError(t, f.db.QueryRow("SELECT id FROM users WHERE email = ?", "a@x.com").Scan(&userID))
	var rows int
	require.NoError(t, f.db.QueryRow("SELECT COUNT(*) FROM refresh_tokens WHERE user_id = ?", userID).Scan(&rows))
	assert.Equal(t, 1, rows)
	assert.Equal(t, 1, countRows(t, f.db, "refresh_tokens"))
}

func TestService_RegisterStoresHashAndCarriesItInTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.svc.Register(ctx, Registration{Email: "A@X.com ", Password: "pw1"})
	require.NoError(t, err)

	var stored string
	require.NoError(t, f.db.QueryRow("SELECT password FROM users WHERE email = ?", "a@x.com").Scan(&stored))
	assert.NotEqual(t, "pw1", stored)
	assert.True(t, f.svc.hasher.Verify("pw1", stored))

	p, err := f.svc.Issuer().VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, Payload{Email: "a@x.com", Password: stored}, p)
}

func TestService_RegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, Registration{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, Registration{Email: "a@x.com", Password: "other"})
	assert.ErrorIs(t, err, ErrUserExists)
	assert.Equal(t, "User already exists", err.Error())
	assert.Equal(t, 1, countRows(t, f.db, "users"))
}

func TestService_RegisterDuplicateUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, Registration{Email: "a@x.com", Password: "pw", Username: "neo"})
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, Registration{Email: "b@x.com", Password: "pw", Username: "neo"})
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.Equal(t, 1, countRows(t, f.db, "users"))
}

func TestService_RegisterAttachesRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.svc.Register(ctx, Registration{
		Email: "a@x.com", Password: "pw", Roles: []string{model.RoleUser, model.RoleAdmin, model.RoleUser},
	})
	require.NoError(t, err)

	p, err := f.svc.Issuer().VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	prof, err := f.svc.Profile(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin", "User"}, prof.Roles)
	assert.True(t, prof.LoggedIn)
	assert.Equal(t, 2, countRows(t, f.db, "user_roles"))
}

func TestService_RegisterInvalidRoleWritesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), Registration{
		Email: "a@x.com", Password: "pw", Roles: []string{model.RoleUser, "root"},
	})
	assert.ErrorIs(t, err, ErrInvalidRole)
	assert.Zero(t, countRows(t, f.db, "users"))
	assert.Zero(t, countRows(t, f.db, "roles"))
}

func TestService_RegisterPasswordTooLongWritesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), Registration{
		Email: "a@x.com", Password: strings.Repeat("é", 37),
	})
	assert.ErrorIs(t, err, ErrPasswordTooLong)
	assert.Zero(t, countRows(t, f.db, "users"))
}

func TestService_RegisterRollsBackOnRoleFailure(t *testing.T) {
	db := testDB(t)
	f := newFixtureWithStore(t, db, failingRoleStore{repositoryStore(db)})

	_, err := f.svc.Register(context.Background(), Registration{
		Email: "a@x.com", Password: "pw", Roles: []string{model.RoleAdmin},
	})
	assert.Same(t, errAttach, err)
	assert.Zero(t, countRows(t, db, "users"))
	assert.Zero(t, countRows(t, db, "refresh_tokens"))

	f.svc.Wait()
	assert.Empty(t, f.events.types())
}

func TestService_LoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, Registration{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	_, unknown := f.svc.Login(ctx, "nobody@x.com", "pw1")
	_, wrong := f.svc.Login(ctx, "a@x.com", "nope")

	require.ErrorIs(t, unknown, ErrInvalidCredentials)
	require.ErrorIs(t, wrong, ErrInvalidCredentials)
	assert.Equal(t, unknown.Error(), wrong.Error())
	assert.Equal(t, "Invalid credentials", wrong.Error())
}

func TestService_LoginTwiceReusesRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, Registration{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	first, err := f.svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	second, err := f.svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	assert.Equal(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, 1, countRows(t, f.db, "refresh_tokens"))
}

func TestService_LogoutThenLoginReusesRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, Registration{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)

	var rowID uint64
	require.NoError(t, f.db.QueryRow("SELECT id FROM refresh_tokens").Scan(&rowID))

	require.NoError(t, f.svc.Logout(ctx, Payload{Email: "a@x.com"}))
	var token *string
	require.NoError(t, f.db.QueryRow("SELECT token FROM refresh_tokens WHERE id = ?", rowID).Scan(&token))
	assert.Nil(t, token)

	pair, err := f.svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	assert.NotEqual(t, reg.RefreshToken, pair.RefreshToken)

	var stored string
	require.NoError(t, f.db.QueryRow("SELECT token FROM refresh_tokens WHERE id = ?", rowID).Scan(&stored))
	assert.Equal(t, pair.RefreshToken, stored)
	assert.Equal(t, 1, countRows(t, f.db, "refresh_tokens"))
}

func TestService_Refresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, Registration{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)
	p, err := f.svc.Issuer().VerifyRefresh(reg.RefreshToken)
	require.NoError(t, err)

	access, err := f.svc.Refresh(ctx, p)
	require.NoError(t, err)
	got, err := f.svc.Issuer().VerifyAccess(access)
	require.NoError(t, err)
	assert.Equal(t, Payload{Email: "a@x.com"}, got)

	var stored string
	require.NoError(t, f.db.QueryRow("SELECT token FROM refresh_tokens").Scan(&stored))
	assert.Equal(t, reg.RefreshToken, stored, "refresh must not rotate the refresh token")
}

func TestService_RefreshWithoutSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Refresh(ctx, Payload{Email: "ghost@x.com"})
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	reg, err := f.svc.Register(ctx, Registration{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)
	p, err := f.svc.Issuer().VerifyRefresh(reg.RefreshToken)
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, p))

	_, err = f.svc.Refresh(ctx, p)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Equal(t, "You must log in first", err.Error())
}

func TestService_RefreshUserWithoutRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.db.Exec(`INSERT INTO users (email, password, created_at, updated_at)
		VALUES ('a@x.com', 'h', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, Payload{Email: "a@x.com"})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	err = f.svc.Logout(ctx, Payload{Email: "a@x.com"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_LogoutUnknownUser(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Logout(context.Background(), Payload{Email: "ghost@x.com"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_ConcurrentFirstLogins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, Registration{Email: "a@x.com", Password: "pw1"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, Payload{Email: "a@x.com"}))
	_, err = f.db.Exec("DELETE FROM refresh_tokens")
	require.NoError(t, err)

	const n = 8
	tokens := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pair, err := f.svc.Login(ctx, "a@x.com", "pw1")
			tokens[i], errs[i] = pair.RefreshToken, err
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, tokens[0], tokens[i])
	}
	assert.Equal(t, 1, countRows(t, f.db, "refresh_tokens"))
}

func TestService_ProfileAfterLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, Registration{
		Email: "a@x.com", Password: "pw1", Username: "neo", FirstName: "Thomas", LastName: "Anderson",
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, Payload{Email: "a@x.com"}))

	prof, err := f.svc.Profile(ctx, Payload{Email: "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, Profile{
		Email: "a@x.com", Username: "neo", FirstName: "Thomas", LastName: "Anderson",
		Roles: []string{}, LoggedIn: false,
	}, prof)

	_, err = f.svc.Profile(ctx, Payload{Email: "ghost@x.com"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_PublishesEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, Registration{Email: "a@x.com", Password: "pw1", Roles: []string{model.RoleGuest}})
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	p, _ := f.svc.Issuer().VerifyRefresh(reg.RefreshToken)
	_, err = f.svc.Refresh(ctx, p)
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, p))
	_, _ = f.svc.Login(ctx, "a@x.com", "wrong")

	f.svc.Wait()
	assert.ElementsMatch(t, []string{
		queue.EventUserRegistered, queue.EventUserLoggedIn, queue.EventTokenRefreshed, queue.EventUserLoggedOut,
	}, f.events.types())
}

func TestService_PublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t)
	f.events.err = assert.AnError

	_, err := f.svc.Register(context.Background(), Registration{Email: "a@x.com", Password: "pw1"})
	assert.NoError(t, err)
	f.svc.Wait()
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "invalid_credentials", Outcome(ErrInvalidCredentials))
	assert.Equal(t, "invalid_role", Outcome(ErrInvalidRole))
	assert.Equal(t, "password_too_long", Outcome(ErrPasswordTooLong))
	assert.Equal(t, "error", Outcome(assert.AnError))
}
