package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jonandersen/rob/internal/broker"
	"github.com/jonandersen/rob/internal/broker/brokertest"
	"github.com/jonandersen/rob/internal/credentials"
)

type memCache struct {
	token       *broker.Token
	loadErr     error
	saveErr     error
	saved       []*broker.Token
	invalidated int
}

func (c *memCache) Exists() bool { return c.token != nil || c.loadErr != nil }

func (c *memCache) Load() (*broker.Token, error) {
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	return c.token, nil
}

func (c *memCache) Save(token *broker.Token) error {
	if c.saveErr != nil {
		return c.saveErr
	}
	c.saved = append(c.saved, token)
	c.token = token
	return nil
}

func (c *memCache) Invalidate() error {
	c.invalidated++
	c.token = nil
	c.loadErr = nil
	return nil
}

// seqCodes hands out codes in order.
type seqCodes struct {
	codes []string
	calls int
	err   error
}

func (s *seqCodes) Code(string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	code := s.codes[s.calls%len(s.codes)]
	s.calls++
	return code, nil
}

func (s *seqCodes) Remaining() int { return 17 }

type fakeApprover struct {
	device     int
	challenges []string
	err        error
}

func (f *fakeApprover) AwaitDeviceApproval(context.Context) error {
	f.device++
	return f.err
}

func (f *fakeApprover) AwaitChallenge(_ context.Context, detail string) error {
	f.challenges = append(f.challenges, detail)
	return f.err
}

type sleepLog struct {
	waits []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

type fixture struct {
	client   *brokertest.MockClient
	cache    *memCache
	codes    *seqCodes
	approver *fakeApprover
	sleeps   *sleepLog
	out      *bytes.Buffer
	auth     *Authenticator
}

func newFixture() *fixture {
	f := &fixture{
		client:   new(brokertest.MockClient),
		cache:    &memCache{},
		codes:    &seqCodes{codes: []string{"111111", "222222", "333333"}},
		approver: &fakeApprover{},
		sleeps:   &sleepLog{},
		out:      &bytes.Buffer{},
	}
	f.auth = New(f.client, f.cache, f.approver, f.out, zerolog.Nop()).
		WithCodeSource(f.codes).
		WithSleeper(f.sleeps.sleep)
	return f
}

var (
	withSeed    = credentials.Static{Username: "me", Password: "pw", TOTPSeed: "SEED"}
	withoutSeed = credentials.Static{Username: "me", Password: "pw", ManualCode: "999999"}
	token       = &broker.Token{AccessToken: "access"}
)

func loginErr(kind broker.LoginErrorKind) error {
	return &broker.LoginError{Kind: kind, Message: kind.String()}
}

type failingProvider struct{ err error }

func (p failingProvider) Credentials(context.Context) (credentials.Credentials, error) {
	return credentials.Credentials{}, p.err
}

func TestAuthenticate_ResumesCachedSession(t *testing.T) {
	f := newFixture()
	f.cache.token = &broker.Token{AccessToken: "cached"}
	f.client.On("Resume", mock.Anything, f.cache.token).Return(nil)

	sess, err := f.auth.Authenticate(context.Background(), failingProvider{err: errors.New("must not be asked")})

	require.NoError(t, err)
	assert.Equal(t, Authenticated, sess.Status)
	assert.Equal(t, 0, sess.Attempts)
	assert.Equal(t, 0, f.cache.invalidated)
	f.client.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.client.AssertExpectations(t)
}

func TestAuthenticate_RejectedCacheFallsThrough(t *testing.T) {
	f := newFixture()
	stale := &broker.Token{AccessToken: "stale"}
	f.cache.token = stale
	f.client.On("Resume", mock.Anything, stale).Return(errors.New("401"))
	f.client.On("Login", mock.Anything, "me", "pw", "111111").Return(token, nil).Once()

	sess, err := f.auth.Authenticate(context.Background(), withSeed)

	require.NoError(t, err)
	assert.Equal(t, Authenticated, sess.Status)
	assert.Equal(t, 1, sess.Attempts)
	assert.Equal(t, 1, f.cache.invalidated)
	assert.Equal(t, []*broker.Token{token}, f.cache.saved)
	f.client.AssertExpectations(t)
}

func TestAuthenticate_ExpiredCacheSkipsResume(t *testing.T) {
	f := newFixture()
	f.cache.token = &broker.Token{AccessToken: "old", ExpiresAt: time.Now().Add(-time.Hour)}
	f.client.On("Login", mock.Anything, "me", "pw", "111111").Return(token, nil).Once()

	_, err := f.auth.Authenticate(context.Background(), withSeed)

	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.invalidated)
	f.client.AssertNotCalled(t, "Resume", mock.Anything, mock.Anything)
}

func TestAuthenticate_UnreadableCacheFallsThrough(t *testing.T) {
	f := newFixture()
	f.cache.loadErr = errors.New("corrupt")
	f.client.On("Login", mock.Anything, "me", "pw", "999999").Return(token, nil).Once()

	sess, err := f.auth.Authenticate(context.Background(), withoutSeed)

	require.NoError(t, err)
	assert.True(t, sess.Authenticated())
	assert.Equal(t, 1, f.cache.invalidated)
}

func TestAuthenticate_DeviceApprovalThenSuccess(t *testing.T) {
	f := newFixture()
	f.client.On("Login", mock.Anything, "me", "pw", "111111").Return(nil, loginErr(broker.LoginDeviceApprovalRequired)).Once()
	f.client.On("Login", mock.Anything, "me", "pw", "").Return(token, nil).Once()

	sess, err := f.auth.Authenticate(context.Background(), withSeed)

	require.NoError(t, err)
	assert.Equal(t, Authenticated, sess.Status)
	assert.Equal(t, 2, sess.Attempts)
	assert.Equal(t, 1, f.approver.device)
	assert.Equal(t, []time.Duration{DefaultSettleDelay}, f.sleeps.waits)
	f.client.AssertExpectations(t)
}

func TestAuthenticate_PostApprovalCodeErrorRegenerates(t *testing.T) {
	f := newFixture()
	f.client.On("Login", mock.Anything, "me", "pw", "111111").Return(nil, loginErr(broker.LoginDeviceApprovalRequired)).Once()
	f.client.On("Login", mock.Anything, "me", "pw", "").Return(nil, loginErr(broker.LoginInvalidCode)).Once()
	f.client.On("Login", mock.Anything, "me", "pw", "222222").Return(token, nil).Once()

	sess, err := f.auth.Authenticate(context.Background(), withSeed)

	require.NoError(t, err)
	assert.Equal(t, 3, sess.Attempts)
	// Only the approval settle delay; the fresh code is used immediately.
	assert.Equal(t, []time.Duration{DefaultSettleDelay}, f.sleeps.waits)
	f.client.AssertExpectations(t)
}

func TestAuthenticate_ApprovedWithoutSession(t *testing.T) {
	f := newFixture()
	f.client.On("Login", mock.Anything, "me", "pw", mock.Anything).Return(nil, loginErr(broker.LoginDeviceApprovalRequired))

	sess, err := f.auth.Authenticate(context.Background(), withSeed)

	assert.Nil(t, sess)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, ApprovedWithoutSession, KindOf(err))
	var authErr *Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 3, authErr.Attempts)
	// No approval is requested when no attempt is left to use it.
	assert.Equal(t, 2, f.approver.device)
	f.client.AssertNumberOfCalls(t, "Login", 3)
}

func TestAuthenticate_ChallengeKeepsCode(t *testing.T) {
	f := newFixture()
	f.client.On("Login", mock.Anything, "me", "pw", "999999").Return(nil, loginErr(broker.LoginChallengeRequired)).Once()
	f.client.On("Login", mock.Anything, "me", "pw", "999999").Return(token, nil).Once()

	sess, err := f.auth.Authenticate(context.Background(), withoutSeed)

	require.NoError(t, err)
	assert.Equal(t, 2, sess.Attempts)
	require.Len(t, f.approver.challenges, 1)
	assert.Contains(t, f.approver.challenges[0], "challenge required")
	assert.Equal(t, []time.Duration{DefaultRetryDelay}, f.sleeps.waits)
	f.client.AssertExpectations(t)
}

func TestAuthenticate_ExpiredCodeRegeneratesFromSeed(t *testing.T) {
	f := newFixture()
	f.client.On("Login", mock.Anything, "me", "pw", "111111").Return(nil, loginErr(broker.LoginInvalidCode)).Once()
	f.client.On("Login", mock.Anything, "me", "pw", "222222").Return(token, nil).Once()

	sess, err := f.auth.Authenticate(context.Background(), withSeed)

	require.NoError(t, err)
	assert.Equal(t, 2, sess.Attempts)
	assert.Equal(t, []time.Duration{DefaultRetryDelay}, f.sleeps.waits)
	assert.Contains(t, f.out.String(), "New code: 222***")
	f.client.AssertExpectations(t)
}

func TestAuthenticate_InvalidManualCodeRetriesWithoutCodeOnce(t *testing.T) {
	f := newFixture()
	f.client.On("Login", mock.Anything, "me", "pw", "999999").Return(nil, loginErr(broker.LoginInvalidCode)).Once()
	f.client.On("Login", mock.Anything, "me", "pw", "").Return(nil, loginErr(broker.LoginInvalidCode)).Once()

	_, err := f.auth.Authenticate(context.Background(), withoutSeed)

	require.Error(t, err)
	assert.Equal(t, CodeExpired, KindOf(err))
	var authErr *Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 2, authErr.Attempts)
	assert.Empty(t, f.sleeps.waits)
	f.client.AssertExpectations(t)
}

func TestAuthenticate_InvalidCredentialsRetriesUntilExhausted(t *testing.T) {
	f := newFixture()
	f.client.On("Login", mock.Anything, "me", "pw", "111111").Return(nil, loginErr(broker.LoginInvalidCredentials))

	_, err := f.auth.Authenticate(context.Background(), withSeed)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, AttemptsExhausted, KindOf(err))
	assert.Contains(t, err.Error(), "invalid credentials")
	assert.Equal(t, []time.Duration{DefaultRetryDelay, DefaultRetryDelay}, f.sleeps.waits)
	f.client.AssertNumberOfCalls(t, "Login", 3)
	assert.Empty(t, f.cache.saved)
}

func TestAuthenticate_InvalidCredentialsThenSuccess(t *testing.T) {
	f := newFixture()
	f.client.On("Login", mock.Anything, "me", "pw", "999999").Return(nil, loginErr(broker.LoginInvalidCredentials)).Once()
	f.client.On("Login", mock.Anything, "me", "pw", "999999").Return(token, nil).Once()

	sess, err := f.auth.Authenticate(context.Background(), withoutSeed)

	require.NoError(t, err)
	assert.Equal(t, 2, sess.Attempts)
	f.client.AssertExpectations(t)
}

func TestAuthenticate_SeededCodeRejectedOnLastAttempt(t *testing.T) {
	f := newFixture()
	f.client.On("Login", mock.Anything, "me", "pw", mock.Anything).Return(nil, loginErr(broker.LoginInvalidCode))

	_, err := f.auth.Authenticate(context.Background(), withSeed)

	require.Error(t, err)
	assert.Equal(t, AttemptsExhausted, KindOf(err))
	var authErr *Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 3, authErr.Attempts)
	f.client.AssertNumberOfCalls(t, "Login", 3)
	// Two regenerations, none after the final attempt.
	assert.Equal(t, 3, f.codes.calls)
}

func TestAuthenticate_TransientExhaustsAttempts(t *testing.T) {
	f := newFixture()
	f.client.On("Login", mock.Anything, "me", "pw", "999999").Return(nil, errors.New("connection reset"))

	_, err := f.auth.Authenticate(context.Background(), withoutSeed)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, AttemptsExhausted, KindOf(err))
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, []time.Duration{DefaultRetryDelay, DefaultRetryDelay}, f.sleeps.waits)
	f.client.AssertNumberOfCalls(t, "Login", 3)
}

func TestAuthenticate_CustomOptions(t *testing.T) {
	f := newFixture()
	f.auth.WithOptions(Options{MaxAttempts: 5, RetryDelay: time.Millisecond})
	f.client.On("Login", mock.Anything, "me", "pw", "999999").Return(nil, errors.New("503"))

	_, err := f.auth.Authenticate(context.Background(), withoutSeed)

	require.Error(t, err)
	f.client.AssertNumberOfCalls(t, "Login", 5)
	assert.Len(t, f.sleeps.waits, 4)
	assert.Equal(t, time.Millisecond, f.sleeps.waits[0])
}

func TestAuthenticate_SeedFailureFallsBackToManualCode(t *testing.T) {
	f := newFixture()
	f.codes.err = errors.New("bad seed")
	creds := credentials.Static{Username: "me", Password: "pw", TOTPSeed: "!!", ManualCode: "424242"}
	f.client.On("Login", mock.Anything, "me", "pw", "424242").Return(token, nil).Once()

	_, err := f.auth.Authenticate(context.Background(), creds)

	require.NoError(t, err)
	f.client.AssertExpectations(t)
}

func TestAuthenticate_CredentialsUnavailable(t *testing.T) {
	f := newFixture()
	boom := errors.New("no tty")

	_, err := f.auth.Authenticate(context.Background(), failingProvider{err: boom})

	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, CredentialsUnavailable, KindOf(err))
}

func TestAuthenticate_CanceledDuringApproval(t *testing.T) {
	f := newFixture()
	f.approver.err = context.Canceled
	f.client.On("Login", mock.Anything, "me", "pw", "111111").Return(nil, loginErr(broker.LoginDeviceApprovalRequired)).Once()

	_, err := f.auth.Authenticate(context.Background(), withSeed)

	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Canceled, KindOf(err))
}

func TestAuthenticate_CanceledContext(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.auth.Authenticate(ctx, withSeed)

	assert.Equal(t, Canceled, KindOf(err))
	f.client.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthenticate_SaveFailureStillAuthenticates(t *testing.T) {
	f := newFixture()
	f.cache.saveErr = errors.New("read-only filesystem")
	f.client.On("Login", mock.Anything, "me", "pw", "111111").Return(token, nil).Once()

	sess, err := f.auth.Authenticate(context.Background(), withSeed)

	require.NoError(t, err)
	assert.True(t, sess.Authenticated())
}

func TestAuthenticate_NeverPrintsFullCode(t *testing.T) {
	f := newFixture()
	f.client.On("Login", mock.Anything, "me", "pw", "111111").Return(token, nil).Once()

	_, err := f.auth.Authenticate(context.Background(), withSeed)

	require.NoError(t, err)
	assert.NotContains(t, f.out.String(), "111111")
	assert.Contains(t, f.out.String(), "111***")
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}

func TestError(t *testing.T) {
	err := &Error{Kind: AttemptsExhausted, Attempts: 3, Last: fmt.Errorf("boom")}
	assert.Equal(t, "authentication failed: attempts exhausted after 3 attempt(s): boom", err.Error())
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, NoError, KindOf(errors.New("plain")))
}
