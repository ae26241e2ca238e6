package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jonandersen/rob/internal/auth"
	"github.com/jonandersen/rob/internal/broker"
	"github.com/jonandersen/rob/internal/broker/brokertest"
	"github.com/jonandersen/rob/internal/config"
	"github.com/jonandersen/rob/internal/credentials"
	"github.com/jonandersen/rob/internal/keyring"
)

const (
	testUser = "user@example.com"
	testSeed = "JBSWY3DPEHPK3PXP"
)

// testEnv wires commands to a mocked broker, an in-memory keyring and a
// temporary config file.
type testEnv struct {
	client  *brokertest.MockClient
	store   *keyring.MockStore
	cfgPath string
	opts    runtimeOptions
}

func newTestEnv(t *testing.T, input string) *testEnv {
	t.Helper()
	t.Setenv(credentials.EnvUsername, "")
	t.Setenv(credentials.EnvMFACode, "")
	t.Setenv(config.EnvLogLevel, "")
	logLevel = ""
	jsonOutput = false

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.DefaultConfig()
	cfg.Username = testUser
	cfg.TradeDelay = config.Duration{}
	cfg.RetryDelay = config.Duration{Duration: time.Millisecond}
	cfg.LogLevel = "disabled"
	require.NoError(t, config.Save(cfgPath, cfg))

	client := &brokertest.MockClient{}
	store := keyring.NewMockStore().
		WithData(keyring.KeyPassword, "pw").
		WithData(keyring.KeyTOTPSecret, testSeed)

	return &testEnv{
		client:  client,
		store:   store,
		cfgPath: cfgPath,
		opts: runtimeOptions{
			configPath: cfgPath,
			store:      store,
			in:         strings.NewReader(input),
			newClient: func(*config.Config, zerolog.Logger) (broker.Client, error) {
				return client, nil
			},
			newCache: func(*config.Config) auth.SessionCache { return nil },
		},
	}
}

// expectLogin scripts a successful login and the logout that follows.
func (e *testEnv) expectLogin() {
	e.client.On("Login", mock.Anything, testUser, "pw", mock.Anything).
		Return(&broker.Token{AccessToken: "tok"}, nil).Once()
	e.client.On("Logout", mock.Anything).Return(nil).Once()
}

// expectAccount scripts the summary and two holdings: AAPL 10 @ $200 and
// MSFT 20 @ $400.
func (e *testEnv) expectAccount(cash, equity string) {
	e.client.On("AccountProfile", mock.Anything).
		Return(&broker.AccountProfile{AccountNumber: "5QR", BuyingPower: brokertest.Price(cash)}, nil)
	e.client.On("PortfolioProfile", mock.Anything).
		Return(&broker.PortfolioProfile{Equity: brokertest.Price(equity)}, nil)
	e.client.On("Holdings", mock.Anything).Return([]broker.Position{
		{Symbol: "MSFT", Quantity: brokertest.Price("20"), AverageCost: brokertest.Price("300")},
		{Symbol: "AAPL", Quantity: brokertest.Price("10"), AverageCost: brokertest.Price("150")},
	}, nil)
	e.client.On("LastPrice", mock.Anything, "AAPL").Return(brokertest.Price("200"), nil)
	e.client.On("LastPrice", mock.Anything, "MSFT").Return(brokertest.Price("400"), nil)
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
