package bot

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tippay/tip_bot/internal/credentials"
	"github.com/tippay/tip_bot/internal/logging"
	"github.com/tippay/tip_bot/internal/metrics"
	"github.com/tippay/tip_bot/internal/slack"
	"github.com/tippay/tip_bot/internal/spsp"
)

// ---------------------------------------------------------------------------
// collaborator fakes (shared by the workflow tests)
// ---------------------------------------------------------------------------

type fakeStore struct {
	mu        sync.Mutex
	records   map[string]credentials.Credentials
	getErr    error
	upsertErr error
	upserts   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]credentials.Credentials)}
}

func (f *fakeStore) Get(_ context.Context, userID string) (credentials.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return credentials.Credentials{}, f.getErr
	}
	creds, ok := f.records[userID]
	if !ok {
		return credentials.Credentials{}, credentials.ErrNotFound
	}
	return creds, nil
}

func (f *fakeStore) Upsert(_ context.Context, userID string, creds credentials.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++
	f.records[userID] = creds
	return nil
}

type postedMessage struct {
	Channel string
	Text    string
}

type postedResponse struct {
	URL string
	Msg slack.ResponseMessage
}

type setFieldCall struct {
	UserID  string
	FieldID string
	Value   string
}

type fakeChat struct {
	mu              sync.Mutex
	messages        []postedMessage
	responses       []postedResponse
	setFields       []setFieldCall
	profiles        map[string]slack.Profile
	fieldDefs       []slack.FieldDef
	postErr         error
	profileErr      error
	teamProfileErr  error
	setFieldErr     error
	postResponseErr error
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		profiles: make(map[string]slack.Profile),
		fieldDefs: []slack.FieldDef{
			{ID: "Xf0PRONOUNS", Label: "Pronouns"},
			{ID: "Xf0SPSP", Label: "SPSP Address"},
		},
	}
}

func (f *fakeChat) PostMessage(_ context.Context, channel, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return f.postErr
	}
	f.messages = append(f.messages, postedMessage{Channel: channel, Text: text})
	return nil
}

func (f *fakeChat) UserProfile(_ context.Context, userID string) (slack.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return slack.Profile{}, f.profileErr
	}
	return f.profiles[userID], nil
}

func (f *fakeChat) TeamProfile(_ context.Context) ([]slack.FieldDef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.teamProfileErr != nil {
		return nil, f.teamProfileErr
	}
	return f.fieldDefs, nil
}

func (f *fakeChat) SetProfileField(_ context.Context, userID, fieldID, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setFieldErr != nil {
		return f.setFieldErr
	}
	f.setFields = append(f.setFields, setFieldCall{UserID: userID, FieldID: fieldID, Value: value})
	return nil
}

func (f *fakeChat) PostResponse(_ context.Context, responseURL string, msg slack.ResponseMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postResponseErr != nil {
		return f.postResponseErr
	}
	f.responses = append(f.responses, postedResponse{URL: responseURL, Msg: msg})
	return nil
}

func (f *fakeChat) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages) + len(f.responses) + len(f.setFields)
}

type quoteCall struct {
	Destination string
	Amount      decimal.Decimal
}

type payCall struct {
	PaymentID string
	Quote     spsp.Quote
	Dest      spsp.Destination
	Note      string
}

type provisionCall struct {
	Host       string
	Username   string
	Password   string
	InviteCode string
}

type fakePayments struct {
	mu             sync.Mutex
	account        spsp.Account
	accountErr     error
	accountCalls   int
	quote          spsp.Quote
	quoteErr       error
	quoteCalls     []quoteCall
	dest           spsp.Destination
	parseErr       error
	parseCalls     int
	payErr         error
	payCalls       []payCall
	provisioned    credentials.Credentials
	provisionErr   error
	provisionCalls []provisionCall
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		quote: spsp.Quote{
			SourceAmount:      decimal.RequireFromString("5.25"),
			DestinationAmount: decimal.RequireFromString("5.00"),
		},
		dest: spsp.Destination{
			Address:        "bob@wallet.example",
			ILPAddress:     "us.wallet.bob",
			CurrencySymbol: "$",
		},
	}
}

func (f *fakePayments) Account(_ context.Context, _ credentials.Credentials) (spsp.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountCalls++
	if f.accountErr != nil {
		return spsp.Account{}, f.accountErr
	}
	return f.account, nil
}

func (f *fakePayments) Quote(_ context.Context, _ credentials.Credentials, destination string, amount decimal.Decimal) (spsp.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls = append(f.quoteCalls, quoteCall{Destination: destination, Amount: amount})
	if f.quoteErr != nil {
		return spsp.Quote{}, f.quoteErr
	}
	return f.quote, nil
}

func (f *fakePayments) ParseDestination(_ context.Context, _ credentials.Credentials, destination string) (spsp.Destination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parseCalls++
	if f.parseErr != nil {
		return spsp.Destination{}, f.parseErr
	}
	dest := f.dest
	dest.Address = destination
	return dest, nil
}

func (f *fakePayments) Pay(_ context.Context, _ credentials.Credentials, paymentID string, quote spsp.Quote, dest spsp.Destination, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payErr != nil {
		return f.payErr
	}
	f.payCalls = append(f.payCalls, payCall{PaymentID: paymentID, Quote: quote, Dest: dest, Note: note})
	return nil
}

func (f *fakePayments) Provision(_ context.Context, host, username, password, inviteCode string) (credentials.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provisionCalls = append(f.provisionCalls, provisionCall{Host: host, Username: username, Password: password, InviteCode: inviteCode})
	if f.provisionErr != nil {
		return credentials.Credentials{}, f.provisionErr
	}
	return f.provisioned, nil
}

func (f *fakePayments) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accountCalls + f.parseCalls + len(f.quoteCalls) + len(f.payCalls) + len(f.provisionCalls)
}

type recordedMetric struct {
	Name    string
	Outcome string
}

type fakeRecorder struct {
	mu     sync.Mutex
	counts []recordedMetric
}

func (f *fakeRecorder) IncCounter(name string, labels map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = append(f.counts, recordedMetric{Name: name, Outcome: labels["outcome"]})
}

func (f *fakeRecorder) ObserveLatency(string, time.Duration, map[string]string) {}

// ---------------------------------------------------------------------------
// harness
// ---------------------------------------------------------------------------

type testEnv struct {
	store      *fakeStore
	chat       *fakeChat
	payments   *fakePayments
	runner     *Runner
	dispatcher *Dispatcher
}

func newTestEnv(t *testing.T, rec metrics.Recorder) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    newFakeStore(),
		chat:     newFakeChat(),
		payments: newFakePayments(),
		runner:   NewRunner(2, time.Second, logging.Discard()),
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	d, err := NewDispatcher(env.store, env.chat, env.payments, env.runner, logging.Discard(), rec, Config{})
	require.NoError(t, err)
	env.dispatcher = d
	return env
}

func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.runner.Drain(ctx))
}

func (e *testEnv) registerSender(userID string) credentials.Credentials {
	creds := credentials.Credentials{
		Endpoint:   "https://sender.example/api",
		Identifier: "alice",
		Secret:     "hunter2",
	}
	e.store.records[userID] = creds
	return creds
}

func (e *testEnv) setRecipientAddress(userID, address string) {
	e.chat.profiles[userID] = slack.Profile{
		DisplayName: "bob",
		Fields:      slack.FieldMap{"Xf0SPSP": {Value: address}},
	}
}

func request(text string) Request {
	return Request{
		UserID:      "U1ALICE",
		UserName:    "alice",
		ChannelID:   "C0GENERAL",
		Text:        text,
		ResponseURL: "https://hooks.example/response/123",
	}
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

func TestDispatch_MalformedTextYieldsHelpWithoutCalls(t *testing.T) {
	env := newTestEnv(t, nil)

	res := env.dispatcher.Dispatch(context.Background(), request("not a command"))

	require.Equal(t, slack.ResponseEphemeral, res.Type)
	require.Equal(t, helpText, res.Text)
	require.Zero(t, env.chat.callCount())
	require.Zero(t, env.payments.callCount())
}

func TestDispatch_HelpKeywordAlsoFallsThrough(t *testing.T) {
	env := newTestEnv(t, nil)

	res := env.dispatcher.Dispatch(context.Background(), request("help"))

	require.Equal(t, helpText, res.Text)
	require.Zero(t, env.payments.callCount())
}

func TestDispatch_RecordsOutcomeMetrics(t *testing.T) {
	rec := &fakeRecorder{}
	env := newTestEnv(t, rec)

	env.dispatcher.Dispatch(context.Background(), request("info"))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.counts, 1)
	require.Equal(t, "info", rec.counts[0].Name)
	require.Equal(t, "not_registered", rec.counts[0].Outcome)
}

func TestRespond_ExpiredResponseURLLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	env := newTestEnv(t, nil)
	d, err := NewDispatcher(env.store, env.chat, env.payments, env.runner, logger, nil, Config{})
	require.NoError(t, err)

	env.chat.postResponseErr = &slack.HTTPStatusError{
		StatusCode: http.StatusGone,
		URL:        "https://hooks.example/response/123",
	}
	d.respond(context.Background(), "https://hooks.example/response/123", slack.ResponseEphemeral, "late follow-up")

	require.Contains(t, buf.String(), "level=WARN")
	require.Contains(t, buf.String(), "follow-up window expired")

	// Any other delivery failure keeps the error level.
	buf.Reset()
	env.chat.postResponseErr = errors.New("connection reset")
	d.respond(context.Background(), "https://hooks.example/response/123", slack.ResponseEphemeral, "late follow-up")

	require.Contains(t, buf.String(), "level=ERROR")
	require.Contains(t, buf.String(), "follow-up delivery failed")
}

func TestNewDispatcher_RequiresCollaborators(t *testing.T) {
	runner := NewRunner(1, time.Second, logging.Discard())

	_, err := NewDispatcher(nil, newFakeChat(), newFakePayments(), runner, logging.Discard(), nil, Config{})
	require.Error(t, err)

	_, err = NewDispatcher(newFakeStore(), nil, newFakePayments(), runner, logging.Discard(), nil, Config{})
	require.Error(t, err)

	_, err = NewDispatcher(newFakeStore(), newFakeChat(), nil, runner, logging.Discard(), nil, Config{})
	require.Error(t, err)
}
