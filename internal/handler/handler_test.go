package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-servicing/internal/domain"
	"github.com/segyhp/loan-servicing/internal/handler"
	"github.com/segyhp/loan-servicing/internal/mocks"
)

type fakePinger struct {
	err error
}

func (p fakePinger) PingContext(context.Context) error {
	return p.err
}

var defaultSchedulerConfig = domain.SchedulerConfig{
	Mode:     domain.TriggerInterval,
	Interval: time.Hour,
	Channels: domain.ChannelSet{Email: true},
}

type testServer struct {
	router    http.Handler
	loans     *mocks.MockLoanService
	scheduler *mocks.MockReminderScheduler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	loans := &mocks.MockLoanService{}
	sched := &mocks.MockReminderScheduler{}
	t.Cleanup(func() {
		loans.AssertExpectations(t)
		sched.AssertExpectations(t)
	})

	router := handler.NewRouter(
		handler.NewLoanHandler(loans, logger),
		handler.NewSchedulerHandler(sched, defaultSchedulerConfig, time.Second, logger),
		handler.NewHealthHandler(fakePinger{}, nil, nil, time.Second),
		nil,
		logger,
	)
	return &testServer{router: router, loans: loans, scheduler: sched}
}

func (s *testServer) do(method, target string, body interface{}) *httptest.ResponseRecorder {
	var payload *bytes.Buffer
	switch b := body.(type) {
	case nil:
		payload = &bytes.Buffer{}
	case string:
		payload = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		payload = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, target, payload)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// envelope covers both the success and the error response shapes.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v interface{}) envelope {
	t.Helper()
	env := decode(t, w)
	require.NoError(t, json.Unmarshal(env.Data, v))
	return env
}
