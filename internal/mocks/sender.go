package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/segyhp/loan-servicing/internal/domain"
)

type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, to, subject, text, html string) (domain.SendReceipt, error) {
	args := m.Called(ctx, to, subject, text, html)
	return args.Get(0).(domain.SendReceipt), args.Error(1)
}

type MockMessageSender struct {
	mock.Mock
}

func (m *MockMessageSender) Send(ctx context.Context, to, message string) (domain.SendReceipt, error) {
	args := m.Called(ctx, to, message)
	return args.Get(0).(domain.SendReceipt), args.Error(1)
}

// NewSuccessfulMessageSender accepts every message with the given id.
func NewSuccessfulMessageSender(messageID string) *MockMessageSender {
	m := &MockMessageSender{}
	m.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(domain.SendReceipt{Success: true, MessageID: messageID}, nil)
	return m
}
