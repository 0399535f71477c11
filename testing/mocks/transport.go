package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/easeware/snippetd/executor"
)

// MockTransport is a testify mock of executor.Transport.
//
// Example usage:
//
//	tr := &mocks.MockTransport{}
//	tr.On("RoundTrip", mock.Anything, mock.Anything).
//		Return(&executor.RawResponse{StatusCode: 503}, nil).Once()
//	tr.On("RoundTrip", mock.Anything, mock.Anything).
//		Return(&executor.RawResponse{StatusCode: 200}, nil)
//
//	exec := executor.NewBuilder(log).WithTransport(tr).Build()
type MockTransport struct {
	mock.Mock
}

// RoundTrip implements executor.Transport
func (m *MockTransport) RoundTrip(ctx context.Context, req *executor.OutgoingRequest) (*executor.RawResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*executor.RawResponse), args.Error(1)
}

// ExpectStatus queues one response with status and body.
func (m *MockTransport) ExpectStatus(status int, body string) *mock.Call {
	return m.On("RoundTrip", mock.Anything, mock.Anything).
		Return(&executor.RawResponse{StatusCode: status, Body: []byte(body)}, nil).
		Once()
}

// ExpectFailure queues one attempt that gets no response.
func (m *MockTransport) ExpectFailure(err error) *mock.Call {
	return m.On("RoundTrip", mock.Anything, mock.Anything).
		Return(nil, err).
		Once()
}

// MockExecutor mocks the Execute method shared by executor.Executor and its consumers.
type MockExecutor struct {
	mock.Mock
}

// Execute records the call. Descriptors are reset by the real executor, so tests
// should match on fields captured with mock.MatchedBy.
func (m *MockExecutor) Execute(ctx context.Context, d *executor.Descriptor) (*executor.Result, error) {
	args := m.Called(ctx, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*executor.Result), args.Error(1)
}
