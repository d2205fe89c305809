package logger

import (
	"slices"

	"github.com/stretchr/testify/mock"
)

// MockLogger is a testify mock implementing Logger.
//
// Children created by With report to the root mock, with their accumulated fields placed in
// front of the call site's key-values. An expectation on "Debug" therefore sees
// ["participant", "tgt", "time", ...] for a participant logging through its child logger.
type MockLogger struct {
	mock.Mock

	root   *MockLogger
	fields []any
}

var _ Logger = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// Fields returns the key-values accumulated by With.
func (m *MockLogger) Fields() []any {
	return slices.Clone(m.fields)
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.target().Called(msg, m.merge(keysAndValues))
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.target().Called(msg, m.merge(keysAndValues))
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.target().Called(msg, m.merge(keysAndValues))
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.target().Called(msg, m.merge(keysAndValues))
}

func (m *MockLogger) Fatal(msg string, keysAndValues ...any) {
	m.target().Called(msg, m.merge(keysAndValues))
}

func (m *MockLogger) SetLevel(level Level) {
	m.target().Called(level)
}

func (m *MockLogger) Level() Level {
	args := m.target().Called()
	return args.Get(0).(Level)
}

// With returns a child reporting to the same expectations.
func (m *MockLogger) With(keyValues ...any) Logger {
	return &MockLogger{
		root:   m.target(),
		fields: m.merge(keyValues),
	}
}

func (m *MockLogger) target() *MockLogger {
	if m.root != nil {
		return m.root
	}

	return m
}

func (m *MockLogger) merge(keysAndValues []any) []any {
	if len(m.fields) == 0 {
		return keysAndValues
	}

	return append(slices.Clip(m.fields), keysAndValues...)
}
