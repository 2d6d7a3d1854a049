package usecase_test

import (
	"context"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/mock"

	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/usecase"
)

// MockPlanRepository is a mock implementation of the PlanRepository interface.
type MockPlanRepository struct {
	mock.Mock
}

func (m *MockPlanRepository) Save(ctx context.Context, reg *usecase.Registration) error {
	args := m.Called(ctx, reg)
	return args.Error(0)
}

func (m *MockPlanRepository) Load(ctx context.Context) (*usecase.Registration, error) {
	args := m.Called(ctx)
	result := args.Get(0)
	if result == nil {
		return nil, args.Error(1)
	}
	return result.(*usecase.Registration), args.Error(1)
}

func (m *MockPlanRepository) FindMethod(ctx context.Context, name string) (domain.MethodPlan, domain.MethodSchema, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(domain.MethodPlan), args.Get(1).(domain.MethodSchema), args.Error(2)
}

// MockDispatcher is a mock implementation of the Dispatcher interface.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, method domain.MethodSchema, request []byte) ([]byte, error) {
	args := m.Called(ctx, method, request)
	result := args.Get(0)
	if result == nil {
		return nil, args.Error(1)
	}
	return result.([]byte), args.Error(1)
}

// MockSchemaSource is a mock implementation of the SchemaSource interface.
type MockSchemaSource struct {
	mock.Mock
}

func (m *MockSchemaSource) Service(ctx context.Context, name string) (domain.ServiceSchema, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(domain.ServiceSchema), args.Error(1)
}

// MockPlanResolver is a mock implementation of the PlanResolver interface.
type MockPlanResolver struct {
	mock.Mock
}

func (m *MockPlanResolver) Resolve(methods []domain.MethodSchema, entries []domain.ConfigEntry) ([]domain.MethodPlan, error) {
	args := m.Called(methods, entries)
	result := args.Get(0)
	if result == nil {
		return nil, args.Error(1)
	}
	return result.([]domain.MethodPlan), args.Error(1)
}

func (m *MockPlanResolver) Validate(methods []domain.MethodSchema, plans []domain.MethodPlan) error {
	args := m.Called(methods, plans)
	return args.Error(0)
}

// MockDocumentGenerator is a mock implementation of the DocumentGenerator interface.
type MockDocumentGenerator struct {
	mock.Mock
}

func (m *MockDocumentGenerator) Generate(ctx context.Context, service domain.ServiceSchema, plans []domain.MethodPlan) (*openapi3.T, error) {
	args := m.Called(ctx, service, plans)
	result := args.Get(0)
	if result == nil {
		return nil, args.Error(1)
	}
	return result.(*openapi3.T), args.Error(1)
}
