package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/methodconfig"
	"github.com/i2y/protoswag/internal/schema"
	"github.com/i2y/protoswag/internal/testproto"
	"github.com/i2y/protoswag/internal/usecase"
)

func TestRegisterServiceUseCase_Execute(t *testing.T) {
	ctx := context.Background()
	service := demoService(t)
	entries := []domain.ConfigEntry{{Method: "Add", Tags: []string{"get", "flat"}, Source: "test"}}
	plans := []domain.MethodPlan{{Method: "Add", HTTPMethod: "GET", Path: "/Add"}}
	doc := &openapi3.T{OpenAPI: "3.0.3"}

	sourceErr := errors.New("no such service")
	configErr := &domain.ConfigError{Method: "Add", Tag: "bogus", Reason: "did not understand tag"}
	saveErr := errors.New("save failed")

	tests := []struct {
		name          string
		mockSetup     func(*MockSchemaSource, *MockPlanResolver, *MockDocumentGenerator, *MockPlanRepository)
		wantErr       error
		expectErrText string
	}{
		{
			name: "Success - service registered",
			mockSetup: func(source *MockSchemaSource, resolver *MockPlanResolver, generator *MockDocumentGenerator, repo *MockPlanRepository) {
				source.On("Service", ctx, "demo.Calculator").Return(service, nil).Once()
				resolver.On("Resolve", service.Methods, entries).Return(plans, nil).Once()
				generator.On("Generate", ctx, service, plans).Return(doc, nil).Once()
				repo.On("Save", ctx, &usecase.Registration{Service: service, Plans: plans, Document: doc}).Return(nil).Once()
			},
		},
		{
			name: "Failure - schema source error",
			mockSetup: func(source *MockSchemaSource, resolver *MockPlanResolver, generator *MockDocumentGenerator, repo *MockPlanRepository) {
				source.On("Service", ctx, "demo.Calculator").Return(domain.ServiceSchema{}, sourceErr).Once()
			},
			wantErr:       sourceErr,
			expectErrText: "failed to load schema of service demo.Calculator: no such service",
		},
		{
			name: "Failure - configuration error",
			mockSetup: func(source *MockSchemaSource, resolver *MockPlanResolver, generator *MockDocumentGenerator, repo *MockPlanRepository) {
				source.On("Service", ctx, "demo.Calculator").Return(service, nil).Once()
				resolver.On("Resolve", service.Methods, entries).Return(nil, configErr).Once()
			},
			wantErr: domain.ErrConfig,
		},
		{
			name: "Failure - invalid document",
			mockSetup: func(source *MockSchemaSource, resolver *MockPlanResolver, generator *MockDocumentGenerator, repo *MockPlanRepository) {
				source.On("Service", ctx, "demo.Calculator").Return(service, nil).Once()
				resolver.On("Resolve", service.Methods, entries).Return(plans, nil).Once()
				generator.On("Generate", ctx, service, plans).Return(nil, domain.ErrInvalidDocument).Once()
			},
			wantErr: domain.ErrInvalidDocument,
		},
		{
			name: "Failure - save error",
			mockSetup: func(source *MockSchemaSource, resolver *MockPlanResolver, generator *MockDocumentGenerator, repo *MockPlanRepository) {
				source.On("Service", ctx, "demo.Calculator").Return(service, nil).Once()
				resolver.On("Resolve", service.Methods, entries).Return(plans, nil).Once()
				generator.On("Generate", ctx, service, plans).Return(doc, nil).Once()
				repo.On("Save", ctx, mock.Anything).Return(saveErr).Once()
			},
			wantErr:       saveErr,
			expectErrText: "failed to save registration of demo.Calculator: save failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := new(MockSchemaSource)
			resolver := new(MockPlanResolver)
			generator := new(MockDocumentGenerator)
			repo := new(MockPlanRepository)
			tt.mockSetup(source, resolver, generator, repo)

			uc := usecase.NewRegisterServiceUseCase(source, resolver, generator, repo, discardLogger())
			reg, err := uc.Execute(ctx, "demo.Calculator", entries)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				if tt.expectErrText != "" {
					assert.EqualError(t, err, tt.expectErrText)
				}
				assert.Nil(t, reg)
			} else {
				require.NoError(t, err)
				assert.Equal(t, plans, reg.Plans)
				assert.Same(t, doc, reg.Document)
			}
			source.AssertExpectations(t)
			resolver.AssertExpectations(t)
			generator.AssertExpectations(t)
			repo.AssertExpectations(t)
		})
	}
}

func TestRegisterServiceUseCase_ExecuteWithPlans(t *testing.T) {
	ctx := context.Background()
	service := demoService(t)
	plans := []domain.MethodPlan{{Method: "Upload", HTTPMethod: "POST", Path: "/Upload"}}
	doc := &openapi3.T{OpenAPI: "3.0.3"}

	source := new(MockSchemaSource)
	resolver := new(MockPlanResolver)
	generator := new(MockDocumentGenerator)
	repo := new(MockPlanRepository)
	source.On("Service", ctx, "demo.Calculator").Return(service, nil).Once()
	resolver.On("Validate", service.Methods, plans).Return(nil).Once()
	generator.On("Generate", ctx, service, plans).Return(doc, nil).Once()
	repo.On("Save", ctx, mock.AnythingOfType("*usecase.Registration")).Return(nil).Once()

	uc := usecase.NewRegisterServiceUseCase(source, resolver, generator, repo, discardLogger())
	reg, err := uc.ExecuteWithPlans(ctx, "demo.Calculator", plans)
	require.NoError(t, err)
	assert.Equal(t, plans, reg.Plans)
	resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	resolver.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestRegisterServiceUseCase_ExecuteWithPlansRejectsBadPlans(t *testing.T) {
	ctx := context.Background()
	service := demoService(t)
	service.Methods = append(service.Methods, domain.MethodSchema{
		Name: "Store", FullName: "/demo.Calculator/Store",
		Input: testproto.Message(t, "Wrapped"), Output: testproto.Message(t, "Sum"),
	})

	tests := []struct {
		name   string
		plan   domain.MethodPlan
		wantIs error
	}{
		{
			name: "compound field",
			plan: domain.MethodPlan{Method: "Lookup", HTTPMethod: "GET", Path: "/Lookup", Params: []domain.ParamSpec{
				{Field: "header", Name: "header", In: domain.LocationQuery, Format: domain.FormatString},
			}},
		},
		{
			name: "unconstructable request",
			plan: domain.MethodPlan{Method: "Store", HTTPMethod: "GET", Path: "/Store", Params: []domain.ParamSpec{
				{Field: "id", Name: "id", In: domain.LocationQuery, Format: domain.FormatString},
			}},
			wantIs: domain.ErrUnconstructable,
		},
		{
			name: "whole request with other parameters",
			plan: domain.MethodPlan{Method: "Add", HTTPMethod: "GET", Path: "/Add", Params: []domain.ParamSpec{
				{Field: "*", Name: "blob", In: domain.LocationQuery, Format: domain.FormatHex},
				{Field: "a", Name: "a", In: domain.LocationQuery, Format: domain.FormatString},
			}},
		},
		{
			name: "path parameter without placeholder",
			plan: domain.MethodPlan{Method: "Add", HTTPMethod: "GET", Path: "/Add", Params: []domain.ParamSpec{
				{Field: "a", Name: "a", In: domain.LocationPath, Format: domain.FormatString},
			}},
		},
		{
			name: "invalid style",
			plan: domain.MethodPlan{Method: "Add", HTTPMethod: "GET", Path: "/Add", Params: []domain.ParamSpec{
				{Field: "a", Name: "a", In: domain.LocationQuery, Format: domain.FormatString, Style: "matrix"},
			}},
		},
		{
			name: "unknown method",
			plan: domain.MethodPlan{Method: "Divide", HTTPMethod: "POST", Path: "/Divide"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := new(MockSchemaSource)
			generator := new(MockDocumentGenerator)
			repo := new(MockPlanRepository)
			source.On("Service", ctx, "demo.Calculator").Return(service, nil).Once()

			resolver := methodconfig.NewResolver(schema.NewReflector(), discardLogger())
			uc := usecase.NewRegisterServiceUseCase(source, resolver, generator, repo, discardLogger())
			reg, err := uc.ExecuteWithPlans(ctx, "demo.Calculator", []domain.MethodPlan{tt.plan})
			require.Error(t, err)
			assert.Nil(t, reg)
			assert.ErrorIs(t, err, domain.ErrConfig)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
			repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		})
	}
}

func TestServeMethodsUseCase_Execute(t *testing.T) {
	ctx := context.Background()
	reg := &usecase.Registration{Service: demoService(t)}

	repo := new(MockPlanRepository)
	repo.On("Load", ctx).Return(reg, nil).Once()
	got, err := usecase.NewServeMethodsUseCase(repo, discardLogger()).Execute(ctx)
	require.NoError(t, err)
	assert.Same(t, reg, got)

	empty := new(MockPlanRepository)
	empty.On("Load", ctx).Return(nil, domain.ErrMethodNotFound).Once()
	_, err = usecase.NewServeMethodsUseCase(empty, discardLogger()).Execute(ctx)
	assert.ErrorIs(t, err, domain.ErrMethodNotFound)
}
