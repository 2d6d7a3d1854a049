package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/i2y/protoswag/internal/domain"
	"github.com/i2y/protoswag/internal/schema"
	"github.com/i2y/protoswag/internal/usecase"
)

func TestInvokeMethodUseCase_Execute(t *testing.T) {
	ctx := context.Background()
	plan, method := planOf(t, "Add", "Add:get,flat")
	request := []byte{0x08, 0x03, 0x10, 0x04}
	response := []byte{0x08, 0x07}
	dispatchErr := errors.New("upstream unavailable")

	tests := []struct {
		name      string
		mockSetup func(*MockPlanRepository, *MockDispatcher)
		inMethod  string
		inValues  usecase.ParamValues
		want      []byte
		wantErr   error
	}{
		{
			name: "Success - request assembled and dispatched",
			mockSetup: func(repo *MockPlanRepository, dispatcher *MockDispatcher) {
				repo.On("FindMethod", mock.Anything, "Add").Return(plan, method, nil).Once()
				dispatcher.On("Dispatch", mock.Anything, method, request).Return(response, nil).Once()
			},
			inMethod: "Add",
			inValues: usecase.ParamValues{"a": {"3"}, "b": {"4"}},
			want:     response,
		},
		{
			name: "Failure - method not found",
			mockSetup: func(repo *MockPlanRepository, dispatcher *MockDispatcher) {
				repo.On("FindMethod", mock.Anything, "Divide").
					Return(domain.MethodPlan{}, domain.MethodSchema{}, domain.ErrMethodNotFound).Once()
			},
			inMethod: "Divide",
			wantErr:  domain.ErrMethodNotFound,
		},
		{
			name: "Failure - missing parameter is not dispatched",
			mockSetup: func(repo *MockPlanRepository, dispatcher *MockDispatcher) {
				repo.On("FindMethod", mock.Anything, "Add").Return(plan, method, nil).Once()
			},
			inMethod: "Add",
			inValues: usecase.ParamValues{"a": {"3"}},
			wantErr:  domain.ErrMissingParameter,
		},
		{
			name: "Failure - dispatch error",
			mockSetup: func(repo *MockPlanRepository, dispatcher *MockDispatcher) {
				repo.On("FindMethod", mock.Anything, "Add").Return(plan, method, nil).Once()
				dispatcher.On("Dispatch", mock.Anything, method, request).Return(nil, dispatchErr).Once()
			},
			inMethod: "Add",
			inValues: usecase.ParamValues{"a": {"3"}, "b": {"4"}},
			wantErr:  dispatchErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockPlanRepository)
			dispatcher := new(MockDispatcher)
			tt.mockSetup(repo, dispatcher)

			uc := usecase.NewInvokeMethodUseCase(repo, usecase.NewRequestAssembler(schema.NewReflector(), discardLogger()), dispatcher, discardLogger())
			got, err := uc.Execute(ctx, tt.inMethod, tt.inValues)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			repo.AssertExpectations(t)
			dispatcher.AssertExpectations(t)
		})
	}
}
