package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func Test_RecoverUnary(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	handlerErr := errors.New("store unavailable")

	testCases := []struct {
		name         string
		handler      grpc.UnaryHandler
		expectedResp any
		expectedCode codes.Code
	}{
		{
			name:         "passes the response through",
			handler:      func(context.Context, any) (any, error) { return "ok", nil },
			expectedResp: "ok",
			expectedCode: codes.OK,
		},
		{
			name:         "keeps a handler error",
			handler:      func(context.Context, any) (any, error) { return nil, handlerErr },
			expectedCode: codes.Unknown,
		},
		{
			name:         "panic becomes internal",
			handler:      func(context.Context, any) (any, error) { panic("nil map") },
			expectedCode: codes.Internal,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// when
			resp, err := RecoverUnary(logger)(context.Background(), nil, info, tc.handler)

			// then
			assert.Equal(t, tc.expectedResp, resp)
			if tc.expectedCode == codes.OK {
				require.NoError(t, err)
				return
			}
			assert.Equal(t, tc.expectedCode, status.Code(err))
		})
	}
}
