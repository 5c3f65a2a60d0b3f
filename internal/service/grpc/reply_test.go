package grpcsvc

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestEncodeReply_ServerFailuresAreNotStored(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{status.Error(codes.FailedPrecondition, "invalid transition"), http.StatusUnprocessableEntity},
		{status.Error(codes.NotFound, "order not found"), http.StatusUnprocessableEntity},
		{status.Error(codes.Aborted, "version conflict"), http.StatusUnprocessableEntity},
		{status.Error(codes.Internal, "internal error"), http.StatusInternalServerError},
		{status.Error(codes.Unavailable, "db down"), http.StatusInternalServerError},
		{status.Error(codes.DeadlineExceeded, "timeout"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		reply := encodeReply(&DeleteOrderResponse{OrderID: "ORD-1"}, tt.err)
		require.Equal(t, tt.want, reply.Status, "%v", tt.err)
	}

	out, err := decodeReply[DeleteOrderResponse](encodeReply(&DeleteOrderResponse{OrderID: "ORD-1"}, nil).Body)
	require.NoError(t, err)
	require.Equal(t, "ORD-1", out.OrderID)
}
