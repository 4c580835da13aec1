package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/torsoroso16/api-project/internal/api/authv1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const maxGatewayBody = 1 << 16

type gatewayCall func(ctx context.Context, c authv1.AuthServiceClient, body []byte, opts ...grpc.CallOption) (any, error)

func route[Req, Resp any](fn func(authv1.AuthServiceClient, context.Context, *Req, ...grpc.CallOption) (*Resp, error)) gatewayCall {
	return func(ctx context.Context, c authv1.AuthServiceClient, body []byte, opts ...grpc.CallOption) (any, error) {
		in := new(Req)
		if len(bytes.TrimSpace(body)) > 0 {
			if err := json.Unmarshal(body, in); err != nil {
				return nil, status.Error(codes.InvalidArgument, "malformed JSON body")
			}
		}
		return fn(c, ctx, in, opts...)
	}
}

// RegisterGateway mounts the HTTP/JSON routes of the auth service on mux.
// Cookies go in as grpcgateway-cookie metadata and Set-Cookie headers come
// back out of the gRPC response header.
func RegisterGateway(mux *runtime.ServeMux, client authv1.AuthServiceClient) error {
	routes := []struct {
		method, path, rpc string
		call              gatewayCall
	}{
		{http.MethodPost, "/v1/auth/register", authv1.AuthService_Register_FullMethodName, route(authv1.AuthServiceClient.Register)},
		{http.MethodPost, "/v1/auth/login", authv1.AuthService_Login_FullMethodName, route(authv1.AuthServiceClient.Login)},
		{http.MethodPost, "/v1/auth/refresh", authv1.AuthService_Refresh_FullMethodName, route(authv1.AuthServiceClient.Refresh)},
		{http.MethodPost, "/v1/auth/logout", authv1.AuthService_Logout_FullMethodName, route(authv1.AuthServiceClient.Logout)},
		{http.MethodPost, "/v1/auth/change-password", authv1.AuthService_ChangePassword_FullMethodName, route(authv1.AuthServiceClient.ChangePassword)},
		{http.MethodPost, "/v1/auth/forgot-password", authv1.AuthService_ForgotPassword_FullMethodName, route(authv1.AuthServiceClient.ForgotPassword)},
		{http.MethodPost, "/v1/auth/reset-password", authv1.AuthService_ResetPassword_FullMethodName, route(authv1.AuthServiceClient.ResetPassword)},
		{http.MethodPost, "/v1/auth/verify-email", authv1.AuthService_VerifyEmail_FullMethodName, route(authv1.AuthServiceClient.VerifyEmail)},
		{http.MethodGet, "/v1/auth/me", authv1.AuthService_Me_FullMethodName, route(authv1.AuthServiceClient.Me)},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.path, gatewayHandler(mux, client, rt.rpc, rt.path, rt.call)); err != nil {
			return err
		}
	}
	return nil
}

func gatewayHandler(mux *runtime.ServeMux, client authv1.AuthServiceClient, rpc, pattern string, call gatewayCall) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		_, outbound := runtime.MarshalerForRequest(mux, r)

		annotated, err := runtime.AnnotateContext(ctx, mux, r, rpc, runtime.WithHTTPPathPattern(pattern))
		if err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, err)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxGatewayBody))
		if err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, status.Error(codes.InvalidArgument, "unreadable body"))
			return
		}

		var header metadata.MD
		resp, err := call(annotated, client, body, grpc.Header(&header))
		for _, c := range header.Get("set-cookie") {
			w.Header().Add("Set-Cookie", c)
		}
		if err != nil {
			runtime.HTTPError(annotated, mux, outbound, w, r, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
