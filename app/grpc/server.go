package grpc

import (
	"context"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/service"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	TokenServiceName    = "identity.v1.TokenService"
	ValidateTokenMethod = "/" + TokenServiceName + "/ValidateToken"
)

type tokenValidator interface {
	Validate(tokenString string) (*service.Claims, error)
}

// TokenServiceServer lets internal callers check an access token without
// sharing the signing secret. Messages are protobuf well-known types so no
// generated code is needed on either side.
type TokenServiceServer interface {
	ValidateToken(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
}

var TokenServiceDesc = gogrpc.ServiceDesc{
	ServiceName: TokenServiceName,
	HandlerType: (*TokenServiceServer)(nil),
	Methods: []gogrpc.MethodDesc{
		{
			MethodName: "ValidateToken",
			Handler:    validateTokenHandler,
		},
	},
	Streams:  []gogrpc.StreamDesc{},
	Metadata: "identity/v1/token.proto",
}

func validateTokenHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenServiceServer).ValidateToken(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ValidateTokenMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TokenServiceServer).ValidateToken(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func RegisterTokenServiceServer(s gogrpc.ServiceRegistrar, srv TokenServiceServer) {
	s.RegisterService(&TokenServiceDesc, srv)
}

type TokenServiceClient struct {
	cc gogrpc.ClientConnInterface
}

func NewTokenServiceClient(cc gogrpc.ClientConnInterface) *TokenServiceClient {
	return &TokenServiceClient{cc: cc}
}

func (c *TokenServiceClient) ValidateToken(ctx context.Context, in *wrapperspb.StringValue, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ValidateTokenMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type TokenServer struct {
	tokens tokenValidator
}

func NewTokenServer(tokens tokenValidator) *TokenServer {
	return &TokenServer{tokens: tokens}
}

// ValidateToken answers {valid:false} for any token that does not verify;
// only a missing token is a caller error.
func (s *TokenServer) ValidateToken(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	token := strings.TrimSpace(req.GetValue())
	if token == "" {
		logrus.Debug("Validate token validation failed (grpc)")
		return nil, status.Error(codes.InvalidArgument, "token is required")
	}

	claims, err := s.tokens.Validate(token)
	var accountID string
	if err == nil {
		accountID, err = service.AccountIDFromClaims(claims)
	}
	if err != nil {
		logrus.WithError(err).Debug("Validate token failed (grpc)")
		return structpb.NewStruct(map[string]any{"valid": false})
	}

	roles := make([]any, 0, len(claims.Roles))
	for _, role := range claims.Roles {
		roles = append(roles, role)
	}

	var expiresAt int64
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Unix()
	}

	logrus.WithField("account_id", accountID).Debug("Validate token succeeded (grpc)")
	return structpb.NewStruct(map[string]any{
		"valid":      true,
		"account_id": accountID,
		"email":      claims.Email,
		"roles":      roles,
		"expires_at": expiresAt,
	})
}

// NewServer builds the internal gRPC server: token validation behind the API
// key, plus the standard health service which stays open.
func NewServer(apiKey string, tokens tokenValidator) (*gogrpc.Server, *health.Server) {
	server := gogrpc.NewServer(
		gogrpc.ChainUnaryInterceptor(LoggingUnaryInterceptor, APIKeyUnaryInterceptor(apiKey)),
		gogrpc.ChainStreamInterceptor(APIKeyStreamInterceptor(apiKey)),
	)

	RegisterTokenServiceServer(server, NewTokenServer(tokens))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(TokenServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	return server, healthServer
}

// GracefulStop reports NOT_SERVING on every health service before draining
// in-flight calls, so balancers stop routing to the instance first.
func GracefulStop(server *gogrpc.Server, healthServer *health.Server) {
	healthServer.Shutdown()
	server.GracefulStop()
}

func LoggingUnaryInterceptor(ctx context.Context, req any, info *gogrpc.UnaryServerInfo, handler gogrpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	entry := logrus.WithFields(logrus.Fields{
		"method":   info.FullMethod,
		"code":     status.Code(err).String(),
		"duration": time.Since(start).String(),
	})
	if err != nil && status.Code(err) == codes.Internal {
		entry.WithError(err).Error("gRPC request failed")
	} else {
		entry.Debug("gRPC request")
	}
	return resp, err
}
